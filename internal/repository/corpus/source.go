package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
)

// Document is one unit of corpus text before chunking.
type Document struct {
	Title  string
	Source string
	Text   string
}

// DefaultExtensions are the file suffixes read from the corpus directory.
var DefaultExtensions = []string{".md"}

// DefaultJSONFields is the labeled field order for structured index records.
var DefaultJSONFields = []chunk.Field{
	{Key: "query", Label: "Query"},
	{Key: "emotion", Label: "Emotion"},
	{Key: "beliefDetected", Label: "Belief"},
	{Key: "inadequateIdea", Label: "Inadequate Idea"},
	{Key: "reframe", Label: "Reframe"},
	{Key: "intervention", Label: "Intervention"},
	{Key: "adequateIdea", Label: "Adequate Idea"},
	{Key: "quotes", Label: "Quotes"},
	{Key: "therapeuticPractice", Label: "Therapeutic Practice"},
	{Key: "dialogueExample", Label: "Dialogue Example"},
}

// Source reads documents from a directory and an optional JSON array file.
type Source struct {
	Dir        string
	Extensions []string
	JSONFile   string
	// JSONFields renders JSON records; nil falls back to sorted keys.
	JSONFields []chunk.Field
}

// Documents returns directory files sorted by relative path, then JSON records in array order.
// A missing JSON file is skipped.
func (s Source) Documents(ctx context.Context) ([]Document, error) {
	var docs []Document

	if s.Dir != "" {
		files, err := s.listFiles(ctx)
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			text, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			docs = append(docs, Document{
				Title:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
				Source: path,
				Text:   string(text),
			})
		}
	}

	if s.JSONFile != "" {
		records, err := s.readJSON()
		if err != nil {
			return nil, err
		}
		docs = append(docs, records...)
	}

	return docs, nil
}

func (s Source) listFiles(ctx context.Context) ([]string, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: corpus dir: %v", domain.ErrInvalidConfig, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: corpus dir %s is not a directory", domain.ErrInvalidConfig, s.Dir)
	}

	exts := s.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	jsonAbs, _ := filepath.Abs(s.JSONFile)

	var rels []string
	err = filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !hasExt(path, exts) {
			return nil
		}
		if s.JSONFile != "" {
			if abs, _ := filepath.Abs(path); abs == jsonAbs {
				return nil
			}
		}
		rel, err := filepath.Rel(s.Dir, path)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.Dir, err)
	}

	slices.Sort(rels)
	paths := make([]string, len(rels))
	for i, rel := range rels {
		paths[i] = filepath.Join(s.Dir, filepath.FromSlash(rel))
	}
	return paths, nil
}

func (s Source) readJSON() ([]Document, error) {
	f, err := os.Open(s.JSONFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.JSONFile, err)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.JSONFile, err)
	}

	docs := make([]Document, 0, len(items))
	for i, item := range items {
		docs = append(docs, Document{
			Title:  fmt.Sprintf("RAG_Index_%d", i),
			Source: s.JSONFile,
			Text:   chunk.Canonical(s.JSONFields, item),
		})
	}
	return docs, nil
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
