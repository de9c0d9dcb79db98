package metastore

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/record"
)

func sampleStore() *Store {
	s := New()
	s.Append(record.Record{Title: "intro", Source: "corpus/intro.md", ChunkID: 0, Text: "first <chunk>"})
	s.Append(record.Record{Title: "intro", Source: "corpus/intro.md", ChunkID: 1, Text: "second\nchunk"})
	s.Append(record.Record{Title: "RAG_Index_0", Source: "corpus/index.json", ChunkID: 0, Text: "Query: пример"})
	return s
}

func TestAppendGet(t *testing.T) {
	s := sampleStore()
	if s.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", s.Len())
	}
	rec, err := s.Get(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ChunkID != 1 || rec.Text != "second\nchunk" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestGet_OutOfRange(t *testing.T) {
	s := sampleStore()
	for _, pos := range []int{-1, 3, 100} {
		if _, err := s.Get(pos); !errors.Is(err, domain.ErrOutOfRange) {
			t.Errorf("pos %d: expected ErrOutOfRange, got %v", pos, err)
		}
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	s := sampleStore()
	all := s.All()
	all[0].Title = "changed"
	rec, _ := s.Get(0)
	if rec.Title != "intro" {
		t.Fatal("All must not alias internal records")
	}
}

func TestWriteTo_LineFormat(t *testing.T) {
	var buf bytes.Buffer
	n, err := sampleStore().WriteTo(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Fatalf("reported %d bytes, wrote %d", n, buf.Len())
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	want := `{"title":"intro","source":"corpus/intro.md","chunk_id":0,"text":"first <chunk>"}`
	if lines[0] != want {
		t.Fatalf("got %s\nwant %s", lines[0], want)
	}
	if !strings.Contains(lines[2], "пример") {
		t.Fatalf("expected raw UTF-8, got %s", lines[2])
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := sampleStore()
	path := filepath.Join(t.TempDir(), "meta.jsonl")
	if err := s.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Len() != s.Len() {
		t.Fatalf("expected %d records, got %d", s.Len(), loaded.Len())
	}
	for i := range s.Len() {
		a, _ := s.Get(i)
		b, _ := loaded.Get(i)
		if a != b {
			t.Fatalf("record %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestRead_BlankLinesAndMissingNewline(t *testing.T) {
	in := "{\"title\":\"a\",\"source\":\"s\",\"chunk_id\":0,\"text\":\"x\"}\n\n{\"title\":\"b\",\"source\":\"s\",\"chunk_id\":1,\"text\":\"y\"}"
	s, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", s.Len())
	}
}

func TestRead_BadLineReportsLineNumber(t *testing.T) {
	in := "{\"title\":\"a\",\"chunk_id\":0}\nnot json\n"
	_, err := Read(strings.NewReader(in))
	if !errors.Is(err, domain.ErrCorruptMetadata) {
		t.Fatalf("expected ErrCorruptMetadata, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line number in %q", err.Error())
	}
}

func TestRead_RejectsNonObjectLines(t *testing.T) {
	for _, line := range []string{"null", "  null  ", "[]", "42", "\"text\""} {
		t.Run(line, func(t *testing.T) {
			in := "{\"title\":\"a\",\"chunk_id\":0}\n" + line + "\n"
			_, err := Read(strings.NewReader(in))
			if !errors.Is(err, domain.ErrCorruptMetadata) {
				t.Fatalf("expected ErrCorruptMetadata, got %v", err)
			}
			if !strings.Contains(err.Error(), "line 2") {
				t.Fatalf("expected line number in %q", err.Error())
			}
		})
	}
}
