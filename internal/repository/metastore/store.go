package metastore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/record"
	"github.com/kailas-cloud/ragdex/internal/repository/atomicfile"
)

// Store holds chunk records in index order. Position N describes vector N.
type Store struct {
	records []record.Record
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Append adds rec at the next position and returns that position.
func (s *Store) Append(rec record.Record) int {
	s.records = append(s.records, rec)
	return len(s.records) - 1
}

// Get returns the record at pos.
func (s *Store) Get(pos int) (record.Record, error) {
	if pos < 0 || pos >= len(s.records) {
		return record.Record{}, fmt.Errorf("%w: record %d of %d", domain.ErrOutOfRange, pos, len(s.records))
	}
	return s.records[pos], nil
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }

// All returns a copy of every record in order.
func (s *Store) All() []record.Record {
	out := make([]record.Record, len(s.records))
	copy(out, s.records)
	return out
}

// WriteTo encodes one JSON object per line.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for i, rec := range s.records {
		if err := enc.Encode(rec); err != nil {
			return cw.n, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return cw.n, fmt.Errorf("flush: %w", err)
	}
	return cw.n, nil
}

// Read decodes records written by WriteTo. Blank lines are skipped; every other line must be a JSON object.
func Read(r io.Reader) (*Store, error) {
	s := New()
	br := bufio.NewReader(r)

	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if trimmed[0] != '{' {
				return nil, fmt.Errorf("%w: line %d: not a JSON object", domain.ErrCorruptMetadata, lineNo)
			}
			var rec record.Record
			if uerr := json.Unmarshal(trimmed, &rec); uerr != nil {
				return nil, fmt.Errorf("%w: line %d: %v", domain.ErrCorruptMetadata, lineNo, uerr)
			}
			s.records = append(s.records, rec)
		}
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", lineNo, err)
		}
	}
}

// Save atomically writes the store to path.
func (s *Store) Save(path string) error {
	if err := atomicfile.WriteFile(path, s); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// Load reads a metadata file.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer func() { _ = f.Close() }()

	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("load metadata %s: %w", path, err)
	}
	return s, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
