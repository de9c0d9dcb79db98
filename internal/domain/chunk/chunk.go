package chunk

import (
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Chunk is a contiguous window of a source document.
// Offset and length are counted in runes.
type Chunk struct {
	SourceID string
	Index    int
	Text     string
	Offset   int
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return len([]rune(c.Text))
}

// Validate checks window parameters.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", domain.ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: chunk overlap %d must be less than size %d", domain.ErrInvalidConfig, overlap, size)
	}
	return nil
}

// Split cuts text into windows of size runes, each starting size-overlap runes
// after the previous one. Every chunk but the last is exactly size runes long.
// Splitting stops at the first window that reaches the end of text, so the tail
// is never emitted twice.
func Split(text string, size, overlap int) ([]Chunk, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]Chunk, 0, (n+step-1)/step)
	for start := 0; ; start += step {
		end := min(start+size, n)
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Text:   string(runes[start:end]),
			Offset: start,
		})
		if end == n {
			break
		}
	}
	return chunks, nil
}

// SplitSource is Split with every chunk tagged by sourceID.
func SplitSource(sourceID, text string, size, overlap int) ([]Chunk, error) {
	chunks, err := Split(text, size, overlap)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].SourceID = sourceID
	}
	return chunks, nil
}
