package answer

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain/record"
)

// Searcher resolves a question into ranked context records.
type Searcher interface {
	Search(ctx context.Context, text string, k int) ([]record.Hit, error)
}
