package build

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/repository/corpus"
)

// Corpus enumerates source documents in a deterministic order.
type Corpus interface {
	Documents(ctx context.Context) ([]corpus.Document, error)
}
