package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig signals rejected build or chunking parameters.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrEmptyCorpus signals a corpus that produced no chunks.
	ErrEmptyCorpus = errors.New("empty corpus")
	// ErrGatewayFailure signals an embedding or chat provider failure. Retryable.
	ErrGatewayFailure = errors.New("gateway failure")
	// ErrGatewayRejected is a provider failure that repeating the request will not fix,
	// such as bad credentials or a malformed request. It matches ErrGatewayFailure.
	ErrGatewayRejected = fmt.Errorf("%w: request rejected", ErrGatewayFailure)
	// ErrInconsistentStore signals a vector count that differs from the record count.
	ErrInconsistentStore = errors.New("inconsistent store")
	// ErrOutOfRange signals a position outside the metadata store bounds.
	ErrOutOfRange = errors.New("position out of range")
	// ErrBuildInProgress signals another build holding the same target.
	ErrBuildInProgress = errors.New("build in progress")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrCorruptIndex signals an unreadable or damaged index file.
	ErrCorruptIndex = errors.New("corrupt index")
	// ErrCorruptMetadata signals an unreadable metadata line.
	ErrCorruptMetadata = errors.New("corrupt metadata")
	// ErrInvalidQuery signals an unusable search request.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEngineClosed signals use of a query engine after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// IsRetryable reports whether err is a transient provider fault worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayFailure) && !errors.Is(err, ErrGatewayRejected)
}

// InconsistentStoreError carries both counts of a misaligned index/metadata pair.
type InconsistentStoreError struct {
	Vectors int
	Records int
}

func (e *InconsistentStoreError) Error() string {
	return fmt.Sprintf("%s: %d vectors, %d records", ErrInconsistentStore.Error(), e.Vectors, e.Records)
}

func (e *InconsistentStoreError) Unwrap() error { return ErrInconsistentStore }

// NewInconsistentStore creates an inconsistent store error.
func NewInconsistentStore(vectors, records int) error {
	return &InconsistentStoreError{Vectors: vectors, Records: records}
}
