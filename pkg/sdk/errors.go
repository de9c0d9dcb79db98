package ragdex

import "github.com/kailas-cloud/ragdex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidConfig     = domain.ErrInvalidConfig
	ErrEmptyCorpus       = domain.ErrEmptyCorpus
	ErrGatewayFailure    = domain.ErrGatewayFailure
	ErrGatewayRejected   = domain.ErrGatewayRejected
	ErrInconsistentStore = domain.ErrInconsistentStore
	ErrBuildInProgress   = domain.ErrBuildInProgress
	ErrVectorDimMismatch = domain.ErrVectorDimMismatch
	ErrCorruptIndex      = domain.ErrCorruptIndex
	ErrCorruptMetadata   = domain.ErrCorruptMetadata
	ErrInvalidQuery      = domain.ErrInvalidQuery
	ErrEngineClosed      = domain.ErrEngineClosed
)
