package health

import "context"

// IndexReader reports the state of the loaded index.
type IndexReader interface {
	Len() int
	Closed() bool
}

// DBPinger checks cache store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
