package chi

import "github.com/kailas-cloud/ragdex/internal/domain/record"

// ErrorCode is the machine-readable error kind returned to clients.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeInvalidQuery     ErrorCode = "invalid_query"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeProviderError    ErrorCode = "provider_error"
	CodeIndexUnavailable ErrorCode = "index_unavailable"
	CodeNotImplemented   ErrorCode = "not_implemented"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// QueryRequest is the body of POST /search and POST /answer.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
}

// HitResponse is one ranked record.
type HitResponse struct {
	Score   float32 `json:"score"`
	Title   string  `json:"title"`
	Source  string  `json:"source"`
	ChunkID int     `json:"chunk_id"`
	Text    string  `json:"text"`
}

// SearchResponse is the body of a successful POST /search.
type SearchResponse struct {
	Results []HitResponse `json:"results"`
}

// AnswerResponse is the body of a successful POST /answer.
type AnswerResponse struct {
	Answer  string        `json:"answer"`
	Results []HitResponse `json:"results"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Items  int               `json:"items"`
	Checks map[string]string `json:"checks"`
}

func hitsToResponse(hits []record.Hit) []HitResponse {
	out := make([]HitResponse, len(hits))
	for i, h := range hits {
		out[i] = HitResponse{
			Score:   h.Score,
			Title:   h.Title,
			Source:  h.Source,
			ChunkID: h.ChunkID,
			Text:    h.Text,
		}
	}
	return out
}
