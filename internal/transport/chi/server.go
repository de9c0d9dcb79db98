package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/record"
	"github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	answeruc "github.com/kailas-cloud/ragdex/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
)

// MaxTopK bounds the top_k a client may request.
const MaxTopK = 100

const maxBodyBytes = 1 << 20

// HeaderEmbeddingTokens carries the embedding tokens spent on a request.
const HeaderEmbeddingTokens = "X-Embedding-Tokens"

// Searcher runs nearest-neighbor queries.
type Searcher interface {
	Search(ctx context.Context, text string, k int) ([]record.Hit, error)
}

// Answerer composes grounded answers.
type Answerer interface {
	Answer(ctx context.Context, question string, k int) (answeruc.Answer, error)
}

// HealthChecker reports service readiness.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the query API.
type Server struct {
	search        Searcher
	answer        Answerer
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. answer can be nil, which disables POST /answer.
func NewServer(search Searcher, answer Answerer, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		search: search,
		answer: answer,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeInvalidQuery),
		sentinelHandler(domain.ErrGatewayFailure, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrInconsistentStore, http.StatusServiceUnavailable, CodeIndexUnavailable),
		sentinelHandler(domain.ErrEngineClosed, http.StatusServiceUnavailable, CodeIndexUnavailable),
	}
	return s
}

// Routes assembles the router with the full middleware stack.
func (s *Server) Routes(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Post("/search", s.Search)
	r.Post("/answer", s.Answer)
	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	hits, err := s.search.Search(ctx, req.Query, topK(req))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	setUsageHeader(w, usage)

	writeJSON(w, http.StatusOK, SearchResponse{Results: hitsToResponse(hits)})
}

// Answer handles POST /answer.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	if s.answer == nil {
		writeError(w, http.StatusNotImplemented, CodeNotImplemented, "answering is not configured")
		return
	}

	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	ans, err := s.answer.Answer(ctx, req.Query, topK(req))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	setUsageHeader(w, usage)

	writeJSON(w, http.StatusOK, AnswerResponse{Answer: ans.Text, Results: hitsToResponse(ans.Hits)})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Items:  report.Items,
		Checks: checks,
	})
}

// setUsageHeader reports the embedding tokens a request consumed.
func setUsageHeader(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage.Used() {
		w.Header().Set(HeaderEmbeddingTokens, strconv.Itoa(usage.Tokens()))
	}
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return QueryRequest{}, false
	}
	if req.TopK != nil && (*req.TopK < 0 || *req.TopK > MaxTopK) {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("top_k must be between 0 and %d", MaxTopK))
		return QueryRequest{}, false
	}
	return req, true
}

// topK returns 0 when unset or zero so the engine applies its default.
func topK(req QueryRequest) int {
	if req.TopK == nil {
		return 0
	}
	return *req.TopK
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrGatewayFailure,
		domain.ErrInconsistentStore,
		domain.ErrEngineClosed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
