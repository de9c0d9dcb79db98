package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/record"
	answeruc "github.com/kailas-cloud/ragdex/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
)

// --- Mocks ---

type mockSearcher struct {
	hits   []record.Hit
	err    error
	gotK   int
	panic  bool
	tokens int // recorded as embedding usage when > 0
}

func (m *mockSearcher) Search(ctx context.Context, _ string, k int) ([]record.Hit, error) {
	if m.panic {
		panic("boom")
	}
	m.gotK = k
	if m.tokens > 0 {
		domain.UsageFromContext(ctx).Record(m.tokens)
	}
	return m.hits, m.err
}

type mockAnswerer struct {
	ans answeruc.Answer
	err error
}

func (m *mockAnswerer) Answer(_ context.Context, _ string, _ int) (answeruc.Answer, error) {
	return m.ans, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

func sampleHits() []record.Hit {
	return []record.Hit{
		{Score: 0.92, Record: record.Record{Title: "Ethics", Source: "corpus/ethics.md", ChunkID: 1, Text: "passage"}},
	}
}

func newTestServer(s Searcher, a Answerer, h HealthChecker, keys ...string) http.Handler {
	if h == nil {
		h = &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Items: 1}}
	}
	return NewServer(s, a, h, zap.NewNop()).Routes(keys)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

// --- Tests ---

func TestSearch_OK(t *testing.T) {
	s := &mockSearcher{hits: sampleHits()}
	rr := do(t, newTestServer(s, nil, nil), http.MethodPost, "/search", `{"query":"why","top_k":3}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	if s.gotK != 3 {
		t.Errorf("expected top_k 3, got %d", s.gotK)
	}

	var resp map[string][]map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	got := resp["results"]
	if len(got) != 1 || got[0]["title"] != "Ethics" || got[0]["chunk_id"] != float64(1) || got[0]["source"] != "corpus/ethics.md" {
		t.Fatalf("unexpected results: %+v", got)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestSearch_UsageHeader(t *testing.T) {
	rr := do(t, newTestServer(&mockSearcher{tokens: 7}, nil, nil), http.MethodPost, "/search", `{"query":"q"}`)
	if got := rr.Header().Get(HeaderEmbeddingTokens); got != "7" {
		t.Errorf("expected %s 7, got %q", HeaderEmbeddingTokens, got)
	}

	rr = do(t, newTestServer(&mockSearcher{}, nil, nil), http.MethodPost, "/search", `{"query":"q"}`)
	if got := rr.Header().Get(HeaderEmbeddingTokens); got != "" {
		t.Errorf("expected no usage header without embedding calls, got %q", got)
	}
}

func TestSearch_DefaultTopK(t *testing.T) {
	s := &mockSearcher{}
	rr := do(t, newTestServer(s, nil, nil), http.MethodPost, "/search", `{"query":"why"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	if s.gotK != 0 {
		t.Errorf("expected 0 to defer to engine default, got %d", s.gotK)
	}

	var resp SearchResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Results == nil {
		t.Error("results must encode as an empty array, not null")
	}
}

func TestSearch_ZeroTopKUsesDefault(t *testing.T) {
	s := &mockSearcher{gotK: -1}
	rr := do(t, newTestServer(s, nil, nil), http.MethodPost, "/search", `{"query":"why","top_k":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if s.gotK != 0 {
		t.Errorf("expected 0 to defer to engine default, got %d", s.gotK)
	}
}

func TestSearch_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code ErrorCode
	}{
		{"malformed json", `{"query":`, CodeBadRequest},
		{"top_k negative", `{"query":"q","top_k":-1}`, CodeValidationFailed},
		{"top_k too large", fmt.Sprintf(`{"query":"q","top_k":%d}`, MaxTopK+1), CodeValidationFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, newTestServer(&mockSearcher{}, nil, nil), http.MethodPost, "/search", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("got %d", rr.Code)
			}
			if got := decodeError(t, rr).Code; got != tc.code {
				t.Errorf("code: got %s, want %s", got, tc.code)
			}
		})
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
		msg    string
	}{
		{"invalid query", fmt.Errorf("%w: empty", domain.ErrInvalidQuery), http.StatusBadRequest, CodeInvalidQuery, "invalid query"},
		{"gateway", fmt.Errorf("embed query: %w", domain.ErrGatewayFailure), http.StatusBadGateway, CodeProviderError, "gateway failure"},
		{"inconsistent", domain.NewInconsistentStore(3, 2), http.StatusServiceUnavailable, CodeIndexUnavailable, "inconsistent store"},
		{"closed", domain.ErrEngineClosed, http.StatusServiceUnavailable, CodeIndexUnavailable, "engine closed"},
		{"unknown", errors.New("disk on fire at /var/secret"), http.StatusInternalServerError, CodeInternalError, "internal error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, newTestServer(&mockSearcher{err: tc.err}, nil, nil), http.MethodPost, "/search", `{"query":"q"}`)
			if rr.Code != tc.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.status)
			}
			resp := decodeError(t, rr)
			if resp.Code != tc.code || resp.Message != tc.msg {
				t.Errorf("got %+v, want code=%s message=%q", resp, tc.code, tc.msg)
			}
		})
	}
}

func TestAnswer_OK(t *testing.T) {
	a := &mockAnswerer{ans: answeruc.Answer{Text: "grounded", Hits: sampleHits()}}
	rr := do(t, newTestServer(&mockSearcher{}, a, nil), http.MethodPost, "/answer", `{"query":"why"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}

	var resp AnswerResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "grounded" || len(resp.Results) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAnswer_Errors(t *testing.T) {
	rr := do(t, newTestServer(&mockSearcher{}, nil, nil), http.MethodPost, "/answer", `{"query":"why"}`)
	if rr.Code != http.StatusNotImplemented {
		t.Errorf("disabled answer: got %d", rr.Code)
	}

	a := &mockAnswerer{err: fmt.Errorf("compose answer: %w", domain.ErrGatewayFailure)}
	rr = do(t, newTestServer(&mockSearcher{}, a, nil), http.MethodPost, "/answer", `{"query":"why"}`)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("chat failure: got %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		code   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusServiceUnavailable},
		{healthuc.NotReady, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			h := &mockHealth{report: healthuc.Report{
				Status: tc.status,
				Items:  7,
				Checks: map[string]healthuc.CheckResult{"index": healthuc.CheckOK},
			}}
			rr := do(t, newTestServer(&mockSearcher{}, nil, h), http.MethodGet, "/health", "")
			if rr.Code != tc.code {
				t.Fatalf("got %d, want %d", rr.Code, tc.code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != string(tc.status) || resp.Items != 7 || resp.Checks["index"] != "ok" {
				t.Errorf("unexpected body: %+v", resp)
			}
		})
	}
}

func TestRoutes_AuthAppliesToQueries(t *testing.T) {
	h := newTestServer(&mockSearcher{}, nil, nil, "secret")

	if rr := do(t, h, http.MethodPost, "/search", `{"query":"q"}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("search without key: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("health must be exempt: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/metrics", ""); rr.Code != http.StatusOK {
		t.Errorf("metrics must be exempt: got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("search with key: got %d", rr.Code)
	}
}

func TestRoutes_PanicRecovered(t *testing.T) {
	rr := do(t, newTestServer(&mockSearcher{panic: true}, nil, nil), http.MethodPost, "/search", `{"query":"q"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", rr.Code)
	}
	if got := decodeError(t, rr).Code; got != CodeInternalError {
		t.Errorf("code: got %s", got)
	}
}

func TestRoutes_NotFoundAndMethod(t *testing.T) {
	h := newTestServer(&mockSearcher{}, nil, nil)
	if rr := do(t, h, http.MethodGet, "/collections", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/search", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method: got %d", rr.Code)
	}
}
