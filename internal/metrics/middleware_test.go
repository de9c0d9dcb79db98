package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_RecordsRoutePatternAndStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/search", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	})
	r.Post("/answer", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	tests := []struct {
		method, path, status string
	}{
		{"POST", "/search", "200"},
		{"POST", "/answer", "502"},
		{"GET", "/health", "503"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}"))
			r.ServeHTTP(httptest.NewRecorder(), req)

			val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.path, tc.status))
			if val < 1 {
				t.Errorf("expected http_requests_total{%s,%s,%s} >= 1, got %f", tc.method, tc.path, tc.status, val)
			}
		})
	}

	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected http_request_duration_seconds observations")
	}
}

func TestRouteLabel_OutsideRouter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	if got := routeLabel(req); got != "unknown" {
		t.Errorf("routeLabel = %q, want unknown", got)
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing/42", nil))

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unknown", "404")); val < 1 {
		t.Errorf("expected unmatched request under the unknown label, got %f", val)
	}
}

func TestRegister_Idempotent(t *testing.T) {
	RegisterGatewayMetrics()
	RegisterGatewayMetrics()
	RegisterIndexMetrics()
	RegisterIndexMetrics()

	IndexVectors.Set(3)
	if got := testutil.ToFloat64(IndexVectors); got != 3 {
		t.Fatalf("expected gauge 3, got %f", got)
	}

	BuildsTotal.WithLabelValues("succeeded").Inc()
	if got := testutil.ToFloat64(BuildsTotal.WithLabelValues("succeeded")); got < 1 {
		t.Fatalf("expected builds_total >= 1, got %f", got)
	}
}
