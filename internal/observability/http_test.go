package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

func TestTraceMiddlewareKeepsCallerTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "ask-42" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set(traceHeader, "ask-42")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "ask-42" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareFallsBackToRequestID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set(requestHeader, "gateway-7")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "gateway-7" {
		t.Fatalf("trace header = %q, want gateway-7", got)
	}
}

func TestTraceMiddlewareReplacesUnusableTraceID(t *testing.T) {
	cases := map[string]string{
		"whitespace": "two words",
		"too long":   strings.Repeat("a", maxTraceIDLen+1),
		"control":    "abc\x01",
	}
	for name, incoming := range cases {
		t.Run(name, func(t *testing.T) {
			h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
			req.Header.Set(traceHeader, incoming)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			got := rr.Header().Get(traceHeader)
			if got == incoming {
				t.Fatalf("trace header kept unusable value %q", incoming)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("generated trace id %q is not a uuid: %v", got, err)
			}
		})
	}
}

func TestTraceMiddlewareGeneratesUUID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if _, err := uuid.Parse(rr.Header().Get(traceHeader)); err != nil {
		t.Fatalf("X-Trace-ID = %q: %v", rr.Header().Get(traceHeader), err)
	}
}

func TestPrincipalOnlyRecordedInsideTraceMiddleware(t *testing.T) {
	ctx := context.Background()
	SetPrincipal(ctx, "analyst")
	if got := PrincipalFromContext(ctx); got != "" {
		t.Fatalf("PrincipalFromContext() = %q outside a request", got)
	}

	ctx = contextWithCaller(ctx)
	SetPrincipal(ctx, "analyst")
	if got := PrincipalFromContext(ctx); got != "analyst" {
		t.Fatalf("PrincipalFromContext() = %q", got)
	}
}

func TestLoggingMiddlewareReportsPrincipalSetDownstream(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := TraceMiddleware(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetPrincipal(r.Context(), "analyst")
		w.WriteHeader(http.StatusUnprocessableEntity)
	})))

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set(traceHeader, "ask-9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v (%s)", err, buf.String())
	}
	if record["principal"] != "analyst" {
		t.Fatalf("principal = %v", record["principal"])
	}
	if record["trace_id"] != "ask-9" || record["route"] != "/v1/query" {
		t.Fatalf("record = %v", record)
	}
	if record["level"] != "WARN" {
		t.Fatalf("level = %v, want WARN for a 422", record["level"])
	}
}

func TestMetricsMiddlewareCollapsesUnknownRoutes(t *testing.T) {
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	labels := map[string]string{"method": http.MethodGet, "path": "other", "status": "404"}
	before := labeledCounter(t, "querypilot_http_requests_total", labels)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/tables/users", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin", nil))
	after := labeledCounter(t, "querypilot_http_requests_total", labels)

	if after-before != 2 {
		t.Fatalf("other route counter grew by %v, want 2", after-before)
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/query":   "/v1/query",
		"/v1/schema":  "/v1/schema",
		"/v1/query/":  "other",
		"/v1/unknown": "other",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func labeledCounter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}
