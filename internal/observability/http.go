package observability

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	traceHeader   = "X-Trace-ID"
	requestHeader = "X-Request-ID"
	maxTraceIDLen = 128
)

// routes bounds the path label of the HTTP metrics.
var routes = map[string]struct{}{
	"/v1/health":  {},
	"/v1/ready":   {},
	"/v1/metrics": {},
	"/v1/query":   {},
	"/v1/schema":  {},
}

// TraceMiddleware adopts the caller's X-Trace-ID (or X-Request-ID) and
// otherwise mints one, echoing it back on the response.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := incomingTraceID(r)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := contextWithCaller(ContextWithTraceID(r.Context(), traceID))
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			attrs := []slog.Attr{
				slog.String("trace_id", TraceIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("route", routeLabel(r.URL.Path)),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", recorder.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", recorder.bytes),
			}
			if principal := PrincipalFromContext(r.Context()); principal != "" {
				attrs = append(attrs, slog.String("principal", principal))
			}
			logger.LogAttrs(r.Context(), levelForStatus(recorder.status), "http_request", attrs...)
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}

func incomingTraceID(r *http.Request) string {
	for _, header := range []string{traceHeader, requestHeader} {
		value := strings.TrimSpace(r.Header.Get(header))
		if value != "" && validTraceID(value) {
			return value
		}
	}
	return ""
}

func validTraceID(value string) bool {
	if len(value) > maxTraceIDLen {
		return false
	}
	for _, ch := range value {
		if ch <= ' ' || ch > '~' {
			return false
		}
	}
	return true
}

func routeLabel(path string) string {
	if _, ok := routes[path]; ok {
		return path
	}
	return "other"
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
