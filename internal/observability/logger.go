package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/querypilot/querypilot/internal/config"
)

type ctxKey string

const (
	traceIDKey ctxKey = "trace_id"
	callerKey  ctxKey = "caller"
)

const redacted = "[redacted]"

// NewLogger returns a logger whose records carry the dialect, model and
// prompt version every conversion in this process runs with.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel, ReplaceAttr: redactSecrets}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
		slog.String("dialect", cfg.Database.Dialect),
		slog.String("prompt_version", cfg.Pipeline.PromptVersion),
		slog.Group("ai",
			slog.String("provider", cfg.AI.Provider),
			slog.String("model", cfg.AI.Model),
		),
	)
}

func redactSecrets(_ []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)
	if strings.Contains(key, "api_key") || strings.Contains(key, "secret") || key == "authorization" {
		return slog.String(attr.Key, redacted)
	}
	return attr
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// caller is shared by every handler of one request so the access log can
// report who authenticated further down the chain.
type caller struct {
	mu        sync.Mutex
	principal string
}

func contextWithCaller(ctx context.Context) context.Context {
	if _, ok := ctx.Value(callerKey).(*caller); ok {
		return ctx
	}
	return context.WithValue(ctx, callerKey, &caller{})
}

// SetPrincipal records the authenticated key owner for the current request.
// It is a no-op outside TraceMiddleware.
func SetPrincipal(ctx context.Context, principal string) {
	c, ok := ctx.Value(callerKey).(*caller)
	if !ok {
		return
	}
	c.mu.Lock()
	c.principal = principal
	c.mu.Unlock()
}

func PrincipalFromContext(ctx context.Context) string {
	c, ok := ctx.Value(callerKey).(*caller)
	if !ok {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principal
}
