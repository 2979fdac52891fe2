package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/querypilot/querypilot/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

const (
	reasonMissingKey = "missing API key"
	reasonInvalidKey = "invalid API key"
	reasonNoRoles    = "API key grants no query or schema role"
)

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware resolves the caller's API key to an Identity. Keys that carry
// neither the query nor the schema role are rejected here since no
// protected route would accept them.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractAPIKey(r)
			if apiKey == "" {
				reject(logger, w, r, http.StatusUnauthorized, "UNAUTHORIZED", reasonMissingKey, "")
				return
			}

			identity, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				reject(logger, w, r, http.StatusUnauthorized, "UNAUTHORIZED", reasonInvalidKey, "")
				return
			}
			if !identity.HasRole(RoleQueryReader) && !identity.HasRole(RoleSchemaReader) {
				reject(logger, w, r, http.StatusForbidden, "FORBIDDEN", reasonNoRoles, identity.Principal)
				return
			}

			observability.SetPrincipal(r.Context(), identity.Principal)
			if logger != nil {
				logger.DebugContext(r.Context(), "caller_authenticated",
					slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
					slog.String("principal", identity.Principal),
					slog.Any("roles", identity.Roles),
				)
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if authorization == "" {
		return ""
	}
	scheme, token, found := strings.Cut(authorization, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func reject(logger *slog.Logger, w http.ResponseWriter, r *http.Request, status int, code, reason, principal string) {
	if logger != nil {
		logger.WarnContext(r.Context(), "authentication_rejected",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("reason", reason),
			slog.String("principal", principal),
		)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="querypilot"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":    false,
		"error_code": code,
		"message":    reason,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
