// Bearer API key authentication plus the X-Project-Id tenant-scoping gate.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	apiKeyContextKey    contextKey = "api_key"
	projectIDContextKey contextKey = "project_id"
)

// AuthMiddleware validates Bearer API keys against an allow-list and
// requires a project-scoping header on every authenticated request.
type AuthMiddleware struct {
	logger       zerolog.Logger
	validAPIKeys map[string]bool
}

// NewAuthMiddleware creates an authenticator over the given key allow-list.
func NewAuthMiddleware(logger zerolog.Logger, validAPIKeys map[string]bool) *AuthMiddleware {
	return &AuthMiddleware{logger: logger, validAPIKeys: validAPIKeys}
}

// Handler returns the middleware handler function.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		apiKey := ""
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			apiKey = strings.TrimSpace(authHeader[len("bearer "):])
		}

		if apiKey == "" || !am.validAPIKeys[apiKey] {
			am.logger.Warn().Str("path", r.URL.Path).Msg("rejected request with invalid api key")
			writeAuthError(w, http.StatusUnauthorized, "Missing or invalid Authorization header. Expected: Bearer <api_key>")
			return
		}

		projectID := strings.TrimSpace(r.Header.Get("X-Project-Id"))
		if projectID == "" {
			writeAuthError(w, http.StatusBadRequest, "Missing X-Project-Id header")
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyContextKey, apiKey)
		ctx = context.WithValue(ctx, projectIDContextKey, projectID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// GetAPIKey extracts the authenticated API key from the request context.
func GetAPIKey(ctx context.Context) string {
	if v, ok := ctx.Value(apiKeyContextKey).(string); ok {
		return v
	}
	return ""
}

// GetProjectID extracts the authenticated project ID from the request context.
func GetProjectID(ctx context.Context) string {
	if v, ok := ctx.Value(projectIDContextKey).(string); ok {
		return v
	}
	return ""
}
