package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/models"
)

type contextKey string

const roleContextKey contextKey = "operator_role"

// AuthConfig maps API keys to operator roles. An empty AdminKey puts the
// server in development mode: every caller is admitted as admin.
type AuthConfig struct {
	AdminKey   string
	AnalystKey string
	PublicKey  string
}

// APIKeyAuth returns middleware that authenticates via the X-API-Key header
// or an Authorization bearer token and attaches the resolved role to the
// request context. Unauthenticated requests get 401.
func APIKeyAuth(cfg AuthConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	devMode := cfg.AdminKey == ""
	if devMode && logger != nil {
		logger.Warn("no admin API key configured, running in development mode")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if devMode {
				next.ServeHTTP(w, r.WithContext(withRole(r.Context(), models.RoleAdmin)))
				return
			}

			key := extractKey(r)
			role, ok := resolveRole(cfg, key)
			if !ok {
				if logger != nil {
					logger.Warn("rejected request with invalid API key",
						zap.String("path", r.URL.Path),
						zap.String("remote_addr", r.RemoteAddr))
				}
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(withRole(r.Context(), role)))
		})
	}
}

func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func resolveRole(cfg AuthConfig, key string) (models.OperatorRole, bool) {
	if key == "" {
		return "", false
	}
	switch {
	case keyEqual(key, cfg.AdminKey):
		return models.RoleAdmin, true
	case keyEqual(key, cfg.AnalystKey):
		return models.RoleAnalyst, true
	case keyEqual(key, cfg.PublicKey):
		return models.RolePublic, true
	}
	return "", false
}

func keyEqual(candidate, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(configured)) == 1
}

func withRole(ctx context.Context, role models.OperatorRole) context.Context {
	return context.WithValue(ctx, roleContextKey, role)
}

// RoleFromContext returns the authenticated role, defaulting to public when
// the middleware never ran.
func RoleFromContext(ctx context.Context) models.OperatorRole {
	if role, ok := ctx.Value(roleContextKey).(models.OperatorRole); ok {
		return role
	}
	return models.RolePublic
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":    false,
		"error":      "Missing or invalid API key.",
		"error_type": "AuthFailure",
	})
}
