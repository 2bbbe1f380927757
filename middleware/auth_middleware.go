package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/guidgatekeeper/ggk/utils"
	"go.uber.org/zap"
)

// AuthMiddleware provides API key authentication middleware.
//
// API keys are opaque strings compared for equality; the service never
// parses or decodes them. The Authorization header carries the key
// directly, with an optional "Bearer " prefix tolerated for clients
// that always send one.
type AuthMiddleware struct {
	adminKey string
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(adminKey string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		adminKey: adminKey,
		logger:   logger,
	}
}

// RequireAPIKey is a middleware that requires an API key in the
// Authorization header. The key is attached to the request context;
// when it matches the configured admin key, the admin flag is set too.
func (m *AuthMiddleware) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		apiKey := extractAPIKey(r)
		if apiKey == "" {
			m.logger.Warn("missing api key",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		ctx = WithAPIKey(ctx, apiKey)
		ctx = WithAdmin(ctx, m.isAdmin(apiKey))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin is a middleware that requires the configured admin key.
// This should be called after RequireAPIKey.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		if !IsAdminFromContext(ctx) {
			m.logger.Warn("admin access denied",
				zap.String("request_id", requestID))
			_ = utils.WriteForbidden(w, "Admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) isAdmin(apiKey string) bool {
	if m.adminKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.adminKey)) == 1
}

// extractAPIKey extracts the API key from the Authorization header,
// stripping an optional "Bearer " prefix.
func extractAPIKey(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}

	return authHeader
}
