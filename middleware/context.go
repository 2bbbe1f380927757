package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

const (
	// APIKeyKey is the context key for the caller's API key
	APIKeyKey contextKey = "api_key"

	// AdminKey is the context key for the admin flag
	AdminKey contextKey = "is_admin"
)

// GetRequestIDFromContext retrieves the request ID assigned by the chi
// RequestID middleware, or "" outside a request
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// GetAPIKeyFromContext retrieves the caller's API key from context
func GetAPIKeyFromContext(ctx context.Context) string {
	if val := ctx.Value(APIKeyKey); val != nil {
		if apiKey, ok := val.(string); ok {
			return apiKey
		}
	}
	return ""
}

// WithAPIKey adds an API key to the context
func WithAPIKey(ctx context.Context, apiKey string) context.Context {
	return context.WithValue(ctx, APIKeyKey, apiKey)
}

// IsAdminFromContext reports whether the caller authenticated as admin
func IsAdminFromContext(ctx context.Context) bool {
	if val := ctx.Value(AdminKey); val != nil {
		if isAdmin, ok := val.(bool); ok {
			return isAdmin
		}
	}
	return false
}

// WithAdmin marks the caller as admin in the context
func WithAdmin(ctx context.Context, isAdmin bool) context.Context {
	return context.WithValue(ctx, AdminKey, isAdmin)
}
