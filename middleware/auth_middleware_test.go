package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// captureHandler records what the middleware left in the request context.
type captureHandler struct {
	called bool
	apiKey string
	admin  bool
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.apiKey = GetAPIKeyFromContext(r.Context())
	h.admin = IsAdminFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func TestRequireAPIKey_MissingHeader(t *testing.T) {
	mw := NewAuthMiddleware("admin-secret", zap.NewNop())
	next := &captureHandler{}

	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	rec := httptest.NewRecorder()
	mw.RequireAPIKey(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, next.called)
	assert.Contains(t, rec.Body.String(), "Missing or invalid authorization")
}

func TestRequireAPIKey_BareKey(t *testing.T) {
	mw := NewAuthMiddleware("admin-secret", zap.NewNop())
	next := &captureHandler{}

	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	req.Header.Set("Authorization", "user-key-123")
	rec := httptest.NewRecorder()
	mw.RequireAPIKey(next).ServeHTTP(rec, req)

	require.True(t, next.called)
	assert.Equal(t, "user-key-123", next.apiKey)
	assert.False(t, next.admin)
}

func TestRequireAPIKey_StripsBearerPrefix(t *testing.T) {
	mw := NewAuthMiddleware("admin-secret", zap.NewNop())

	for _, header := range []string{
		"Bearer user-key-123",
		"bearer user-key-123",
		"  Bearer   user-key-123  ",
	} {
		next := &captureHandler{}
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		mw.RequireAPIKey(next).ServeHTTP(rec, req)

		require.True(t, next.called, "header %q", header)
		assert.Equal(t, "user-key-123", next.apiKey, "header %q", header)
	}
}

func TestRequireAPIKey_AdminKeySetsAdminFlag(t *testing.T) {
	mw := NewAuthMiddleware("admin-secret", zap.NewNop())
	next := &captureHandler{}

	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	req.Header.Set("Authorization", "admin-secret")
	rec := httptest.NewRecorder()
	mw.RequireAPIKey(next).ServeHTTP(rec, req)

	require.True(t, next.called)
	assert.True(t, next.admin)
}

func TestRequireAPIKey_EmptyAdminKeyDisablesAdmin(t *testing.T) {
	// With no admin key configured, no caller can be admin. In particular
	// an empty Authorization header must not match an empty admin key.
	mw := NewAuthMiddleware("", zap.NewNop())
	next := &captureHandler{}

	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	req.Header.Set("Authorization", "some-key")
	rec := httptest.NewRecorder()
	mw.RequireAPIKey(next).ServeHTTP(rec, req)

	require.True(t, next.called)
	assert.False(t, next.admin)
}

func TestRequireAdmin_RejectsNonAdmin(t *testing.T) {
	mw := NewAuthMiddleware("admin-secret", zap.NewNop())
	next := &captureHandler{}

	req := httptest.NewRequest(http.MethodGet, "/users/some-key", nil)
	req = req.WithContext(WithAdmin(WithAPIKey(req.Context(), "user-key"), false))
	rec := httptest.NewRecorder()
	mw.RequireAdmin(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, next.called)
	assert.Contains(t, rec.Body.String(), "Admin access required")
}

func TestRequireAdmin_AllowsAdmin(t *testing.T) {
	mw := NewAuthMiddleware("admin-secret", zap.NewNop())
	next := &captureHandler{}

	req := httptest.NewRequest(http.MethodGet, "/users/some-key", nil)
	req = req.WithContext(WithAdmin(WithAPIKey(req.Context(), "admin-secret"), true))
	rec := httptest.NewRecorder()
	mw.RequireAdmin(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, next.called)
}

func TestExtractAPIKey_NonBearerSchemeIsOpaque(t *testing.T) {
	// Unknown schemes are treated as part of the opaque key rather than
	// rejected; the service never interprets key contents.
	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "Basic dXNlcjpwYXNz", extractAPIKey(req))
}
