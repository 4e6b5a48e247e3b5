package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/authguard/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokenManager() *TokenManager {
	return NewTokenManager(testSecret, "authguard", time.Hour)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newSubjectRouter(tm *TokenManager) http.Handler {
	r := chi.NewRouter()
	r.Route("/v1/subjects/{subject}", func(r chi.Router) {
		r.Use(AuthMiddleware(tm))
		r.Use(RequireSubjectAccess("subject"))
		r.Get("/lockout", okHandler().ServeHTTP)
		r.With(RequireRole(models.RoleAdmin)).Delete("/lockout", okHandler().ServeHTTP)
	})
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	h := newSubjectRouter(newTestTokenManager())

	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, http.MethodGet, "/v1/subjects/alice/lockout", ""))
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	h := AuthMiddleware(newTestTokenManager())(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	h := newSubjectRouter(newTestTokenManager())

	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, http.MethodGet, "/v1/subjects/alice/lockout", "not-a-jwt"))
}

func TestAuthMiddleware_InjectsClaims(t *testing.T) {
	tm := newTestTokenManager()
	token, err := tm.GenerateToken("alice", models.RoleClient)
	require.NoError(t, err)

	var got *models.TokenClaims
	h := AuthMiddleware(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClaimsFromContext(r)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Subject)
	assert.Equal(t, models.RoleClient, got.Role)
}

func TestRequireSubjectAccess(t *testing.T) {
	tm := newTestTokenManager()
	h := newSubjectRouter(tm)

	alice, err := tm.GenerateToken("alice", models.RoleClient)
	require.NoError(t, err)
	admin, err := tm.GenerateToken("ops", models.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/v1/subjects/alice/lockout", alice))
	assert.Equal(t, http.StatusForbidden, doRequest(t, h, http.MethodGet, "/v1/subjects/bob/lockout", alice))
	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/v1/subjects/bob/lockout", admin))
}

func TestRequireRole(t *testing.T) {
	tm := newTestTokenManager()
	h := newSubjectRouter(tm)

	alice, err := tm.GenerateToken("alice", models.RoleClient)
	require.NoError(t, err)
	admin, err := tm.GenerateToken("ops", models.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, doRequest(t, h, http.MethodDelete, "/v1/subjects/alice/lockout", alice))
	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodDelete, "/v1/subjects/alice/lockout", admin))
}

func TestRequireRole_NoClaims(t *testing.T) {
	h := RequireRole(models.RoleAdmin)(okHandler())
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
