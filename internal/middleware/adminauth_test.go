package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func adminRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAdminAuthMiddleware(t *testing.T) {
	hash := hashPassword(t, "s3cret")

	t.Run("disabled without a configured hash", func(t *testing.T) {
		handler := NewAdminAuthMiddleware("").Handler(okHandler())
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, adminRequest("anything"))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		handler := NewAdminAuthMiddleware(hash).Handler(okHandler())
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, adminRequest(""))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("wrong password", func(t *testing.T) {
		handler := NewAdminAuthMiddleware(hash).Handler(okHandler())
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, adminRequest("guess"))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid password", func(t *testing.T) {
		handler := NewAdminAuthMiddleware(hash).Handler(okHandler())
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, adminRequest("s3cret"))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("locks out after repeated failures", func(t *testing.T) {
		handler := NewAdminAuthMiddleware(hash).Handler(okHandler())

		for i := 0; i < loginMaxFailures; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, adminRequest("guess"))
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, adminRequest("s3cret"))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestLoginRateLimiter(t *testing.T) {
	limiter := NewLoginRateLimiter()

	assert.True(t, limiter.isAllowed("1.2.3.4"))
	for i := 0; i < loginMaxFailures; i++ {
		limiter.recordFailure("1.2.3.4")
	}
	assert.False(t, limiter.isAllowed("1.2.3.4"))
	assert.True(t, limiter.isAllowed("5.6.7.8"))
}
