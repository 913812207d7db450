package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/rendezvous-server-go/internal/audit"
	apperrors "github.com/openclaw/rendezvous-server-go/internal/errors"
	"github.com/openclaw/rendezvous-server-go/internal/util"
)

// AdminAuthMiddleware guards /admin with a bearer password checked against a
// bcrypt hash. Without a configured hash the admin surface is disabled.
type AdminAuthMiddleware struct {
	passwordHash string
	failures     *LoginRateLimiter
}

func NewAdminAuthMiddleware(passwordHash string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		passwordHash: passwordHash,
		failures:     NewLoginRateLimiter(),
	}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.passwordHash == "" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "Admin access not configured",
			})
			return
		}

		ip := audit.ClientIP(r)
		if !m.failures.isAllowed(ip) {
			w.Header().Set("Retry-After", "60")
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		token := extractBearer(r)
		if token == "" {
			writeError(w, apperrors.Unauthorized("Missing admin credentials"))
			return
		}

		if !util.CheckPasswordHash(token, m.passwordHash) {
			m.failures.recordFailure(ip)
			log.Warn().Str("ip", ip).Msg("admin auth: invalid password")
			writeError(w, apperrors.Unauthorized("Invalid admin credentials"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
