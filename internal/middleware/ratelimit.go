package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/openclaw/rendezvous-server-go/internal/audit"
	apperrors "github.com/openclaw/rendezvous-server-go/internal/errors"
)

const (
	maxEntries     = 10000
	entryTTL       = 5 * time.Minute
	windowDuration = time.Minute
)

// Limiter decides whether one more request for key fits in a per-minute
// budget. RateLimiter and RedisRateLimiter implement it.
type Limiter interface {
	Check(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt int64)
}

type rateLimitEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter is a process-local token bucket per key.
type RateLimiter struct {
	mu    sync.Mutex
	store map[string]*rateLimitEntry
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		store: make(map[string]*rateLimitEntry),
	}
}

func (rl *RateLimiter) Check(_ context.Context, key string, limit int) (bool, int, int64) {
	now := time.Now()
	perSecond := rate.Limit(float64(limit) / windowDuration.Seconds())

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.store[key]
	if !exists {
		if len(rl.store) >= maxEntries {
			rl.evict(now)
		}
		entry = &rateLimitEntry{limiter: rate.NewLimiter(perSecond, limit)}
		rl.store[key] = entry
	}
	entry.lastAccess = now

	allowed := entry.limiter.AllowN(now, 1)
	tokens := entry.limiter.TokensAt(now)

	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	// Seconds until the bucket is full again, or until the next token when empty.
	missing := float64(limit) - tokens
	if !allowed {
		missing = 1 - tokens
	}
	resetAt := now.Add(time.Duration(missing / float64(perSecond) * float64(time.Second))).Unix()

	return allowed, remaining, resetAt
}

// Evict drops keys idle for longer than the entry TTL and reports how many
// were removed.
func (rl *RateLimiter) Evict() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.evict(time.Now())
}

// evict must be called with mu held.
func (rl *RateLimiter) evict(now time.Time) int {
	removed := 0
	for key, entry := range rl.store {
		if now.Sub(entry.lastAccess) > entryTTL {
			delete(rl.store, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.store)
}

// RateLimitMiddleware applies a per-client-IP budget to a route group.
type RateLimitMiddleware struct {
	limiter Limiter
	limit   int
	prefix  string
}

func NewRateLimitMiddleware(limiter Limiter, limit int, prefix string) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		prefix:  prefix,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := audit.ClientIP(r)
		key := "ip:" + m.prefix + ":" + ip

		allowed, remaining, resetAt := m.limiter.Check(r.Context(), key, m.limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			log.Warn().Str("ip", ip).Str("scope", m.prefix).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
