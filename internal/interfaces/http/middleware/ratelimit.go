package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter limits requests per user with a Redis-backed GCRA limiter,
// so the limit holds across service replicas.
type RateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	logger  *zap.Logger
}

// NewRateLimiter allows perMinute requests per user
func NewRateLimiter(rdb *redis.Client, perMinute int, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit:   redis_rate.PerMinute(perMinute),
		logger:  logger,
	}
}

// Middleware enforces the limit. It must run after RequireUser. If Redis is
// unreachable the request is let through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ratelimit:anonymous"
		if id, ok := UserID(r.Context()); ok {
			key = "ratelimit:user:" + id.String()
		}

		res, err := l.limiter.Allow(r.Context(), key, l.limit)
		if err != nil {
			l.logger.Warn("rate limiter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit.Rate))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.Allowed == 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
