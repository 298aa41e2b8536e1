package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const rateLimitPrefix = "rl:auth:"

// localLimiter is the per-process fallback used when Redis is not configured
// or unreachable.
type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newLocalLimiter(perMinute int) *localLimiter {
	return &localLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) > 10000 {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// AuthRateLimit caps API-key authenticated requests per client IP, which
// bounds how fast secrets can be guessed. Counting happens in Redis when
// cache is set so the cap holds across instances.
func AuthRateLimit(cache *redis.Client, perMinute int, logger *slog.Logger) fiber.Handler {
	if perMinute <= 0 {
		perMinute = 60
	}
	local := newLocalLimiter(perMinute)
	return func(c *fiber.Ctx) error {
		if strings.TrimSpace(c.Get(APIKeyHeader)) == "" {
			return c.Next()
		}
		key := rateLimitPrefix + c.IP()

		allowed := true
		if cache != nil {
			cnt, err := cache.Incr(c.UserContext(), key).Result()
			if err == nil {
				if cnt == 1 {
					cache.Expire(c.UserContext(), key, time.Minute)
				}
				allowed = cnt <= int64(perMinute)
			} else {
				logger.Warn("rate limit store unavailable, using local limiter", slog.Any("error", err))
				allowed = local.allow(key)
			}
		} else {
			allowed = local.allow(key)
		}

		if !allowed {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(http.StatusTooManyRequests, "too many API key requests, try again later")
		}
		return c.Next()
	}
}
