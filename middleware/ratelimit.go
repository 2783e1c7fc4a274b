package middleware

import (
	"sync"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	SkipPaths         []string
	KeyGenerator      func(*fiber.Ctx) string
	// IdleTTL evicts the limiter of a key that has not been seen for this long.
	IdleTTL time.Duration
}

// RateLimiting applies a token bucket per key (client IP by default).
// A non-positive RequestsPerSecond disables limiting.
func RateLimiting(config RateLimitConfig) fiber.Handler {
	if config.RequestsPerSecond <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if config.BurstSize < 1 {
		config.BurstSize = 1
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = func(c *fiber.Ctx) string {
			return c.IP()
		}
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}

	limiters := cache.New(config.IdleTTL, config.IdleTTL)
	var mu sync.Mutex

	limiterFor := func(key string) *rate.Limiter {
		if v, ok := limiters.Get(key); ok {
			limiter := v.(*rate.Limiter)
			limiters.SetDefault(key, limiter)
			return limiter
		}
		mu.Lock()
		defer mu.Unlock()
		// Double-check after acquiring the lock
		if v, ok := limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
		limiter := rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize)
		limiters.SetDefault(key, limiter)
		return limiter
	}

	return func(c *fiber.Ctx) error {
		if shouldSkipPath(c.Path(), config.SkipPaths) {
			return c.Next()
		}

		key := config.KeyGenerator(c)
		if !limiterFor(key).Allow() {
			utils.GetLogger().WithTraceID(utils.GetTraceID(c)).WithSource("rate_limiter").Warn(
				"Rate limit exceeded", map[string]interface{}{
					"key":                 key,
					"path":                c.Path(),
					"requests_per_second": config.RequestsPerSecond,
					"burst_size":          config.BurstSize,
				})
			c.Set(fiber.HeaderRetryAfter, "1")
			return utils.StatusErrorResponse(c, fiber.StatusTooManyRequests, archerr.RateLimited, "Too many requests")
		}

		return c.Next()
	}
}
