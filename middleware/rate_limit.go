package middleware

import (
	"sync"
	"time"

	"meu_perito_go/services"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the configuration for rate limiting
type RateLimitConfig struct {
	// Requests is the number of requests allowed per Window, also the burst size
	Requests int
	Window   time.Duration
	// KeyFunc returns the bucket key for a request (defaults to the actor id, then IP)
	KeyFunc func(c echo.Context) string
	// Message is returned when the limit is exceeded
	Message string
	// IdleTTL drops buckets unused for this long (defaults to 10 windows)
	IdleTTL time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	config    RateLimitConfig
	mu        sync.Mutex
	store     map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Requests <= 0 {
		config.Requests = 1
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.KeyFunc == nil {
		config.KeyFunc = func(c echo.Context) string {
			if actor, ok := GetActor(c); ok {
				return "actor:" + actor.ID
			}
			return "ip:" + c.RealIP()
		}
	}
	if config.Message == "" {
		config.Message = "Too many requests. Please try again later."
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * config.Window
	}

	return &RateLimiter{
		config: config,
		store:  make(map[string]*limiterEntry),
		now:    time.Now,
	}
}

// Allow consumes one token from key's bucket
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	entry, ok := rl.store[key]
	if !ok {
		every := rl.config.Window / time.Duration(rl.config.Requests)
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(every), rl.config.Requests)}
		rl.store[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops idle buckets at most once per window; callers hold mu
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.config.Window {
		return
	}
	rl.lastSweep = now
	for key, entry := range rl.store {
		if now.Sub(entry.lastSeen) > rl.config.IdleTTL {
			delete(rl.store, key)
		}
	}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(rl.config.KeyFunc(c)) {
				return &services.DocketError{
					Code:    services.CodeRateLimited,
					Message: rl.config.Message,
					Cause:   services.ErrRateLimited,
				}
			}
			return next(c)
		}
	}
}

// NewExtractRateLimiter limits document extraction per actor
func NewExtractRateLimiter(perMinute int) *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Requests: perMinute,
		Window:   time.Minute,
		Message:  "Too many documents submitted. Please wait a minute before trying again.",
	})
}
