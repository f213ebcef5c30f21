package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when Redis cannot be reached.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

// Limit is a fixed-window quota on one kind of write.
type Limit struct {
	Name   string
	Max    int
	Window time.Duration
	Policy FailPolicy
}

// Quotas for the public write endpoints.
var (
	CreateThingLimit = Limit{Name: "create_thing", Max: 5, Window: 5 * time.Minute}
	VoteLimit        = Limit{Name: "vote", Max: 30, Window: time.Minute}
	CommentLimit     = Limit{Name: "comment", Max: 10, Window: time.Minute}
	FlagLimit        = Limit{Name: "flag", Max: 10, Window: 10 * time.Minute}
	UploadLimit      = Limit{Name: "upload", Max: 20, Window: time.Minute, Policy: FailClosed}
)

var errNoRedis = errors.New("redis client is nil")

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter counts writes per caller in Redis. It is a no-op in local
// environments so development and load tests are not throttled.
type RateLimiter struct {
	rdb      *redis.Client
	disabled bool
}

// NewRateLimiter returns a limiter for the given APP_ENV.
func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	switch env {
	case "", "test", "development", "stress":
		return &RateLimiter{rdb: rdb, disabled: true}
	}
	return &RateLimiter{rdb: rdb}
}

// Allow records one hit against limit for id.
func (l *RateLimiter) Allow(ctx context.Context, limit Limit, id string) (Decision, error) {
	if l == nil || l.disabled {
		return Decision{Allowed: true, Remaining: limit.Max}, nil
	}
	if l.rdb == nil {
		return Decision{}, errNoRedis
	}

	key := "rl:" + limit.Name + ":" + id
	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, err
	}
	if cnt == 1 {
		if err := l.rdb.Expire(ctx, key, limit.Window).Err(); err != nil {
			return Decision{}, err
		}
	}

	d := Decision{Allowed: cnt <= int64(limit.Max), Remaining: max(limit.Max-int(cnt), 0)}
	if !d.Allowed {
		ttl, err := l.rdb.TTL(ctx, key).Result()
		if err != nil || ttl <= 0 {
			ttl = limit.Window
		}
		d.RetryAfter = ttl
	}
	return d, nil
}

// rateLimitKey identifies the caller. Guests share a provider id, so they
// are keyed by IP like anonymous requests.
func rateLimitKey(c *fiber.Ctx) string {
	if caller, ok := CallerFrom(c); ok && !caller.Guest {
		return "caller:" + caller.ProviderID
	}
	return "ip:" + c.IP()
}

// Middleware enforces limit on a route. Identity must run first for
// per-caller keys.
func (l *RateLimiter) Middleware(limit Limit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		d, err := l.Allow(ctx, limit, rateLimitKey(c))
		if err != nil {
			if limit.Policy == FailClosed {
				Logger.WarnContext(ctx, "rate limit store unavailable",
					slog.String("limit", limit.Name),
					slog.String("error", err.Error()),
				)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(d.RetryAfter.Round(time.Second)/time.Second)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, try again later",
			})
		}
		return c.Next()
	}
}
