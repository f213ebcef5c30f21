package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestNewRateLimiter_DisabledLocally(t *testing.T) {
	for _, env := range []string{"", "test", "development", "stress"} {
		l := NewRateLimiter(nil, env)
		d, err := l.Allow(context.Background(), VoteLimit, "ip:1.2.3.4")
		require.NoError(t, err, env)
		assert.True(t, d.Allowed, env)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	l := NewRateLimiter(rdb, "production")
	limit := Limit{Name: "vote", Max: 2, Window: time.Minute}
	ctx := context.Background()

	for want := 1; want >= 0; want-- {
		d, err := l.Allow(ctx, limit, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, want, d.Remaining)
	}

	d, err := l.Allow(ctx, limit, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, time.Minute, d.RetryAfter)
	assert.True(t, mr.TTL("rl:vote:ip:1.2.3.4") > 0)

	mr.FastForward(2 * time.Minute)
	d, err = l.Allow(ctx, limit, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimiter_NilRedis(t *testing.T) {
	l := NewRateLimiter(nil, "production")
	_, err := l.Allow(context.Background(), VoteLimit, "ip:1.2.3.4")
	assert.ErrorIs(t, err, errNoRedis)

	tests := []struct {
		name   string
		policy FailPolicy
		want   int
	}{
		{"fail open", FailOpen, http.StatusOK},
		{"fail closed", FailClosed, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			limit := Limit{Name: "upload", Max: 1, Window: time.Minute, Policy: tt.policy}
			app.Post("/api/upload", l.Middleware(limit), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/upload", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRateLimiter_MiddlewareKeysGuestsByIP(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	l := NewRateLimiter(rdb, "production")

	app := fiber.New()
	app.Post("/things/:id/votes",
		Identity(IdentityConfig{AllowGuest: true, GuestProviderID: "guest"}),
		l.Middleware(Limit{Name: "vote", Max: 1, Window: time.Minute}),
		func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) },
	)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/things/1/votes", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/things/1/votes", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "rl:vote:ip:")
}
