// Package cache provides the Redis-backed read cache, its tag registry and
// the tag invalidation dispatcher.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alexdfirestone/national-parks/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

// errorHook counts failed commands by the keyspace they touched, so read
// cache, tag registry, rate limit and pub/sub failures can be told apart.
type errorHook struct{}

func (errorHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			middleware.RedisErrors.WithLabelValues(cmd.Name(), keyspaceOf(cmd)).Inc()
		}
		return err
	}
}

func (errorHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			space := "mixed"
			if len(cmds) > 0 {
				space = keyspaceOf(cmds[0])
			}
			middleware.RedisErrors.WithLabelValues("pipeline", space).Inc()
		}
		return err
	}
}

// keyspaceOf returns the prefix of the command's first key ("read", "tag",
// "rl") or "none" for keyless commands.
func keyspaceOf(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return "none"
	}
	key, ok := args[1].(string)
	if !ok || key == "" {
		return "none"
	}
	if prefix, _, found := strings.Cut(key, ":"); found {
		return prefix
	}
	return "other"
}

// InitRedis connects to a host:port address or a redis:// URL. It returns nil
// when Redis is unreachable; callers then run without a read cache, tag
// registry or live feed.
func InitRedis(addr string) *redis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	rdb, err := Connect(ctx, addr)
	if err != nil {
		middleware.Logger.Warn("Redis unavailable, continuing without cache",
			slog.String("addr", redactAddr(addr)),
			slog.String("error", err.Error()))
		return nil
	}
	middleware.Logger.Info("Redis connected", slog.String("addr", redactAddr(addr)))
	return rdb
}

// Connect dials Redis and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}

	rdb := redis.NewClient(opts)
	rdb.AddHook(errorHook{})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// redactAddr drops credentials from a redis:// URL before it is logged.
func redactAddr(addr string) string {
	scheme, rest, ok := strings.Cut(addr, "://")
	if !ok {
		return addr
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}
