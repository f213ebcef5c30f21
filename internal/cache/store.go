package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Read keys. Entries live under "read:" so they never collide with tag sets.
const (
	ParksKey      = "read:parks"
	CategoriesKey = "read:categories"
)

// TTLs bound staleness when an invalidation is missed.
const (
	ContentTTL  = 1 * time.Hour
	ActivityTTL = 5 * time.Minute

	// tagSetSlack keeps a tag set alive a little longer than its longest entry.
	tagSetSlack = time.Minute
)

func ParkKey(slug string) string       { return "read:park:" + slug }
func ParkThingsKey(slug string) string { return "read:park:" + slug + ":things" }
func ThingKey(id uint) string          { return fmt.Sprintf("read:thing:%d", id) }
func ThingVotesKey(id uint) string     { return fmt.Sprintf("read:thing:%d:votes", id) }
func ThingCommentsKey(id uint) string  { return fmt.Sprintf("read:thing:%d:comments", id) }

// Store is the tagged read cache. A nil Redis client turns every read into a
// pass-through to the fetch function.
type Store struct {
	rdb *redis.Client
}

// NewStore returns a Store backed by rdb, which may be nil.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if s.rdb == nil {
		return false, nil
	}
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetTagged stores v under key and registers key in the set of every tag,
// all in one MULTI/EXEC so a key is never cached without its registrations.
func (s *Store) SetTagged(ctx context.Context, key string, v any, ttl time.Duration, tags ...string) error {
	if s.rdb == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, b, ttl)
		for _, tag := range dedupe(tags) {
			pipe.SAdd(ctx, tagSetKey(tag), key)
			pipe.Expire(ctx, tagSetKey(tag), ttl+tagSetSlack)
		}
		return nil
	})
	return err
}

// Tagged tries Redis first; on a miss it calls fetch (which must populate
// dest) and caches the result under key, registered with tags. Cache errors
// are logged and never fail the read.
func (s *Store) Tagged(ctx context.Context, key string, tags []string, ttl time.Duration, dest any, fetch func(ctx context.Context) error) error {
	found, err := s.GetJSON(ctx, key, dest)
	switch {
	case err != nil:
		observability.CacheLookups.WithLabelValues("error").Inc()
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	case found:
		observability.CacheLookups.WithLabelValues("hit").Inc()
		return nil
	default:
		observability.CacheLookups.WithLabelValues("miss").Inc()
	}

	if err := fetch(ctx); err != nil {
		return err
	}

	if err := s.SetTagged(ctx, key, dest, ttl, tags...); err != nil {
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}
