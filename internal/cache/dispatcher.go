package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexdfirestone/national-parks/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InvalidationChannel carries an Event for every dispatched invalidation.
const InvalidationChannel = "cache:invalidations"

// Mode describes how quickly an invalidation must take effect.
type Mode string

const (
	// ModeEventual drops entries with UNLINK; concurrent readers may still see stale data briefly.
	ModeEventual Mode = "eventual"
	// ModeImmediate drops entries in a MULTI/EXEC so the next read in the same request cycle recomputes.
	ModeImmediate Mode = "immediate"
)

// Event is published on InvalidationChannel after tags are dropped.
type Event struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
	Mode Mode     `json:"mode"`
	At   int64    `json:"at"`
}

// Dispatcher drops cached reads by tag. Without Redis it is a no-op.
type Dispatcher struct {
	rdb *redis.Client
	now func() time.Time
}

// NewDispatcher returns a Dispatcher backed by rdb, which may be nil.
func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb, now: time.Now}
}

// Invalidate drops every entry registered under tags on the eventual path.
func (d *Dispatcher) Invalidate(ctx context.Context, tags ...string) error {
	return d.dispatch(ctx, ModeEventual, tags)
}

// Refresh drops every entry registered under tags atomically, for callers
// that read their own write in the same request cycle.
func (d *Dispatcher) Refresh(ctx context.Context, tags ...string) error {
	return d.dispatch(ctx, ModeImmediate, tags)
}

func (d *Dispatcher) dispatch(ctx context.Context, mode Mode, tags []string) error {
	tags = dedupe(tags)
	if len(tags) == 0 {
		return nil
	}
	observability.TagInvalidations.WithLabelValues(string(mode)).Add(float64(len(tags)))

	if d.rdb == nil {
		return nil
	}

	ctx, span := observability.StartInvalidationSpan(ctx, string(mode), tags)
	defer span.End()

	keys, err := d.registeredKeys(ctx, tags)
	if err != nil {
		observability.RecordErrorInContext(ctx, err)
		return err
	}

	switch mode {
	case ModeImmediate:
		_, err = d.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			return nil
		})
	default:
		_, err = d.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Unlink(ctx, keys...)
			return nil
		})
	}
	if err != nil {
		observability.RecordErrorInContext(ctx, err)
		return fmt.Errorf("drop tagged keys: %w", err)
	}

	return d.publish(ctx, Event{
		ID:   uuid.NewString(),
		Tags: tags,
		Mode: mode,
		At:   d.now().UnixMilli(),
	})
}

// registeredKeys returns the members of every tag set plus the sets themselves.
func (d *Dispatcher) registeredKeys(ctx context.Context, tags []string) ([]string, error) {
	cmds := make([]*redis.StringSliceCmd, len(tags))
	_, err := d.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, tag := range tags {
			cmds[i] = pipe.SMembers(ctx, tagSetKey(tag))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read tag sets: %w", err)
	}

	keys := make([]string, 0, len(tags)*2)
	for i, tag := range tags {
		keys = append(keys, cmds[i].Val()...)
		keys = append(keys, tagSetKey(tag))
	}
	return dedupe(keys), nil
}

func (d *Dispatcher) publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal invalidation event: %w", err)
	}
	if err := d.rdb.Publish(ctx, InvalidationChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation event: %w", err)
	}
	return nil
}
