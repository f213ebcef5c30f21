// Package notifications fans cache invalidation events out to live viewers.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"

	"github.com/alexdfirestone/national-parks/internal/cache"
	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Notifier subscribes to the invalidation events every replica publishes.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a Notifier. A nil client yields a Notifier that never
// delivers anything.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

var errEmptyEvent = errors.New("invalidation event has no tags")

// decodeEvent parses a published payload. Events without tags carry nothing
// a viewer could refetch and are rejected; an unknown mode is treated as
// eventual.
func decodeEvent(payload string) (cache.Event, error) {
	var ev cache.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, err
	}
	if len(ev.Tags) == 0 {
		return ev, errEmptyEvent
	}
	if ev.Mode != cache.ModeImmediate {
		ev.Mode = cache.ModeEventual
	}
	return ev, nil
}

// StartInvalidationSubscriber subscribes to cache.InvalidationChannel and
// calls onEvent for every valid event until ctx is cancelled. The
// subscription is confirmed before it returns.
func (n *Notifier) StartInvalidationSubscriber(ctx context.Context, onEvent func(cache.Event)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, cache.InvalidationChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, err := decodeEvent(msg.Payload)
				if err != nil {
					observability.FeedDrops.WithLabelValues("malformed").Inc()
					middleware.Logger.Warn("dropping invalidation event", slog.String("error", err.Error()))
					continue
				}
				deliver(onEvent, ev)
			}
		}
	}()
	return nil
}

// deliver keeps a panicking handler from killing the subscriber.
func deliver(onEvent func(cache.Event), ev cache.Event) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("panic delivering invalidation event",
				slog.String("event_id", ev.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	onEvent(ev)
}
