package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/alexdfirestone/national-parks/internal/cache"
	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per viewer
	maxConnsPerViewer = 8
	// Max total connections
	maxTotalConns = 10000
)

// FeedMessage is what viewers receive for each invalidation.
type FeedMessage struct {
	Tags []string   `json:"tags"`
	Mode cache.Mode `json:"mode"`
	At   int64      `json:"at"`
}

// Hub tracks live feed connections keyed by viewer.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	closed     bool
}

// NewHub creates an empty feed hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*Client]struct{})}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "invalidation feed" }

// Register a connection for a viewer. Returns the Client or error if limits exceeded.
func (h *Hub) Register(viewer string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errors.New("feed is shutting down")
	}
	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.conns[viewer]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[viewer] = m
	}
	if len(m) >= maxConnsPerViewer {
		return nil, errors.New("viewer connection limit reached")
	}

	client := NewClient(h, conn, viewer)
	m[client] = struct{}{}
	h.totalConns++
	observability.FeedConnections.Inc()
	return client, nil
}

// UnregisterClient removes client; it is safe to call more than once.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.Viewer]
	if !ok {
		return
	}
	if _, exists := m[client]; exists {
		delete(m, client)
		h.totalConns--
		observability.FeedConnections.Dec()
		client.closeSend()
	}
	if len(m) == 0 {
		delete(h.conns, client.Viewer)
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// Publish encodes ev as a FeedMessage and sends it to every client
// subscribed to one of its tags.
func (h *Hub) Publish(ev cache.Event) {
	payload, err := json.Marshal(FeedMessage{Tags: ev.Tags, Mode: ev.Mode, At: ev.At})
	if err != nil {
		middleware.Logger.Warn("failed to encode feed message", slog.String("error", err.Error()))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.conns {
		for c := range clients {
			if c.Wants(ev.Tags) {
				c.TrySend(payload)
			}
		}
	}
}

// StartWiring connects the Notifier to this hub so every invalidation from any
// replica reaches local viewers.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartInvalidationSubscriber(ctx, h.Publish)
}

// Shutdown gracefully closes all websocket connections
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for viewer, viewerConns := range h.conns {
		for client := range viewerConns {
			client.closeSend()
			observability.FeedConnections.Dec()
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				middleware.Logger.Debug("failed to write close message", slog.String("viewer", viewer), slog.String("error", err.Error()))
			}
			if err := client.Conn.Close(); err != nil {
				middleware.Logger.Debug("failed to close websocket", slog.String("viewer", viewer), slog.String("error", err.Error()))
			}
		}
	}
	h.conns = make(map[string]map[*Client]struct{})
	h.totalConns = 0
	return nil
}
