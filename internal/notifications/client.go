package notifications

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Viewers only send subscription requests.
	maxMessageSize   = 2048
	maxSubscriptions = 32

	sendBuffer = 64
)

var dropNotice = []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)

// WSHub is implemented by hubs that own clients.
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// subscribeRequest narrows a viewer's feed to tag prefixes, e.g. a park page
// sends {"subscribe":["park:zion"]} and then only sees park:zion and
// park:zion:things invalidations.
type subscribeRequest struct {
	Subscribe []string `json:"subscribe"`
}

type subscribedReply struct {
	Type string   `json:"type"`
	Tags []string `json:"tags"`
}

// Client is one live feed connection.
type Client struct {
	Hub  WSHub
	Conn *websocket.Conn
	Send chan []byte

	// Viewer is the caller provider id, or the remote IP for anonymous viewers.
	Viewer string

	mu       sync.RWMutex
	prefixes []string

	closeOnce sync.Once
}

// NewClient creates a client that receives every invalidation until it subscribes.
func NewClient(hub WSHub, conn *websocket.Conn, viewer string) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		Viewer: viewer,
		Send:   make(chan []byte, sendBuffer),
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// Subscribe replaces the client's tag prefixes. Blank entries are dropped and
// the list is capped; an empty list restores the full feed.
func (c *Client) Subscribe(prefixes []string) []string {
	clean := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		clean = append(clean, p)
		if len(clean) == maxSubscriptions {
			break
		}
	}
	c.mu.Lock()
	c.prefixes = clean
	c.mu.Unlock()
	return clean
}

// Wants reports whether any tag falls under one of the client's prefixes.
func (c *Client) Wants(tags []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.prefixes) == 0 {
		return true
	}
	for _, tag := range tags {
		for _, p := range c.prefixes {
			if tag == p || strings.HasPrefix(tag, p+":") {
				return true
			}
		}
	}
	return false
}

// handleMessage applies a subscription request and acknowledges it.
// Anything else a viewer sends is ignored.
func (c *Client) handleMessage(raw []byte) {
	var req subscribeRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Subscribe == nil {
		middleware.Logger.Debug("ignoring feed message", slog.String("viewer", c.Viewer))
		return
	}
	ack, err := json.Marshal(subscribedReply{Type: "subscribed", Tags: c.Subscribe(req.Subscribe)})
	if err != nil {
		return
	}
	c.TrySend(ack)
}

// ReadPump processes subscription requests, pongs and close frames until the
// connection ends, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { return c.Conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		kind, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				middleware.Logger.Debug("feed read error", slog.String("viewer", c.Viewer), slog.String("error", err.Error()))
			}
			return
		}
		if kind == websocket.TextMessage {
			c.handleMessage(raw)
		}
	}
}

// WritePump writes queued messages and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues message without blocking. A full buffer drops the message
// and queues a drop notice so the viewer knows to refetch.
func (c *Client) TrySend(message []byte) {
	defer func() {
		if r := recover(); r != nil {
			observability.FeedDrops.WithLabelValues("closed").Inc()
		}
	}()

	select {
	case c.Send <- message:
	default:
		observability.FeedDrops.WithLabelValues("full").Inc()
		select {
		case c.Send <- dropNotice:
		default:
		}
	}
}
