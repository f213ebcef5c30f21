package server

import (
	"log/slog"

	"github.com/alexdfirestone/national-parks/internal/featureflags"
	"github.com/alexdfirestone/national-parks/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// InvalidationFeedHandler streams cache invalidation events to viewers.
// GET /api/ws/invalidations
// @Summary Invalidation feed
// @Description WebSocket stream of cache invalidation events. Send {"subscribe":["park:zion"]} to filter.
// @Tags feed
// @Success 101
// @Failure 404 {object} object{error=string}
// @Failure 426 {object} object{error=string}
// @Router /ws/invalidations [get]
func (s *Server) InvalidationFeedHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		viewer, _ := conn.Locals("viewer").(string)

		client, err := s.hub.Register(viewer, conn)
		if err != nil {
			middleware.Logger.Warn("feed registration rejected", slog.String("viewer", viewer), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})

	return func(c *fiber.Ctx) error {
		viewer := c.IP()
		if caller, err := s.identity.ParseCaller(bearerToken(c)); err == nil {
			viewer = caller.ProviderID
		}
		if !s.featureFlags.Enabled(featureflags.LiveFeed, viewer) || s.hub == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Live feed is not available"})
		}
		if !websocket.IsWebSocketUpgrade(c) {
			return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
		}
		c.Locals("viewer", viewer)
		return upgrade(c)
	}
}

func bearerToken(c *fiber.Ctx) string {
	const prefix = "Bearer "
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
