package handlers

import (
	"context"

	ws "relaychat/server/internal/websocket"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// WebSocketUpgrade checks if the request should be upgraded to WebSocket
func WebSocketUpgrade(c *fiber.Ctx) error {
	// Check if this is a WebSocket upgrade request
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}

	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"success": false,
		"error":   "WebSocket upgrade required",
	})
}

// WebSocketHandler runs one chat session per upgraded connection. The user
// id comes from the auth middleware, which has already rejected bad tokens.
func (h *Handler) WebSocketHandler() fiber.Handler {
	opts := ws.ClientOptions{
		SendBuffer:   h.cfg.SendBuffer,
		WriteTimeout: h.cfg.WriteTimeout,
		IdleTimeout:  h.cfg.IdleTimeout,
	}

	return websocket.New(func(c *websocket.Conn) {
		userID, ok := c.Locals("userID").(int64)
		if !ok {
			log.Warnw("websocket session without user id", "remote", c.RemoteAddr().String())
			c.Close()
			return
		}

		if h.cfg.MaxFrameSize > 0 {
			c.SetReadLimit(h.cfg.MaxFrameSize)
		}

		client := ws.NewClient(userID, c, opts)

		// Blocks until the session ends
		h.hub.Serve(context.Background(), client)
	})
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"onlineUsers": h.hub.GetOnlineCount(),
			"userIds":     h.hub.GetOnlineUsers(),
		},
	})
}
