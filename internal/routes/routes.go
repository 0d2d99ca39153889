package routes

import (
	"relaychat/server/internal/handlers"
	"relaychat/server/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h *handlers.Handler, tokens middleware.TokenValidator) {
	auth := middleware.Auth(tokens)

	// API v1 group
	api := app.Group("/api/v1")

	// Health check (public)
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "Relay chat API is running",
		})
	})

	// Presence routes (protected); /friends/status must come before /:userId/status
	users := api.Group("/users", auth)
	users.Get("/status", middleware.RelaxedRateLimiter(), h.GetMyStatus)
	users.Get("/friends/status", middleware.RelaxedRateLimiter(), h.GetFriendsStatus)
	users.Get("/:userId/status", middleware.RelaxedRateLimiter(), h.GetUserStatus)
	users.Post("/status/heartbeat", middleware.ModerateRateLimiter(), h.Heartbeat)

	// Friend routes (protected)
	friends := api.Group("/friends", auth)
	friends.Get("/", h.GetFriends)
	friends.Post("/", middleware.ModerateRateLimiter(), h.AddFriend)

	// Message routes (protected)
	messages := api.Group("/messages", auth)
	messages.Get("/history", middleware.RelaxedRateLimiter(), h.GetHistory)
	messages.Get("/unread", middleware.RelaxedRateLimiter(), h.GetUnread)
	messages.Post("/read", middleware.ModerateRateLimiter(), h.MarkAsRead)

	// WebSocket stats (protected, for debugging); registered before /ws/:token
	api.Get("/ws/stats", auth, h.GetWebSocketStats)

	// WebSocket routes (protected). Browsers cannot set headers on the
	// handshake, so the token may also ride in the path.
	session := h.WebSocketHandler()
	api.Get("/ws", auth, middleware.StrictRateLimiter(), handlers.WebSocketUpgrade, session)
	api.Get("/ws/:token", auth, middleware.StrictRateLimiter(), handlers.WebSocketUpgrade, session)
}
