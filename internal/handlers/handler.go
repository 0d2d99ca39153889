package handlers

import (
	"context"
	"errors"
	"strconv"

	"relaychat/server/internal/config"
	"relaychat/server/internal/store"
	ws "relaychat/server/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// Handler serves the REST and websocket endpoints of one hub.
type Handler struct {
	hub   *ws.Hub
	store store.Store
	cfg   *config.Config
}

// New creates a Handler.
func New(hub *ws.Hub, st store.Store, cfg *config.Config) *Handler {
	return &Handler{hub: hub, store: st, cfg: cfg}
}

func (h *Handler) storeContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.cfg.StoreTimeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.cfg.StoreTimeout)
}

// storeError answers with 504 when the store timed out and 500 otherwise.
func storeError(c *fiber.Ctx, action string, err error) error {
	log.Errorw("store call failed", "action", action, "path", c.Path(), "error", err)

	if errors.Is(err, context.DeadlineExceeded) {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
			"success": false,
			"error":   "Database timed out",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "Database error",
	})
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
