package handlers

import (
	"relaychat/server/internal/middleware"
	"relaychat/server/internal/store"

	"github.com/gofiber/fiber/v2"
)

// GetHistory returns the conversation with another user, newest first
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	peerID, ok := parseID(c.Query("user_id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "user_id is required",
		})
	}

	// Pagination
	limit, offset := store.NormalizePage(
		c.QueryInt("limit", store.DefaultHistoryLimit),
		c.QueryInt("offset", 0),
	)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	messages, err := h.store.History(ctx, userID, peerID, limit, offset)
	if err != nil {
		return storeError(c, "get history", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    messages,
		"pagination": fiber.Map{
			"limit":  limit,
			"offset": offset,
		},
	})
}

// GetUnread returns every unread message sent to the caller, oldest first
func (h *Handler) GetUnread(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	messages, err := h.store.Unread(ctx, userID)
	if err != nil {
		return storeError(c, "get unread", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    messages,
	})
}

// MarkAsRead marks every message from from_id to the caller as read and
// sends the sender a read receipt if they are connected.
func (h *Handler) MarkAsRead(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	peerID, ok := parseID(c.Query("from_id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "from_id is required",
		})
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	updated, err := h.hub.Receipts().MarkAllRead(ctx, userID, peerID)
	if err != nil {
		return storeError(c, "mark read", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"updated": updated,
		},
	})
}
