package handlers

import (
	"errors"

	"relaychat/server/internal/middleware"
	"relaychat/server/internal/models"
	"relaychat/server/internal/store"

	"github.com/gofiber/fiber/v2"
)

// AddFriendRequest represents add friend request body
type AddFriendRequest struct {
	FriendID int64 `json:"friend_id"`
}

// AddFriend records an accepted friendship between the caller and friend_id.
// Both users see each other's presence from then on. A pair already joined
// by an edge, in either direction, gets 409.
func (h *Handler) AddFriend(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req AddFriendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	if req.FriendID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "friend_id is required",
		})
	}

	// Prevent self-adding
	if req.FriendID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Cannot add yourself as a friend",
		})
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	edge, err := h.store.AddFriendEdge(ctx, models.FriendEdge{
		UserID:   userID,
		FriendID: req.FriendID,
		Status:   models.FriendAccepted,
	})
	if errors.Is(err, store.ErrDuplicateEdge) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "Already friends",
		})
	}
	if err != nil {
		return storeError(c, "add friend", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    edge,
	})
}

// GetFriends returns the ids of the caller's accepted friends
func (h *Handler) GetFriends(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	ids, err := h.hub.Presence().FriendIDs(ctx, userID)
	if err != nil {
		return storeError(c, "list friends", err)
	}
	if ids == nil {
		ids = []int64{}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    ids,
	})
}
