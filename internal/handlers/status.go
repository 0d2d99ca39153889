package handlers

import (
	"time"

	"relaychat/server/internal/middleware"
	"relaychat/server/internal/models"

	"github.com/gofiber/fiber/v2"
)

// StatusResponse is one user's presence.
type StatusResponse struct {
	UserID   int64      `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen"`
}

// FriendsStatusResponse splits friends' presence into two maps keyed by id.
type FriendsStatusResponse struct {
	OnlineStatus map[int64]bool       `json:"online_status"`
	LastSeen     map[int64]*time.Time `json:"last_seen"`
}

func newStatusResponse(userID int64, p models.Presence) StatusResponse {
	return StatusResponse{UserID: userID, IsOnline: p.IsOnline, LastSeen: p.LastSeen}
}

// GetMyStatus returns the caller's own presence
func (h *Handler) GetMyStatus(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	presence, err := h.hub.Presence().GetStatus(ctx, userID)
	if err != nil {
		return storeError(c, "get status", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    newStatusResponse(userID, presence),
	})
}

// GetUserStatus returns another user's presence. Unknown users are offline.
func (h *Handler) GetUserStatus(c *fiber.Ctx) error {
	targetID, ok := parseID(c.Params("userId"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid user ID",
		})
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	presence, err := h.hub.Presence().GetStatus(ctx, targetID)
	if err != nil {
		return storeError(c, "get status", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    newStatusResponse(targetID, presence),
	})
}

// GetFriendsStatus returns the presence of every friend that has one
func (h *Handler) GetFriendsStatus(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	statuses, err := h.hub.Presence().GetFriendsStatus(ctx, userID)
	if err != nil {
		return storeError(c, "get friends status", err)
	}

	resp := FriendsStatusResponse{
		OnlineStatus: make(map[int64]bool, len(statuses)),
		LastSeen:     make(map[int64]*time.Time, len(statuses)),
	}
	for id, p := range statuses {
		resp.OnlineStatus[id] = p.IsOnline
		resp.LastSeen[id] = p.LastSeen
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    resp,
	})
}

// Heartbeat keeps the caller online for clients that poll instead of
// holding a websocket open.
func (h *Handler) Heartbeat(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	if err := h.hub.HeartbeatUser(ctx, userID); err != nil {
		return storeError(c, "heartbeat", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"status":    "online",
			"timestamp": time.Now().UTC(),
		},
	})
}
