package websocket

import (
	"context"
	"fmt"
	"time"

	"relaychat/server/internal/models"
	"relaychat/server/internal/store"

	"github.com/gofiber/fiber/v2/log"
)

// RouteResult is the outcome of routing one message.
type RouteResult struct {
	Message   models.Message
	Delivered bool
}

// MessageRouter validates, persists and forwards chat messages.
type MessageRouter struct {
	messages store.MessageStore
	registry *Registry
	timeout  time.Duration
	now      func() time.Time
}

// NewMessageRouter bounds every store call by timeout.
func NewMessageRouter(messages store.MessageStore, registry *Registry, timeout time.Duration) *MessageRouter {
	return &MessageRouter{
		messages: messages,
		registry: registry,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Route persists a message from senderID and pushes it to the recipient's
// live session if there is one. Invalid requests are rejected before
// anything is stored. Delivery is best effort: a failed push is not an error.
func (r *MessageRouter) Route(ctx context.Context, senderID int64, req SendFrame) (RouteResult, error) {
	body, err := models.NewBody(req.Content, req.ImageURL, req.ImageName)
	if err != nil {
		return RouteResult{}, err
	}

	msg, err := models.NewMessage(senderID, req.ToID, body, r.now().UTC())
	if err != nil {
		return RouteResult{}, err
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.messages.CreateMessage(ctx, &msg); err != nil {
		return RouteResult{}, fmt.Errorf("persist message from %d to %d: %w", senderID, req.ToID, err)
	}

	result := RouteResult{Message: msg}

	target, ok := r.registry.Lookup(msg.ToID)
	if !ok {
		return result, nil
	}

	if err := target.Send(DeliveryEvent{Message: msg}); err != nil {
		log.Debugw("message delivery dropped", "message_id", msg.ID, "to_id", msg.ToID, "error", err)
		return result, nil
	}

	result.Delivered = true
	return result, nil
}
