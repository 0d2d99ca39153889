package websocket

import (
	"context"
	"fmt"
	"time"

	"relaychat/server/internal/store"

	"github.com/gofiber/fiber/v2/log"
)

// ReceiptCoordinator batch-marks messages read and echoes a receipt to the
// original sender.
type ReceiptCoordinator struct {
	messages store.MessageStore
	registry *Registry
	timeout  time.Duration
}

// NewReceiptCoordinator bounds every store call by timeout.
func NewReceiptCoordinator(messages store.MessageStore, registry *Registry, timeout time.Duration) *ReceiptCoordinator {
	return &ReceiptCoordinator{
		messages: messages,
		registry: registry,
		timeout:  timeout,
	}
}

// MarkRead flips the unread messages among ids that peerID sent to readerID
// and returns how many changed. A receipt goes to the peer even when nothing
// changed; it is dropped if the peer is not connected.
func (rc *ReceiptCoordinator) MarkRead(ctx context.Context, readerID, peerID int64, ids []int64) (int64, error) {
	ctx, cancel := withTimeout(ctx, rc.timeout)
	defer cancel()

	updated, err := rc.messages.MarkRead(ctx, readerID, peerID, ids)
	if err != nil {
		return 0, fmt.Errorf("mark messages from %d read for %d: %w", peerID, readerID, err)
	}

	rc.notify(readerID, peerID, ids, updated)
	return updated, nil
}

// MarkAllRead flips every unread message peerID sent to readerID.
func (rc *ReceiptCoordinator) MarkAllRead(ctx context.Context, readerID, peerID int64) (int64, error) {
	ctx, cancel := withTimeout(ctx, rc.timeout)
	defer cancel()

	updated, err := rc.messages.MarkAllRead(ctx, readerID, peerID)
	if err != nil {
		return 0, fmt.Errorf("mark all messages from %d read for %d: %w", peerID, readerID, err)
	}

	rc.notify(readerID, peerID, nil, updated)
	return updated, nil
}

func (rc *ReceiptCoordinator) notify(readerID, peerID int64, ids []int64, updated int64) {
	peer, ok := rc.registry.Lookup(peerID)
	if !ok {
		return
	}

	if err := peer.Send(NewReadReceipt(readerID, peerID, ids, updated)); err != nil {
		log.Debugw("read receipt dropped", "from_id", readerID, "to_id", peerID, "error", err)
	}
}
