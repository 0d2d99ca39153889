package websocket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relaychat/server/internal/models"
	"relaychat/server/internal/store"
)

// PresenceTracker reads and writes persisted presence and resolves friends'
// presence. Callers serialize mutations per user; see Hub.
type PresenceTracker struct {
	presence store.PresenceStore
	friends  store.FriendGraph
	timeout  time.Duration
	now      func() time.Time
}

// NewPresenceTracker bounds every store call by timeout.
func NewPresenceTracker(presence store.PresenceStore, friends store.FriendGraph, timeout time.Duration) *PresenceTracker {
	return &PresenceTracker{
		presence: presence,
		friends:  friends,
		timeout:  timeout,
		now:      time.Now,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// SetOnline persists is_online=true, last_seen=null and refreshes the
// heartbeat stamp the reaper checks.
func (p *PresenceTracker) SetOnline(ctx context.Context, userID int64) error {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.presence.SetOnline(ctx, userID, p.now()); err != nil {
		return fmt.Errorf("set user %d online: %w", userID, err)
	}
	return nil
}

// SetOffline persists is_online=false, last_seen=now.
func (p *PresenceTracker) SetOffline(ctx context.Context, userID int64) error {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.presence.SetOffline(ctx, userID, p.now()); err != nil {
		return fmt.Errorf("set user %d offline: %w", userID, err)
	}
	return nil
}

// GetStatus returns the user's presence; unknown users are reported offline.
func (p *PresenceTracker) GetStatus(ctx context.Context, userID int64) (models.Presence, error) {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	presence, err := p.presence.GetPresence(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.OfflinePresence(), nil
	}
	if err != nil {
		return models.Presence{}, fmt.Errorf("get status of user %d: %w", userID, err)
	}
	return presence, nil
}

// FriendIDs returns the accepted friends of userID, in either edge direction.
func (p *PresenceTracker) FriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	ids, err := p.friends.ListAcceptedFriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends of user %d: %w", userID, err)
	}
	return ids, nil
}

// GetFriendsStatus maps each friend of userID to their presence. Friends
// without a presence row are left out.
func (p *PresenceTracker) GetFriendsStatus(ctx context.Context, userID int64) (map[int64]models.Presence, error) {
	ids, err := p.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return map[int64]models.Presence{}, nil
	}

	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	statuses, err := p.presence.GetPresences(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get friends status of user %d: %w", userID, err)
	}
	return statuses, nil
}

// StaleCandidates lists online users whose last heartbeat is older than
// timeout, with the cutoff it used. Nothing is changed; pass each id and the
// cutoff to ReapUser.
func (p *PresenceTracker) StaleCandidates(ctx context.Context, timeout time.Duration) ([]int64, time.Time, error) {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	cutoff := p.now().Add(-timeout)
	ids, err := p.presence.StaleUserIDs(ctx, cutoff)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("list stale presence: %w", err)
	}
	return ids, cutoff, nil
}

// ReapUser flips userID offline if it is still online with no heartbeat since
// cutoff, and reports whether it did. A second call finds nothing to flip.
func (p *PresenceTracker) ReapUser(ctx context.Context, userID int64, cutoff time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	flipped, err := p.presence.ReapUser(ctx, userID, cutoff, p.now())
	if err != nil {
		return false, fmt.Errorf("reap user %d: %w", userID, err)
	}
	return flipped, nil
}
