// Package store holds the persistence collaborators used by the realtime core:
// message rows, per-user presence rows, and the read-only friend graph.
package store

import (
	"context"
	"errors"
	"time"

	"relaychat/server/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEdge is returned when a friend edge already joins the pair,
	// in either direction.
	ErrDuplicateEdge = errors.New("friend edge already exists")
)

// MessageStore persists direct messages.
type MessageStore interface {
	// CreateMessage inserts msg and fills in its assigned ID.
	CreateMessage(ctx context.Context, msg *models.Message) error
	// MarkRead flips is_read on those ids sent by peerID to readerID that are
	// still unread, returning how many rows changed.
	MarkRead(ctx context.Context, readerID, peerID int64, ids []int64) (int64, error)
	// MarkAllRead flips every unread message from peerID to readerID.
	MarkAllRead(ctx context.Context, readerID, peerID int64) (int64, error)
	// History returns the conversation between two users, newest first.
	History(ctx context.Context, userID, peerID int64, limit, offset int) ([]models.Message, error)
	// Unread returns messages addressed to userID that are unread, oldest first.
	Unread(ctx context.Context, userID int64) ([]models.Message, error)
}

// PresenceStore persists one presence row per user.
type PresenceStore interface {
	// GetPresence returns ErrNotFound when the user has no presence row.
	GetPresence(ctx context.Context, userID int64) (models.Presence, error)
	// GetPresences bulk-reads presence; ids without a row are absent from the result.
	GetPresences(ctx context.Context, userIDs []int64) (map[int64]models.Presence, error)
	// SetOnline marks the user online, clears last_seen and stamps heartbeat_at.
	SetOnline(ctx context.Context, userID int64, at time.Time) error
	// SetOffline marks the user offline with last_seen = max(at, heartbeat_at).
	SetOffline(ctx context.Context, userID int64, at time.Time) error
	// StaleUserIDs lists online users whose heartbeat_at is missing or older
	// than cutoff.
	StaleUserIDs(ctx context.Context, cutoff time.Time) ([]int64, error)
	// ReapUser flips userID offline with last_seen = max(at, heartbeat_at),
	// but only while the row is still online and stale at cutoff. It reports
	// whether the row changed.
	ReapUser(ctx context.Context, userID int64, cutoff, at time.Time) (bool, error)
}

// FriendGraph resolves accepted friendships.
type FriendGraph interface {
	// ListAcceptedFriendIDs returns the distinct ids on the other side of every
	// accepted edge touching userID, regardless of edge direction.
	ListAcceptedFriendIDs(ctx context.Context, userID int64) ([]int64, error)
	// AddFriendEdge records a relation between two users. At most one edge
	// joins a pair; a second one fails with ErrDuplicateEdge.
	AddFriendEdge(ctx context.Context, edge models.FriendEdge) (models.FriendEdge, error)
}

// Store is the full persistence surface of one backend.
type Store interface {
	MessageStore
	PresenceStore
	FriendGraph
	Close() error
}

// History paging bounds.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// NormalizePage clamps a history page request into range.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func latest(at time.Time, heartbeat *time.Time) time.Time {
	if heartbeat != nil && heartbeat.After(at) {
		return *heartbeat
	}
	return at
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
