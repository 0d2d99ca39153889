package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"relaychat/server/internal/models"
)

type presenceRow struct {
	presence    models.Presence
	heartbeatAt *time.Time
}

// Memory is an in-process Store. It backs tests and single-process dev runs;
// nothing survives a restart.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	nextEdge int64
	messages []models.Message
	presence map[int64]*presenceRow
	friends  []models.FriendEdge
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		presence: make(map[int64]*presenceRow),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	msg.ID = m.nextID
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *Memory) MarkRead(ctx context.Context, readerID, peerID int64, ids []int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var updated int64
	for i := range m.messages {
		msg := &m.messages[i]
		if _, ok := wanted[msg.ID]; !ok {
			continue
		}
		if msg.FromID == peerID && msg.ToID == readerID && !msg.IsRead {
			msg.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (m *Memory) MarkAllRead(ctx context.Context, readerID, peerID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var updated int64
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.FromID == peerID && msg.ToID == readerID && !msg.IsRead {
			msg.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (m *Memory) History(ctx context.Context, userID, peerID int64, limit, offset int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit, offset = NormalizePage(limit, offset)

	m.mu.RLock()
	var conv []models.Message
	for _, msg := range m.messages {
		if (msg.FromID == userID && msg.ToID == peerID) || (msg.FromID == peerID && msg.ToID == userID) {
			conv = append(conv, msg)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(conv, func(i, j int) bool {
		if conv[i].CreatedAt.Equal(conv[j].CreatedAt) {
			return conv[i].ID > conv[j].ID
		}
		return conv[i].CreatedAt.After(conv[j].CreatedAt)
	})

	if offset >= len(conv) {
		return []models.Message{}, nil
	}
	conv = conv[offset:]
	if limit < len(conv) {
		conv = conv[:limit]
	}
	return conv, nil
}

func (m *Memory) Unread(ctx context.Context, userID int64) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Message{}
	for _, msg := range m.messages {
		if msg.ToID == userID && !msg.IsRead {
			out = append(out, msg)
		}
	}
	// messages is already in id order, which matches creation order
	return out, nil
}

func (m *Memory) GetPresence(ctx context.Context, userID int64) (models.Presence, error) {
	if err := ctx.Err(); err != nil {
		return models.Presence{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.presence[userID]
	if !ok {
		return models.Presence{}, ErrNotFound
	}
	return row.presence, nil
}

func (m *Memory) GetPresences(ctx context.Context, userIDs []int64) (map[int64]models.Presence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64]models.Presence, len(userIDs))
	for _, id := range userIDs {
		if row, ok := m.presence[id]; ok {
			out[id] = row.presence
		}
	}
	return out, nil
}

func (m *Memory) SetOnline(ctx context.Context, userID int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stamp := at
	m.presence[userID] = &presenceRow{
		presence:    models.Presence{IsOnline: true},
		heartbeatAt: &stamp,
	}
	return nil
}

func (m *Memory) SetOffline(ctx context.Context, userID int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.presence[userID]
	if !ok {
		row = &presenceRow{}
		m.presence[userID] = row
	}
	seen := latest(at, row.heartbeatAt)
	row.presence = models.Presence{IsOnline: false, LastSeen: &seen}
	return nil
}

func stale(row *presenceRow, cutoff time.Time) bool {
	if !row.presence.IsOnline {
		return false
	}
	return row.heartbeatAt == nil || row.heartbeatAt.Before(cutoff)
}

func (m *Memory) StaleUserIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for id, row := range m.presence {
		if stale(row, cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) ReapUser(ctx context.Context, userID int64, cutoff, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.presence[userID]
	if !ok || !stale(row, cutoff) {
		return false, nil
	}
	seen := latest(at, row.heartbeatAt)
	row.presence = models.Presence{IsOnline: false, LastSeen: &seen}
	return true, nil
}

func (m *Memory) ListAcceptedFriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for _, edge := range m.friends {
		if edge.Status != models.FriendAccepted {
			continue
		}
		if edge.UserID == userID || edge.FriendID == userID {
			ids = append(ids, edge.Other(userID))
		}
	}
	return dedupe(ids), nil
}

func (m *Memory) AddFriendEdge(ctx context.Context, edge models.FriendEdge) (models.FriendEdge, error) {
	if err := ctx.Err(); err != nil {
		return models.FriendEdge{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.friends {
		if (e.UserID == edge.UserID && e.FriendID == edge.FriendID) ||
			(e.UserID == edge.FriendID && e.FriendID == edge.UserID) {
			return models.FriendEdge{}, ErrDuplicateEdge
		}
	}

	m.nextEdge++
	edge.ID = m.nextEdge
	if edge.Status == "" {
		edge.Status = models.FriendPending
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}
	m.friends = append(m.friends, edge)
	return edge, nil
}
