package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"relaychat/server/internal/models"

	"github.com/mattn/go-sqlite3"
)

// SQLite is a Store backed by database/sql and the go-sqlite3 driver.
// Timestamps are stored as unix nanoseconds.
type SQLite struct {
	conn *sql.DB
}

// NewSQLite wraps a database opened by database.OpenSQLite.
func NewSQLite(conn *sql.DB) *SQLite {
	return &SQLite{conn: conn}
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *SQLite) CreateMessage(ctx context.Context, msg *models.Message) error {
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO messages (from_id, to_id, content, image_url, image_name, msg_type, created_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.FromID, msg.ToID, msg.Content, msg.ImageURL, msg.ImageName, string(msg.Type), toNanos(msg.CreatedAt), msg.IsRead)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read message id: %w", err)
	}
	msg.ID = id
	return nil
}

func (s *SQLite) MarkRead(ctx context.Context, readerID, peerID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, peerID, readerID)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE from_id = ? AND to_id = ? AND is_read = 0 AND id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) MarkAllRead(ctx context.Context, readerID, peerID int64) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE from_id = ? AND to_id = ? AND is_read = 0
	`, peerID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark all messages read: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) History(ctx context.Context, userID, peerID int64, limit, offset int) ([]models.Message, error) {
	limit, offset = NormalizePage(limit, offset)

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, peerID, peerID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return scanSQLiteMessages(rows)
}

func (s *SQLite) Unread(ctx context.Context, userID int64) ([]models.Message, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE to_id = ? AND is_read = 0
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query unread: %w", err)
	}
	return scanSQLiteMessages(rows)
}

func scanSQLiteMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var msgType string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.FromID, &msg.ToID, &msg.Content, &msg.ImageURL,
			&msg.ImageName, &msgType, &createdAt, &msg.IsRead); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Type = models.MessageType(msgType)
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLite) GetPresence(ctx context.Context, userID int64) (models.Presence, error) {
	var presence models.Presence
	var lastSeen sql.NullInt64
	err := s.conn.QueryRowContext(ctx, `
		SELECT is_online, last_seen FROM presence WHERE user_id = ?
	`, userID).Scan(&presence.IsOnline, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Presence{}, ErrNotFound
	}
	if err != nil {
		return models.Presence{}, fmt.Errorf("get presence: %w", err)
	}
	presence.LastSeen = fromNanos(lastSeen)
	return presence, nil
}

func (s *SQLite) GetPresences(ctx context.Context, userIDs []int64) (map[int64]models.Presence, error) {
	out := make(map[int64]models.Presence, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT user_id, is_online, last_seen FROM presence WHERE user_id IN (`+placeholders(len(userIDs))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("get presences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var presence models.Presence
		var lastSeen sql.NullInt64
		if err := rows.Scan(&id, &presence.IsOnline, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		presence.LastSeen = fromNanos(lastSeen)
		out[id] = presence
	}
	return out, rows.Err()
}

func (s *SQLite) SetOnline(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO presence (user_id, is_online, last_seen, heartbeat_at)
		VALUES (?, 1, NULL, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET is_online = 1, last_seen = NULL, heartbeat_at = excluded.heartbeat_at
	`, userID, toNanos(at))
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

func (s *SQLite) SetOffline(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO presence (user_id, is_online, last_seen, heartbeat_at)
		VALUES (?, 0, ?, NULL)
		ON CONFLICT (user_id) DO UPDATE
		SET is_online = 0, last_seen = MAX(excluded.last_seen, COALESCE(presence.heartbeat_at, excluded.last_seen))
	`, userID, toNanos(at))
	if err != nil {
		return fmt.Errorf("set offline: %w", err)
	}
	return nil
}

func (s *SQLite) StaleUserIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT user_id FROM presence
		WHERE is_online = 1 AND (heartbeat_at IS NULL OR heartbeat_at < ?)
		ORDER BY user_id
	`, toNanos(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list stale presence: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) ReapUser(ctx context.Context, userID int64, cutoff, at time.Time) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE presence
		SET is_online = 0, last_seen = MAX(?3, COALESCE(heartbeat_at, ?3))
		WHERE user_id = ?1 AND is_online = 1 AND (heartbeat_at IS NULL OR heartbeat_at < ?2)
	`, userID, toNanos(cutoff), toNanos(at))
	if err != nil {
		return false, fmt.Errorf("reap presence: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read reaped rows: %w", err)
	}
	return n == 1, nil
}

func (s *SQLite) ListAcceptedFriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT friend_id FROM friends WHERE user_id = ?1 AND status = 'accepted'
		UNION
		SELECT user_id FROM friends WHERE friend_id = ?1 AND status = 'accepted'
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan friend id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) AddFriendEdge(ctx context.Context, edge models.FriendEdge) (models.FriendEdge, error) {
	if edge.Status == "" {
		edge.Status = models.FriendPending
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO friends (user_id, friend_id, status, created_at) VALUES (?, ?, ?, ?)
	`, edge.UserID, edge.FriendID, edge.Status, toNanos(edge.CreatedAt))
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return models.FriendEdge{}, ErrDuplicateEdge
	}
	if err != nil {
		return models.FriendEdge{}, fmt.Errorf("insert friend edge: %w", err)
	}

	edge.ID, err = res.LastInsertId()
	if err != nil {
		return models.FriendEdge{}, fmt.Errorf("read friend edge id: %w", err)
	}
	return edge, nil
}
