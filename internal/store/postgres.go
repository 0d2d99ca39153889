package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relaychat/server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `id, from_id, to_id, content, image_url, image_name, msg_type, created_at, is_read`

// SQLSTATE unique_violation
const uniqueViolation = "23505"

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool. The schema must already exist.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) CreateMessage(ctx context.Context, msg *models.Message) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO messages (from_id, to_id, content, image_url, image_name, msg_type, created_at, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, msg.FromID, msg.ToID, msg.Content, msg.ImageURL, msg.ImageName, string(msg.Type), msg.CreatedAt, msg.IsRead).
		Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (p *Postgres) MarkRead(ctx context.Context, readerID, peerID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE id = ANY($1) AND from_id = $2 AND to_id = $3 AND is_read = FALSE
	`, ids, peerID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) MarkAllRead(ctx context.Context, readerID, peerID int64) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE from_id = $1 AND to_id = $2 AND is_read = FALSE
	`, peerID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark all messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) History(ctx context.Context, userID, peerID int64, limit, offset int) ([]models.Message, error) {
	limit, offset = NormalizePage(limit, offset)

	rows, err := p.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (from_id = $1 AND to_id = $2) OR (from_id = $2 AND to_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, userID, peerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return collectMessages(rows)
}

func (p *Postgres) Unread(ctx context.Context, userID int64) ([]models.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE to_id = $1 AND is_read = FALSE
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query unread: %w", err)
	}
	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Message, error) {
		var msg models.Message
		var msgType string
		err := row.Scan(&msg.ID, &msg.FromID, &msg.ToID, &msg.Content, &msg.ImageURL,
			&msg.ImageName, &msgType, &msg.CreatedAt, &msg.IsRead)
		msg.Type = models.MessageType(msgType)
		return msg, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

func (p *Postgres) GetPresence(ctx context.Context, userID int64) (models.Presence, error) {
	var presence models.Presence
	err := p.pool.QueryRow(ctx, `
		SELECT is_online, last_seen FROM presence WHERE user_id = $1
	`, userID).Scan(&presence.IsOnline, &presence.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Presence{}, ErrNotFound
	}
	if err != nil {
		return models.Presence{}, fmt.Errorf("get presence: %w", err)
	}
	return presence, nil
}

func (p *Postgres) GetPresences(ctx context.Context, userIDs []int64) (map[int64]models.Presence, error) {
	out := make(map[int64]models.Presence, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT user_id, is_online, last_seen FROM presence WHERE user_id = ANY($1)
	`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("get presences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var presence models.Presence
		if err := rows.Scan(&id, &presence.IsOnline, &presence.LastSeen); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		out[id] = presence
	}
	return out, rows.Err()
}

func (p *Postgres) SetOnline(ctx context.Context, userID int64, at time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO presence (user_id, is_online, last_seen, heartbeat_at)
		VALUES ($1, TRUE, NULL, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET is_online = TRUE, last_seen = NULL, heartbeat_at = EXCLUDED.heartbeat_at
	`, userID, at)
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

func (p *Postgres) SetOffline(ctx context.Context, userID int64, at time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO presence (user_id, is_online, last_seen, heartbeat_at)
		VALUES ($1, FALSE, $2, NULL)
		ON CONFLICT (user_id) DO UPDATE
		SET is_online = FALSE, last_seen = GREATEST(EXCLUDED.last_seen, presence.heartbeat_at)
	`, userID, at)
	if err != nil {
		return fmt.Errorf("set offline: %w", err)
	}
	return nil
}

func (p *Postgres) StaleUserIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT user_id FROM presence
		WHERE is_online = TRUE AND (heartbeat_at IS NULL OR heartbeat_at < $1)
		ORDER BY user_id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale presence: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan stale ids: %w", err)
	}
	return ids, nil
}

func (p *Postgres) ReapUser(ctx context.Context, userID int64, cutoff, at time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE presence
		SET is_online = FALSE, last_seen = GREATEST($3::timestamptz, heartbeat_at)
		WHERE user_id = $1 AND is_online = TRUE AND (heartbeat_at IS NULL OR heartbeat_at < $2)
	`, userID, cutoff, at)
	if err != nil {
		return false, fmt.Errorf("reap presence: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) ListAcceptedFriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT friend_id FROM friends WHERE user_id = $1 AND status = 'accepted'
		UNION
		SELECT user_id FROM friends WHERE friend_id = $1 AND status = 'accepted'
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan friend ids: %w", err)
	}
	return ids, nil
}

func (p *Postgres) AddFriendEdge(ctx context.Context, edge models.FriendEdge) (models.FriendEdge, error) {
	if edge.Status == "" {
		edge.Status = models.FriendPending
	}

	err := p.pool.QueryRow(ctx, `
		INSERT INTO friends (user_id, friend_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, edge.UserID, edge.FriendID, edge.Status).Scan(&edge.ID, &edge.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return models.FriendEdge{}, ErrDuplicateEdge
	}
	if err != nil {
		return models.FriendEdge{}, fmt.Errorf("insert friend edge: %w", err)
	}
	return edge, nil
}
