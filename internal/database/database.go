// Package database opens the relational backends and creates their schema.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS friends (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		friend_id BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_friends_user ON friends(user_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_friends_friend ON friends(friend_id, status)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_friends_pair ON friends(LEAST(user_id, friend_id), GREATEST(user_id, friend_id))`,
	`CREATE TABLE IF NOT EXISTS presence (
		user_id BIGINT PRIMARY KEY,
		is_online BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen TIMESTAMPTZ,
		heartbeat_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_presence_online ON presence(is_online, heartbeat_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		from_id BIGINT NOT NULL,
		to_id BIGINT NOT NULL,
		content TEXT,
		image_url TEXT,
		image_name TEXT,
		msg_type TEXT NOT NULL CHECK (msg_type IN ('text', 'image', 'mixed')),
		created_at TIMESTAMPTZ NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		CHECK (content IS NOT NULL OR image_url IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(from_id, to_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(to_id, is_read)`,
}

// Timestamps are stored as unix nanoseconds so range comparisons stay numeric.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS friends (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		friend_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_friends_user ON friends(user_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_friends_friend ON friends(friend_id, status)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_friends_pair ON friends(min(user_id, friend_id), max(user_id, friend_id))`,
	`CREATE TABLE IF NOT EXISTS presence (
		user_id INTEGER PRIMARY KEY,
		is_online INTEGER NOT NULL DEFAULT 0,
		last_seen INTEGER,
		heartbeat_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_presence_online ON presence(is_online, heartbeat_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_id INTEGER NOT NULL,
		to_id INTEGER NOT NULL,
		content TEXT,
		image_url TEXT,
		image_name TEXT,
		msg_type TEXT NOT NULL CHECK (msg_type IN ('text', 'image', 'mixed')),
		created_at INTEGER NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		CHECK (content IS NOT NULL OR image_url IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(from_id, to_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(to_id, is_read)`,
}

// ConnectPostgres opens a pgx pool, pings it and makes sure the schema exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, query := range postgresSchema {
		if _, err := pool.Exec(ctx, query); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Info("✅ Database connected successfully using PGX")
	return pool, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file with WAL and
// foreign keys enabled and makes sure the schema exists.
func OpenSQLite(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// one writer at a time; sqlite serializes writes anyway
	conn.SetMaxOpenConns(1)

	for _, query := range sqliteSchema {
		if _, err := conn.Exec(query); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Infof("✅ SQLite database ready at %s", path)
	return conn, nil
}
