package db

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Connect opens the database for driver ("postgres" or "sqlite3") and applies migrations.
func Connect(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Open connects without touching the schema.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if driver == "sqlite3" {
		// an in-memory database lives only as long as its single connection
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id SERIAL PRIMARY KEY,
        username TEXT NOT NULL UNIQUE,
        avatar TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE TABLE IF NOT EXISTS chats (
        id SERIAL PRIMARY KEY,
        name TEXT NOT NULL,
        is_group_chat BOOLEAN NOT NULL DEFAULT FALSE,
        admin_id INT NOT NULL,
        last_message_id INT,
        created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
        chat_id INT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        user_id INT NOT NULL,
        position INT NOT NULL,
        PRIMARY KEY(chat_id, user_id)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_chat_participants_user ON chat_participants(user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
        id SERIAL PRIMARY KEY,
        chat_id INT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        sender_id INT NOT NULL,
        content TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT 'sent',
        reply_to_id INT,
        is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, id);`,
	`CREATE TABLE IF NOT EXISTS message_attachments (
        id SERIAL PRIMARY KEY,
        message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        url TEXT NOT NULL,
        local_path TEXT NOT NULL DEFAULT ''
    );`,
	`CREATE TABLE IF NOT EXISTS message_receipts (
        message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        user_id INT NOT NULL,
        delivered_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
        seen_at TIMESTAMPTZ,
        PRIMARY KEY(message_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS message_reactions (
        message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        user_id INT NOT NULL,
        emoji TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY(message_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS stories (
        id SERIAL PRIMARY KEY,
        posted_by INT NOT NULL,
        kind TEXT NOT NULL,
        caption TEXT NOT NULL DEFAULT '',
        text TEXT NOT NULL DEFAULT '',
        background_color TEXT NOT NULL DEFAULT '',
        media_url TEXT NOT NULL DEFAULT '',
        media_local_path TEXT NOT NULL DEFAULT '',
        expires_at TIMESTAMPTZ NOT NULL,
        created_at TIMESTAMPTZ NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS idx_stories_expires ON stories(expires_at);`,
	`CREATE TABLE IF NOT EXISTS story_audience (
        story_id INT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
        user_id INT NOT NULL,
        PRIMARY KEY(story_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS story_views (
        story_id INT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
        user_id INT NOT NULL,
        viewed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY(story_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS contacts (
        owner_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        contact_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        category TEXT NOT NULL DEFAULT 'friend',
        is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY(owner_id, contact_id)
    );`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, dialect(db.DriverName(), m)); err != nil {
			return err
		}
	}
	log.Printf("database migrations applied driver=%s", db.DriverName())
	return nil
}

func dialect(driver, stmt string) string {
	if driver != "sqlite3" {
		return stmt
	}
	stmt = strings.ReplaceAll(stmt, "SERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT")
	return strings.ReplaceAll(stmt, "TIMESTAMPTZ", "TIMESTAMP")
}
