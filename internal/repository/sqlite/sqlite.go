// Package sqlite stores conversations and messages in a single SQLite file.
// It suits single-node deployments; change signals stay in-process.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id              TEXT PRIMARY KEY,
    farmer_id       TEXT NOT NULL,
    farmer_name     TEXT NOT NULL,
    shop_id         TEXT NOT NULL,
    shop_name       TEXT NOT NULL,
    last_message    TEXT,
    last_sender_id  TEXT,
    last_message_at INTEGER,
    unread_farmer   INTEGER NOT NULL DEFAULT 0 CHECK (unread_farmer >= 0),
    unread_shop     INTEGER NOT NULL DEFAULT 0 CHECK (unread_shop >= 0),
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,
    UNIQUE (farmer_id, shop_id)
);

CREATE INDEX IF NOT EXISTS idx_conversations_farmer ON conversations (farmer_id);
CREATE INDEX IF NOT EXISTS idx_conversations_shop ON conversations (shop_id);

CREATE TABLE IF NOT EXISTS messages (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL REFERENCES conversations (id),
    sender_id       TEXT NOT NULL,
    sender_name     TEXT NOT NULL,
    sender_role     TEXT NOT NULL,
    text            TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'sent',
    edited          INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_window ON messages (conversation_id, created_at DESC, seq DESC);
`

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; this also keeps a :memory: database alive on a
	// single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return db, nil
}
