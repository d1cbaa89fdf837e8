package database

import (
	"database/sql"
	"fmt"
	"sync"
)

// DB wraps the SQLite connection and provides thread-safe database operations.
// The sqlite3 driver is registered by the binary that opens the database.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Wrap uses an already opened connection without running migrations.
func Wrap(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id   TEXT NOT NULL,
			name        TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(tenant_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_categories_tenant ON categories(tenant_id, name)`,

		`CREATE TABLE IF NOT EXISTS contacts (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id    TEXT NOT NULL,
			phone        TEXT NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL DEFAULT '',
			category_id  INTEGER,
			on_whatsapp  INTEGER,
			source       TEXT NOT NULL DEFAULT 'manual',
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (category_id) REFERENCES categories(id) ON DELETE SET NULL,
			UNIQUE(tenant_id, phone)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_tenant_name ON contacts(tenant_id, name)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_category ON contacts(category_id)`,

		`CREATE TABLE IF NOT EXISTS message_drafts (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id   TEXT NOT NULL,
			title       TEXT NOT NULL,
			content     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_drafts_tenant ON message_drafts(tenant_id, updated_at DESC)`,

		// Campaigns keep a copy of the draft, so drafts can change or go away.
		`CREATE TABLE IF NOT EXISTS campaigns (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id       TEXT NOT NULL,
			draft_id        INTEGER NOT NULL,
			draft_title     TEXT NOT NULL,
			target          TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'queued',
			total_count     INTEGER NOT NULL DEFAULT 0,
			sent_count      INTEGER NOT NULL DEFAULT 0,
			failed_count    INTEGER NOT NULL DEFAULT 0,
			started_at      DATETIME,
			completed_at    DATETIME,
			created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status)`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns(tenant_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS campaign_messages (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			campaign_id     INTEGER NOT NULL,
			contact_id      INTEGER NOT NULL,
			phone           TEXT NOT NULL,
			contact_name    TEXT NOT NULL DEFAULT '',
			content         TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'pending',
			error_message   TEXT,
			sent_at         DATETIME,
			created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (campaign_id) REFERENCES campaigns(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_campaign_messages_campaign ON campaign_messages(campaign_id, status)`,
	}

	for _, migration := range migrations {
		if _, err := db.conn.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Lock() {
	db.mu.Lock()
}

func (db *DB) Unlock() {
	db.mu.Unlock()
}

func (db *DB) RLock() {
	db.mu.RLock()
}

func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
