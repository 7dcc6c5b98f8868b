// Package migrations holds the forward-only schema history for the items
// database. Migrations are embedded rather than loaded from disk so a
// deployed binary can always initialize its own database.
package migrations

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Migration represents a single schema version.
type Migration struct {
	Version int
	Up      string
}

// All returns the full migration history in version order. New schema
// changes are appended here; existing entries are never edited.
func All() []Migration {
	return []Migration{
		{
			Version: 1,
			Up: `
CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	url TEXT,
	author TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	score INTEGER NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	kind TEXT NOT NULL DEFAULT 'story',
	first_seen_at DATETIME NOT NULL,
	last_updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at);
CREATE INDEX IF NOT EXISTS idx_items_score ON items(score);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
INSERT OR IGNORE INTO metadata (key, value)
	VALUES ('last_poll_time', strftime('%Y-%m-%dT%H:%M:%SZ', 'now'));
INSERT OR IGNORE INTO metadata (key, value)
	VALUES ('last_oldest_id', '0');
`,
		},
		{
			Version: 2,
			Up: `
ALTER TABLE items ADD COLUMN relevance_score INTEGER;
CREATE INDEX IF NOT EXISTS idx_items_relevance ON items(relevance_score);
`,
		},
		{
			Version: 3,
			Up: `
ALTER TABLE items ADD COLUMN synced INTEGER NOT NULL DEFAULT 0;
ALTER TABLE items ADD COLUMN synced_at DATETIME;
CREATE INDEX IF NOT EXISTS idx_items_synced ON items(synced);
INSERT OR IGNORE INTO metadata (key, value)
	VALUES ('last_sync_time', strftime('%Y-%m-%dT%H:%M:%SZ', 'now'));
`,
		},
		{
			Version: 4,
			Up: `
ALTER TABLE items ADD COLUMN content TEXT;
ALTER TABLE items ADD COLUMN content_summary TEXT;
ALTER TABLE items ADD COLUMN content_state INTEGER NOT NULL DEFAULT 0;
ALTER TABLE items ADD COLUMN fetch_error_kind TEXT;
ALTER TABLE items ADD COLUMN fetch_error_message TEXT;
ALTER TABLE items ADD COLUMN fetch_error_status INTEGER;
`,
		},
	}
}

// Run executes all pending migrations.
func Run(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.Query("SELECT version FROM migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range All() {
		if applied[migration.Version] {
			continue
		}

		log.Info().Int("version", migration.Version).Msg("Running migration")

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
