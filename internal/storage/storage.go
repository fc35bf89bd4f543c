// Package storage provides the durable key-value substrate backed by SQLite.
//
// Two independent areas exist, mirroring the extension storage model:
// "local" (grouping state, stats) and "sync" (settings). Values are stored
// as JSON.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Areas of the key-value store.
const (
	AreaLocal = "local"
	AreaSync  = "sync"
)

// Store is a handle to the key-value database.
type Store struct {
	db *sql.DB
}

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial kv schema",
		SQL: `
CREATE TABLE IF NOT EXISTS kv (
    area        TEXT NOT NULL,
    key         TEXT NOT NULL,
    value       TEXT NOT NULL,
    PRIMARY KEY (area, key)
);`,
	},
	{
		Version:     2,
		Description: "track last write time per key",
		SQL:         `ALTER TABLE kv ADD COLUMN updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP;`,
	},
}

// Open opens (or creates) the database at the given path. It creates parent
// directories if needed, enables foreign keys and WAL mode, and runs any
// pending migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// WAL mode for better concurrency between the event loop and CLI reads.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// DefaultDBPath returns the default database file path:
// ~/.local/share/tabgruppen/tabgruppen.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tabgruppen", "tabgruppen.db"), nil
}

// Get loads the value for key in area into dest (JSON-decoded). The second
// return value reports whether the key was present; dest is untouched when
// it is not.
func (s *Store) Get(area, key string, dest any) (bool, error) {
	var raw string
	err := s.db.QueryRow("SELECT value FROM kv WHERE area = ? AND key = ?", area, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query %s/%s: %w", area, key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", area, key, err)
	}
	return true, nil
}

// Set writes a single key.
func (s *Store) Set(area, key string, value any) error {
	return s.SetMany(area, map[string]any{key: value})
}

// SetMany writes all given keys in a single transaction, so related keys
// (like the two grouping-state maps) cannot be observed half-written.
func (s *Store) SetMany(area string, values map[string]any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", area, key, err)
		}
		_, err = tx.Exec(`INSERT INTO kv (area, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(area, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			area, key, string(raw))
		if err != nil {
			return fmt.Errorf("write %s/%s: %w", area, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Delete removes the given keys from an area. Missing keys are ignored.
func (s *Store) Delete(area string, keys ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.Exec("DELETE FROM kv WHERE area = ? AND key = ?", area, key); err != nil {
			return fmt.Errorf("delete %s/%s: %w", area, key, err)
		}
	}
	return tx.Commit()
}

// GetAll returns every key in an area with its raw JSON value.
func (s *Store) GetAll(area string) (map[string]json.RawMessage, error) {
	rows, err := s.db.Query("SELECT key, value FROM kv WHERE area = ?", area)
	if err != nil {
		return nil, fmt.Errorf("query area %s: %w", area, err)
	}
	defer rows.Close()

	result := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", area, err)
		}
		result[key] = json.RawMessage(raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate area %s: %w", area, err)
	}
	return result, nil
}
