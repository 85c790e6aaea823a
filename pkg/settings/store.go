// Package settings pkg/settings/store.go provides the persisted
// key-value configuration store backing reconfiguration across reboots.
package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var (
	// ErrNotFound is returned when a key has no persisted value.
	ErrNotFound = errors.New("setting not found")

	errFailedOpenDB      = errors.New("failed to open settings database")
	errFailedToInit      = errors.New("failed to initialize settings schema")
	errFailedToEnableWAL = errors.New("failed to enable WAL mode")
	errFailedToQuery     = errors.New("failed to query settings")
	errFailedToScan      = errors.New("failed to scan setting")
	errFailedToUpsert    = errors.New("failed to store setting")
	errFailedToDelete    = errors.New("failed to delete setting")
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// Store is a sqlite-backed key-value store for monitor settings.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the settings database at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedOpenDB, err)
	}

	// Enable WAL mode for better concurrency
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", errFailedToEnableWAL, err)
	}

	if _, err = db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", errFailedToInit, err)
	}

	return &Store{db: db}, nil
}

// Get returns the value for key, or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	var value string

	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("%w: %w", errFailedToQuery, err)
	}

	return value, nil
}

// Set stores or replaces the value for key.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToUpsert, err)
	}

	return nil
}

// Delete removes a key; deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("%w: %w", errFailedToDelete, err)
	}

	return nil
}

// All returns every persisted key-value pair.
func (s *Store) All() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToQuery, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	values := make(map[string]string)

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("%w: %w", errFailedToScan, err)
		}

		values[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToQuery, err)
	}

	return values, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
