// Package settings persists per-channel configuration records in a
// SQLite database. Records are opaque blobs keyed by channel name; an
// integrity checksum accompanies each record so a corrupted row loads
// as absent rather than as scrambled configuration.
package settings

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"

	"github.com/te9no/pointerd/internal/channel"
)

const schema = `
CREATE TABLE IF NOT EXISTS channel_settings (
    name        TEXT PRIMARY KEY,
    record      BLOB NOT NULL,
    checksum    BLOB NOT NULL,
    updated_at  INTEGER NOT NULL
);
`

// Store is the SQLite settings store. It satisfies channel.Saver, so
// channels write their debounced persistent records straight into it.
type Store struct {
	db *sql.DB
}

// Open opens or creates the settings database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create settings directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply settings schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save upserts the record for a channel, stamping a fresh checksum.
func (s *Store) Save(name string, record []byte) error {
	sum := blake2b.Sum256(record)
	_, err := s.db.Exec(`
		INSERT INTO channel_settings (name, record, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			record = excluded.record,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at`,
		name, record, sum[:], time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: save settings for %q: %v", channel.ErrPersistenceFailure, name, err)
	}
	return nil
}

// Load returns the stored record for a channel, or nil when none exists.
// A record whose checksum no longer matches is reported as a persistence
// failure so the caller falls back to defaults.
func (s *Store) Load(name string) ([]byte, error) {
	var record, checksum []byte
	err := s.db.QueryRow(`
		SELECT record, checksum FROM channel_settings WHERE name = ?`, name,
	).Scan(&record, &checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load settings for %q: %v", channel.ErrPersistenceFailure, name, err)
	}

	sum := blake2b.Sum256(record)
	if !bytes.Equal(sum[:], checksum) {
		return nil, fmt.Errorf("%w: settings for %q failed checksum", channel.ErrPersistenceFailure, name)
	}
	return record, nil
}

// Delete removes the stored record for a channel. Deleting an absent
// record is a no-op.
func (s *Store) Delete(name string) error {
	if _, err := s.db.Exec(`DELETE FROM channel_settings WHERE name = ?`, name); err != nil {
		return fmt.Errorf("%w: delete settings for %q: %v", channel.ErrPersistenceFailure, name, err)
	}
	return nil
}

// Names lists the channels with stored records, ordered by name.
func (s *Store) Names() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM channel_settings ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list settings: %v", channel.ErrPersistenceFailure, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan settings name: %v", channel.ErrPersistenceFailure, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate settings names: %v", channel.ErrPersistenceFailure, err)
	}
	return names, nil
}
