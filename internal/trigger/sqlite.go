package trigger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// slotName is the single key under which the custom trigger set is stored.
const slotName = "custom-triggers"

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists the custom trigger set as one JSON blob in a
// key-value slot table of a local SQLite database. SQLite's journal gives
// the same partial-write safety the FileStore gets from atomic rename.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// ensures the slot table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trigger store: open sqlite %q: %w", path, err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS slots (
		name  TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("trigger store: create slot table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load implements Store. A missing slot yields an empty set; corrupt JSON in
// the slot is logged and likewise yields an empty set.
func (s *SQLiteStore) Load() ([]Trigger, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM slots WHERE name = ?`, slotName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Warn("trigger store: sqlite read failed, starting with no custom triggers",
			"err", err)
		return nil, nil
	}

	var customs []Trigger
	if err := json.Unmarshal(value, &customs); err != nil {
		slog.Warn("trigger store: corrupt slot, starting with no custom triggers",
			"err", err)
		return nil, nil
	}
	return customs, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(customs []Trigger) error {
	data, err := json.Marshal(customs)
	if err != nil {
		return fmt.Errorf("trigger store: marshal: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO slots (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		slotName, data,
	)
	if err != nil {
		return fmt.Errorf("trigger store: upsert slot: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
