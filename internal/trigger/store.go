package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store persists the custom trigger set as a whole. Load is called once at
// startup; Save after every mutation.
//
// A missing or corrupt store must not be fatal: Load returns an empty set
// and a nil error in both cases, logging corruption instead of propagating it.
type Store interface {
	// Load reads the persisted custom trigger set.
	Load() ([]Trigger, error)

	// Save overwrites the persisted custom trigger set wholesale.
	Save(customs []Trigger) error
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// FileStore persists the custom trigger set as a single JSON file. Writes go
// through a temp file and an atomic rename, so a crash mid-write leaves the
// previous set intact.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to path. Parent directories are
// created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store. A missing file yields an empty set; an unreadable
// or unparsable file is logged and likewise yields an empty set.
func (s *FileStore) Load() ([]Trigger, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		slog.Warn("trigger store: read failed, starting with no custom triggers",
			"path", s.path, "err", err)
		return nil, nil
	}

	var customs []Trigger
	if err := json.Unmarshal(data, &customs); err != nil {
		slog.Warn("trigger store: corrupt store, starting with no custom triggers",
			"path", s.path, "err", err)
		return nil, nil
	}
	return customs, nil
}

// Save implements Store.
func (s *FileStore) Save(customs []Trigger) error {
	data, err := json.Marshal(customs)
	if err != nil {
		return fmt.Errorf("trigger store: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("trigger store: mkdir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("trigger store: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("trigger store: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("trigger store: close temp: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("trigger store: rename: %w", err)
	}
	return nil
}
