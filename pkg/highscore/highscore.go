// Package highscore persists the per-song high-score table as a JSON document.
package highscore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zurustar/keyfall/pkg/scoring"
)

// DefaultFileName is the document name used when only a directory is known.
const DefaultFileName = "scores.json"

// ErrCorrupt is returned when the document exists but cannot be decoded.
var ErrCorrupt = errors.New("high-score document is corrupt")

// FileStore keeps the table in a single JSON file. A missing file loads as an
// empty table. Saves replace the file atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the table.
func (s *FileStore) Load() (scoring.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return scoring.Table{}, nil
		}
		return nil, fmt.Errorf("failed to read high scores: %w", err)
	}
	if len(data) == 0 {
		return scoring.Table{}, nil
	}

	table := scoring.Table{}
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	table.Normalize()
	return table, nil
}

// Save writes the table to a temporary file next to the target and renames
// it into place.
func (s *FileStore) Save(table scoring.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode high scores: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create high-score directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".scores-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write high scores: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write high scores: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace high scores: %w", err)
	}
	return nil
}

// MemoryStore keeps the table in memory. It is used when no file is configured
// and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	table scoring.Table
	saves int

	// LoadErr and SaveErr, when set, are returned by the next calls.
	LoadErr error
	SaveErr error
}

// NewMemoryStore creates a store seeded with table (nil for empty).
func NewMemoryStore(table scoring.Table) *MemoryStore {
	if table == nil {
		table = scoring.Table{}
	}
	return &MemoryStore{table: table}
}

// Load returns a copy of the stored table.
func (m *MemoryStore) Load() (scoring.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.table.Clone(), nil
}

// Save replaces the stored table with a copy of table.
func (m *MemoryStore) Save(table scoring.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.table = table.Clone()
	m.saves++
	return nil
}

// Saves returns how many successful saves happened.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
