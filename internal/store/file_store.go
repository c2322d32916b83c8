package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agrodel/cartsync/internal/cart"
)

// FileStore persists one cart as a single JSON document at a fixed path.
// It is the server-side stand-in for browser local storage: one file per
// anonymous session under the configured state directory.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to dir/<sessionID>.json.
func NewFileStore(dir, sessionID string) *FileStore {
	return &FileStore{path: filepath.Join(dir, sessionID+".json")}
}

// Load reads the persisted cart. A missing file or undecodable content is
// treated as an empty cart.
func (s *FileStore) Load() ([]cart.Line, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return []cart.Line{}, nil
	}
	var lines []cart.Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return []cart.Line{}, nil
	}
	if lines == nil {
		lines = []cart.Line{}
	}
	return lines, nil
}

// Save replaces the persisted cart. The write goes through a temp file and a
// rename so a crash never leaves a half-written cart behind.
func (s *FileStore) Save(lines []cart.Line) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cart file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace cart file: %w", err)
	}
	return nil
}
