// Package session persists authenticated browser state between runs. The
// state is an opaque blob owned by the browser layer; this package never
// inspects it. Restoring it is what makes repeated runs skip the login flow.
package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store loads and saves opaque session state.
type Store interface {
	// Load returns the stored state, or (nil, nil) when no prior state
	// exists (first run).
	Load() ([]byte, error)

	// Save persists state. It is called at the end of every run, including
	// failed ones, so a partially advanced login is not repeated.
	Save(state []byte) error
}

// FileStore keeps the session blob in a single file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path.
// If path is empty, defaults to ~/.planpilot/auth.json
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("session: resolve home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".planpilot", "auth.json")
	}
	return &FileStore{path: path}, nil
}

// Load returns the stored state, or (nil, nil) if the file does not exist.
func (s *FileStore) Load() ([]byte, error) {
	state, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: load %s: %w", s.path, err)
	}
	return state, nil
}

// Save writes state atomically via a temp file and rename.
func (s *FileStore) Save(state []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("session: create directory %s: %w", dir, err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, state, 0o600); err != nil {
		return fmt.Errorf("session: write temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("session: rename temp file: %w", err)
	}
	return nil
}

// Path returns the file path of the store.
func (s *FileStore) Path() string {
	return s.path
}
