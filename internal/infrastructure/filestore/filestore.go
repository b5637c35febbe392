// Package filestore is a minimal file-backed depot for the persisted
// device-configuration document. It exists so cmd/kasad has something
// concrete to hand the configuration bridge (internal/kasa/kasaconf);
// a deployment with a real key/value depot swaps it out at the
// Persister seam.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// emptyDocument is served by Load when the backing file does not yet
// exist, so a first run starts from an empty configuration rather
// than failing.
const emptyDocument = `{"kasa":{"devices":[],"net":[]}}`

// Store persists a single JSON document at a fixed filesystem path,
// guarding concurrent access with a mutex since the HTTP layer and
// the autodetect save loop may both call it.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store backed by path. The file is not touched until
// Load or Save is called.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the document, returning emptyDocument if the file does
// not exist yet.
func (s *Store) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []byte(emptyDocument), nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: reading %s: %w", s.path, err)
	}
	return data, nil
}

// Save writes doc to the backing file, creating its parent directory
// if necessary, via a write-to-temp-then-rename so a crash mid-write
// cannot leave a truncated document behind.
func (s *Store) Save(_ context.Context, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".kasaconf-*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: closing %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: renaming %s to %s: %w", tmpPath, s.path, err)
	}
	return nil
}
