// Package storage provides the on-device key-value persistence used by the
// cart and address stores. Values are opaque JSON blobs under a fixed
// namespace; they survive restarts and are cleared only by explicit store
// actions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// KV is the persistence interface the state stores depend on.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// =============================================================================
// File backend
// =============================================================================

// FileStore persists each key as a JSON file under a directory. Writes go
// through a temp file and rename so a crash never leaves a torn value.
type FileStore struct {
	mu        sync.Mutex
	dir       string
	namespace string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir, namespace string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if namespace == "" {
		namespace = "storefront"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{dir: dir, namespace: namespace}, nil
}

// Get returns the stored value for key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

// Delete removes the value for key. Deleting a missing key is not an error.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(key string) string {
	// Keys come from our own stores; sanitize anyway so a user id can
	// never escape the storage dir.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(s.dir, s.namespace+"."+safe+".json")
}
