package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/ports"
)

// FileStore keeps entries in a JSON file, rewritten on every change
type FileStore struct {
	path    string
	mu      sync.Mutex
	entries map[string]string
}

// NewFileStore opens the store at path, loading existing entries
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		entries: make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var _ ports.Store = (*FileStore)(nil)

func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&s.entries); err != nil {
		return fmt.Errorf("decode session file: %w", err)
	}
	if s.entries == nil {
		s.entries = make(map[string]string)
	}
	return nil
}

// save writes to a temporary file and renames it over the old one
func (s *FileStore) save() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	if err := json.NewEncoder(f).Encode(s.entries); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// Get returns the value stored under key
func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.entries[key]
	if !ok {
		return "", core.ErrSessionNotFound
	}
	return value, nil
}

// Set stores value under key and flushes the file. A failed flush leaves the
// entry as it was.
func (s *FileStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.entries[key]
	s.entries[key] = value
	if err := s.save(); err != nil {
		if existed {
			s.entries[key] = previous
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

// Delete removes the keys and flushes the file. A failed flush keeps them.
func (s *FileStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := s.entries[key]; ok {
			removed[key] = value
			delete(s.entries, key)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	if err := s.save(); err != nil {
		for key, value := range removed {
			s.entries[key] = value
		}
		return err
	}
	return nil
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

// IsNotFound reports whether err means a missing entry
func IsNotFound(err error) bool {
	return errors.Is(err, core.ErrSessionNotFound)
}
