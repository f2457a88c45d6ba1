// Package storage keeps the bytes of staged uploads on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown blob ids.
var ErrNotFound = errors.New("blob not found")

// Store defines the interface for staged file content.
type Store interface {
	Save(id string, r io.Reader) (int64, error)
	Open(id string) (io.ReadCloser, error)
	Delete(id string) error
	GetFilePath(id string) (string, error)
}

// LocalStore implements Store using the local filesystem. Blob ids are the
// UUIDs of staged file entries.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	sizes     map[string]int64
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		sizes:     make(map[string]int64),
	}, nil
}

func (s *LocalStore) path(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid blob id %q: %w", id, err)
	}
	return filepath.Join(s.uploadDir, id), nil
}

// Save writes r under id, replacing any previous content.
func (s *LocalStore) Save(id string, r io.Reader) (int64, error) {
	path, err := s.path(id)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("writing file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes[id] = size

	return size, nil
}

// Open returns a reader for the blob.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// Delete removes a blob from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sizes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.sizes, id)
	return nil
}

// GetFilePath returns the absolute path to a blob.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sizes[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return filepath.Join(s.uploadDir, id), nil
}

// Len returns the number of stored blobs.
func (s *LocalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sizes)
}

// PruneOlderThan removes files in the upload directory that this store does
// not track and that were last modified before maxAge ago. It returns the
// number of files removed. Untracked files are left behind by a previous run.
func (s *LocalStore) PruneOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return 0, fmt.Errorf("reading upload directory: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)

	s.mu.RLock()
	defer s.mu.RUnlock()

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, tracked := s.sizes[e.Name()]; tracked {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.uploadDir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
