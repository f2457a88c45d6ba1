// mock_storage.go - In-memory blob storage for testing
package testutil

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/fin-ner/wizard/internal/storage"
)

// MockStorage implements storage.Store in memory
type MockStorage struct {
	mu       sync.RWMutex
	fileData map[string][]byte

	// SaveErr, when set, is returned by Save.
	SaveErr error
}

// NewMockStorage creates an empty mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		fileData: make(map[string][]byte),
	}
}

func (m *MockStorage) Save(id string, r io.Reader) (int64, error) {
	if m.SaveErr != nil {
		return 0, m.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileData[id] = data
	return int64(len(data)), nil
}

func (m *MockStorage) Open(id string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.fileData[id]; !exists {
		return storage.ErrNotFound
	}
	delete(m.fileData, id)
	return nil
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.fileData[id]; !ok {
		return "", errors.New("file not found")
	}
	return "/mock/path/" + id, nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

// GetFileData returns the file content
func (m *MockStorage) GetFileData(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

// GetFileCount returns the number of stored files
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.fileData)
}
