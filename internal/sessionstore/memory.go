package sessionstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]string)}
}

func (m *Memory) Get(_ context.Context, sessionID, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[sessionID][key]
	return v, ok, nil
}

func (m *Memory) SetMany(_ context.Context, sessionID string, items map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	area, ok := m.data[sessionID]
	if !ok {
		area = make(map[string]string, len(items))
		m.data[sessionID] = area
	}
	for k, v := range items {
		area[k] = v
	}
	return nil
}

func (m *Memory) Drop(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sessionID)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
