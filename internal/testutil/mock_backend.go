package testutil

import (
	"context"
	"io"
	"sync"
)

// MockBackend records calls made to the analysis backend.
type MockBackend struct {
	mu       sync.Mutex
	Uploads  map[string][]byte
	Messages []string

	UploadFunc func(name string, data []byte) (string, error)
	ChatFunc   func(message string) (string, error)
}

// NewMockBackend creates a backend that accepts everything.
func NewMockBackend() *MockBackend {
	return &MockBackend{Uploads: make(map[string][]byte)}
}

func (b *MockBackend) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.Uploads[name] = data
	fn := b.UploadFunc
	b.mu.Unlock()

	if fn != nil {
		return fn(name, data)
	}
	return "File processed successfully!", nil
}

func (b *MockBackend) Chat(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	b.Messages = append(b.Messages, message)
	fn := b.ChatFunc
	b.mu.Unlock()

	if fn != nil {
		return fn(message)
	}
	return "You said: " + message, nil
}

// UploadCount returns the number of uploads received.
func (b *MockBackend) UploadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Uploads)
}
