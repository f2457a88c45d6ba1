// Package sessionstore provides key/value storage partitioned by browser
// session. Values live until the session is dropped.
package sessionstore

import (
	"context"
	"fmt"
)

// Store holds string values per session and key.
type Store interface {
	// Get returns the value stored under key for the session.
	Get(ctx context.Context, sessionID, key string) (string, bool, error)
	// SetMany writes all items for the session atomically.
	SetMany(ctx context.Context, sessionID string, items map[string]string) error
	// Drop removes everything stored for the session.
	Drop(ctx context.Context, sessionID string) error
	Close() error
}

// Area is a Store scoped to one session.
type Area struct {
	store     Store
	sessionID string
}

// NewArea scopes store to sessionID.
func NewArea(store Store, sessionID string) *Area {
	return &Area{store: store, sessionID: sessionID}
}

// GetItem returns the value stored under key.
func (a *Area) GetItem(ctx context.Context, key string) (string, bool, error) {
	return a.store.Get(ctx, a.sessionID, key)
}

// SetItems writes items atomically.
func (a *Area) SetItems(ctx context.Context, items map[string]string) error {
	return a.store.SetMany(ctx, a.sessionID, items)
}

// Clear removes every item in the area.
func (a *Area) Clear(ctx context.Context) error {
	return a.store.Drop(ctx, a.sessionID)
}

// Open creates a store for the named backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "duckdb":
		return NewDuckStore(path)
	default:
		return nil, fmt.Errorf("unknown session storage backend: %q", backend)
	}
}
