package sessionstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	duck, err := NewDuckStore(filepath.Join(t.TempDir(), "sessions.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { duck.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"duckdb": duck,
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, "s1", "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.SetMany(ctx, "s1", map[string]string{"a": "1", "b": "2"}))
			require.NoError(t, store.SetMany(ctx, "s2", map[string]string{"a": "other"}))

			v, ok, err := store.Get(ctx, "s1", "a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "1", v)

			// overwrite is unconditional
			require.NoError(t, store.SetMany(ctx, "s1", map[string]string{"a": "3"}))
			v, _, _ = store.Get(ctx, "s1", "a")
			assert.Equal(t, "3", v)

			// sessions are isolated
			v, _, _ = store.Get(ctx, "s2", "a")
			assert.Equal(t, "other", v)

			require.NoError(t, store.Drop(ctx, "s1"))
			_, ok, _ = store.Get(ctx, "s1", "b")
			assert.False(t, ok)
			_, ok, _ = store.Get(ctx, "s2", "a")
			assert.True(t, ok)
		})
	}
}

func TestDuckStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.duckdb")

	store, err := NewDuckStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetMany(ctx, "s1", map[string]string{"k": "v"}))
	require.NoError(t, store.Close())

	reopened, err := NewDuckStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, "s1", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestArea(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	area := NewArea(store, "s1")

	require.NoError(t, area.SetItems(ctx, map[string]string{"k": "v"}))
	v, ok, err := area.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, area.Clear(ctx))
	_, ok, _ = area.GetItem(ctx, "k")
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	s, err := Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open("redis", "")
	assert.Error(t, err)
}
