package flagstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	feerrors "github.com/randalmurphal/flagevents/pkg/flagevents/errors"
	"github.com/randalmurphal/flagevents/pkg/flagevents/flagstore"
	"github.com/randalmurphal/flagevents/pkg/flagevents/ldcontext"
)

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := flagstore.NewCache(flagstore.NewMemoryStore(), "prod")

	user := ldcontext.Context{"kind": "user", "key": "u1", "name": "Red"}
	flags := map[string]any{"banner": true, "limit": float64(3)}
	require.NoError(t, cache.Save(ctx, user, flags))

	// Key order does not matter.
	same := ldcontext.Context{"name": "Red", "key": "u1", "kind": "user"}
	got, ok, err := cache.Load(ctx, same)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, flags, got)

	other := ldcontext.Context{"kind": "user", "key": "u2"}
	_, ok, err = cache.Load(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_EvictsOldestContexts(t *testing.T) {
	ctx := context.Background()
	store := flagstore.NewMemoryStore()
	cache := flagstore.NewCache(store, "prod",
		flagstore.WithMaxContexts(2),
		flagstore.WithHasher(ldcontext.NewXXHasher),
	)

	keys := []string{"u1", "u2", "u3"}
	for _, key := range keys {
		require.NoError(t, cache.Save(ctx, ldcontext.Context{"kind": "user", "key": key}, map[string]any{"f": key}))
	}
	assert.Equal(t, 2, store.Len())

	_, ok, err := cache.Load(ctx, ldcontext.Context{"kind": "user", "key": "u1"})
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := cache.Load(ctx, ldcontext.Context{"kind": "user", "key": "u3"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"f": "u3"}, got)
}

func TestCache_InvalidContext(t *testing.T) {
	cache := flagstore.NewCache(flagstore.NewMemoryStore(), "prod")

	err := cache.Save(context.Background(), ldcontext.Context{"kind": "user"}, map[string]any{})
	require.Error(t, err)
	kind, ok := feerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, feerrors.KindInvalidContext, kind)

	_, _, err = cache.Load(context.Background(), nil)
	assert.Error(t, err)
}

func TestCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := flagstore.NewMemoryStore()
	cache := flagstore.NewCache(store, "prod")
	user := ldcontext.Context{"kind": "user", "key": "u1"}
	require.NoError(t, cache.Save(ctx, user, map[string]any{"a": 1}))

	infos, err := store.List("prod")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.NoError(t, store.Save("prod", infos[0].ContextHash, []byte("{not json")))

	_, ok, err := cache.Load(ctx, user)
	assert.False(t, ok)
	kind, found := feerrors.KindOf(err)
	require.True(t, found)
	assert.Equal(t, feerrors.KindDataFetch, kind)
}

func TestCache_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	store, err := flagstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	cache := flagstore.NewCache(store, "prod")
	multi := ldcontext.Context{
		"kind": "multi",
		"user": map[string]any{"key": "u1"},
		"org":  map[string]any{"key": "o1"},
	}
	require.NoError(t, cache.Save(ctx, multi, map[string]any{"x": "y"}))

	got, ok, err := cache.Load(ctx, multi)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"x": "y"}, got)
}
