package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthanhphan/go-kvs/internal/kv/config"
	"github.com/anthanhphan/go-kvs/internal/kv/port"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := Open(config.StoreConfig{Engine: config.EngineBolt, DataDir: dir})
	require.NoError(t, err)
	return store
}

func TestStore_SetGet(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key1", "value1"))

	value, found, err := store.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", value)
}

func TestStore_Overwrite(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key1", "first"))
	require.NoError(t, store.Set(ctx, "key1", "second"))

	value, found, err := store.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", value)
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer func() { _ = store.Close() }()

	_, found, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Remove(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key1", "value1"))
	require.NoError(t, store.Remove(ctx, "key1"))

	_, found, err := store.Get(ctx, "key1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_RemoveMissingKey(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer func() { _ = store.Close() }()

	err := store.Remove(context.Background(), "absent")
	assert.ErrorIs(t, err, port.ErrKeyNotFound)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := openTestStore(t, dir)
	require.NoError(t, store.Set(ctx, "durable", "yes"))
	require.NoError(t, store.Set(ctx, "removed", "no"))
	require.NoError(t, store.Remove(ctx, "removed"))
	require.NoError(t, store.Close())

	store = openTestStore(t, dir)
	defer func() { _ = store.Close() }()

	value, found, err := store.Get(ctx, "durable")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "yes", value)

	_, found, err = store.Get(ctx, "removed")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Stats(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, dir)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", "1"))
	require.NoError(t, store.Set(ctx, "b", "2"))

	stats := store.Stats()
	assert.Equal(t, config.EngineBolt, stats.Engine)
	assert.Equal(t, filepath.Clean(dir), filepath.Clean(stats.DataDir))
}
