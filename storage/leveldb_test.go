package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-sync/odyssey/storage"
	"github.com/odyssey-sync/odyssey/types"
)

func TestLevelDBBlobStorePutGetHasDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.OpenLevelDBBlobStore(dir, 1<<20)
	require.NoError(t, err)
	defer store.Close()

	key := types.HashHeaderId([]byte("blob-1"))

	ok, err := store.Has(key)
	require.NoError(t, err)
	require.False(t, ok)

	_, found, err := store.Get(key)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Put(key, []byte("payload")))

	ok, err = store.Has(key)
	require.NoError(t, err)
	require.True(t, ok)

	blob, found, err := store.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("payload"), blob)

	require.NoError(t, store.Delete(key))

	ok, err = store.Has(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLevelDBBlobStorePutReachesDatabase(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.OpenLevelDBBlobStore(dir, 1<<20)
	require.NoError(t, err)
	defer store.Close()

	key := types.HashHeaderId([]byte("blob-2"))
	require.NoError(t, store.Put(key, []byte("cached")))

	// A second open against the same directory must see what the first
	// wrote once closed, proving the cache isn't masking a write that
	// never reached the database.
	require.NoError(t, store.Close())

	reopened, err := storage.OpenLevelDBBlobStore(dir, 1<<20)
	require.NoError(t, err)
	defer reopened.Close()

	blob, found, err := reopened.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("cached"), blob)
}

func TestLevelDBBlobStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := storage.OpenLevelDBBlobStore(dir, 1<<20)
	require.NoError(t, err)
	key := types.HashHeaderId([]byte("blob-3"))
	require.NoError(t, store.Put(key, []byte("durable")))
	require.NoError(t, store.Close())

	reopened, err := storage.OpenLevelDBBlobStore(dir, 1<<20)
	require.NoError(t, err)
	defer reopened.Close()

	blob, found, err := reopened.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("durable"), blob)
}
