package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBlobStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "token_cache.json")
	store := NewFileBlobStore(path)
	ctx := context.Background()

	data, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data, "missing file is not an error")

	require.NoError(t, store.Save(ctx, []byte(`{"access_token":"a"}`)))
	require.NoError(t, store.Save(ctx, []byte(`{"access_token":"b"}`)))

	data, err = store.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"b"}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestKeyringBlobStore_FileBackend(t *testing.T) {
	store, err := NewKeyringBlobStore(KeyringConfig{
		FileDir:      t.TempDir(),
		FilePassword: "test-password",
		FileOnly:     true,
	})
	require.NoError(t, err)
	ctx := context.Background()

	data, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Save(ctx, []byte("blob-1")))

	data, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob-1"), data)
}
