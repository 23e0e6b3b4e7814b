package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s ports.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "userId")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	require.NoError(t, s.Set(ctx, "userId", "alice1"))
	require.NoError(t, s.Set(ctx, "userToken", "t1"))

	got, err := s.Get(ctx, "userId")
	require.NoError(t, err)
	assert.Equal(t, "alice1", got)

	require.NoError(t, s.Set(ctx, "userId", "bob42"))
	got, err = s.Get(ctx, "userId")
	require.NoError(t, err)
	assert.Equal(t, "bob42", got)

	require.NoError(t, s.Delete(ctx, "userId", "userToken", "missing"))
	_, err = s.Get(ctx, "userId")
	assert.True(t, IsNotFound(err))
	_, err = s.Get(ctx, "userToken")
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Equal(t, 0, s.Len())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)
	assert.Equal(t, path, s.Path())
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "wallets", `[{"id":"w1"}]`))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "wallets")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"w1"}]`, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("not-json"), 0o600))

	_, err := NewFileStore(path)
	assert.ErrorContains(t, err, "decode session file")
}

func TestFileStore_FailedFlushKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "userId", "alice1"))

	// a directory in place of the temporary file makes every flush fail
	require.NoError(t, os.Mkdir(path+".tmp", 0o700))

	assert.ErrorIs(t, s.Set(ctx, "userId", "bobby1"), core.ErrStoreOperationFailed)
	assert.ErrorIs(t, s.Set(ctx, "userToken", "t1"), core.ErrStoreOperationFailed)
	assert.ErrorIs(t, s.Delete(ctx, "userId"), core.ErrStoreOperationFailed)

	value, err := s.Get(ctx, "userId")
	require.NoError(t, err)
	assert.Equal(t, "alice1", value)
	_, err = s.Get(ctx, "userToken")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	require.NoError(t, os.Remove(path+".tmp"))
	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	value, err = reopened.Get(ctx, "userId")
	require.NoError(t, err)
	assert.Equal(t, "alice1", value)
}
