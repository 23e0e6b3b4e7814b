package session

import (
	"context"
	"testing"

	"github.com/layer-3/pinwallet/adapters/store"
	"github.com/layer-3/pinwallet/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() core.Snapshot {
	return core.Snapshot{
		Identity:    "alice1",
		Credentials: core.Credentials{SessionToken: "t1", EncryptionKey: "k1"},
		Wallets: []core.WalletRecord{
			{ID: "w1", Address: "0xabc", Blockchain: "ARC-TESTNET"},
		},
	}
}

func TestStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	s := NewStore(kv)

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, testSnapshot()))
	assert.Equal(t, 4, kv.Len())

	snap, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testSnapshot(), snap)

	creds, ok := s.Credentials(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t1", creds.SessionToken)
	assert.Len(t, s.Wallets(ctx), 1)

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, kv.Len())

	_, ok, err = s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PartialSnapshotIsNoSession(t *testing.T) {
	ctx := context.Background()

	for _, missing := range Keys {
		t.Run(missing, func(t *testing.T) {
			kv := store.NewMemoryStore()
			s := NewStore(kv)
			require.NoError(t, s.Save(ctx, testSnapshot()))
			require.NoError(t, kv.Delete(ctx, missing))

			_, ok, err := s.Load(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_EmptyOrCorruptWallets(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	s := NewStore(kv)
	require.NoError(t, s.Save(ctx, testSnapshot()))

	require.NoError(t, kv.Set(ctx, KeyWallets, "[]"))
	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, KeyWallets, "{broken"))
	_, ok, err = s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, s.Wallets(ctx))
}

func TestStore_SaveRejectsIncomplete(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	s := NewStore(kv)

	snap := testSnapshot()
	snap.Wallets = nil
	err := s.Save(ctx, snap)
	assert.ErrorIs(t, err, core.ErrWalletPending)
	assert.Equal(t, 0, kv.Len())

	assert.ErrorIs(t, s.SaveWallets(ctx, nil), core.ErrWalletPending)
}

func TestStore_SaveWalletsReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemoryStore())
	require.NoError(t, s.Save(ctx, testSnapshot()))

	replacement := []core.WalletRecord{{ID: "w2", Address: "0xdef", Blockchain: "ETH-SEPOLIA"}}
	require.NoError(t, s.SaveWallets(ctx, replacement))

	snap, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, replacement, snap.Wallets)
}
