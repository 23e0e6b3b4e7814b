package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentity(t *testing.T) {
	for _, raw := range []string{"", "abcd", "  abc  "} {
		_, err := ParseIdentity(raw)
		assert.ErrorIs(t, err, ErrInvalidIdentity, raw)
	}

	id, err := ParseIdentity("  alice1 ")
	require.NoError(t, err)
	assert.Equal(t, Identity("alice1"), id)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeCreate, m)

	m, err = ParseMode("login")
	require.NoError(t, err)
	assert.Equal(t, ModeLogin, m)

	_, err = ParseMode("signup")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestWalletRecord_KeepsExtensionFields(t *testing.T) {
	raw := `{"id":"w1","address":"0x00000000000000000000000000000000000000aa","blockchain":"ARC-TESTNET","scaCore":"circle_6900_singleowner_v2","refId":""}`

	var w WalletRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &w))
	assert.Equal(t, "w1", w.ID)
	assert.Equal(t, "ARC-TESTNET", w.Blockchain)
	assert.JSONEq(t, `"circle_6900_singleowner_v2"`, string(w.Extra["scaCore"]))
	assert.Len(t, w.Extra, 2)

	out, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))

	addr, ok := w.Account()
	assert.True(t, ok)
	assert.True(t, strings.EqualFold(w.Address, addr.Hex()))
}

func TestWalletRecord_NonEVMAddress(t *testing.T) {
	w := WalletRecord{ID: "w2", Address: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", Blockchain: "SOL-DEVNET"}
	_, ok := w.Account()
	assert.False(t, ok)
}

func TestSnapshot_Complete(t *testing.T) {
	snap := Snapshot{
		Identity:    "alice1",
		Credentials: Credentials{SessionToken: "t1", EncryptionKey: "k1"},
		Wallets:     []WalletRecord{{ID: "w1"}},
	}
	assert.True(t, snap.Complete())

	primary, ok := snap.Primary()
	assert.True(t, ok)
	assert.Equal(t, "w1", primary.ID)

	snap.Wallets = nil
	assert.False(t, snap.Complete())
	_, ok = snap.Primary()
	assert.False(t, ok)
}

func TestStablecoinBalance(t *testing.T) {
	balances := []TokenBalance{
		{Token: Token{Symbol: "ETH", Name: "Ether"}, Amount: decimal.RequireFromString("1.5")},
		{Token: Token{Symbol: "EURC", Name: "Bridged USDC"}, Amount: decimal.RequireFromString("7")},
		{Token: Token{Symbol: "USDC", Name: "USD Coin"}, Amount: decimal.RequireFromString("10.25")},
	}
	assert.Equal(t, "7", StablecoinBalance(balances).String())
	assert.Equal(t, "10.25", StablecoinBalance(balances[2:]).String())

	// case-sensitive
	lower := []TokenBalance{{Token: Token{Symbol: "usdc", Name: "usd coin"}, Amount: decimal.NewFromInt(3)}}
	assert.Equal(t, "0", StablecoinBalance(lower).String())
	assert.Equal(t, "0", StablecoinBalance(nil).String())
}

func TestConnectionState_Busy(t *testing.T) {
	assert.False(t, StateDisconnected.Busy())
	assert.False(t, StateConnected.Busy())
	assert.True(t, StateAwaitingSignature.Busy())
	assert.True(t, StateCreatingIdentity.Busy())
}
