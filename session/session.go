// Package session persists the wallet session snapshot as four independent
// string entries. A snapshot is only returned when all four are present and
// the wallet list is non-empty.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/ports"
)

// Entry keys of the persisted snapshot
const (
	KeyIdentity      = "userId"
	KeySessionToken  = "userToken"
	KeyEncryptionKey = "encryptionKey"
	KeyWallets       = "wallets"
	KeyDeviceID      = "deviceId"
)

// Keys lists the snapshot entries in write order
var Keys = []string{KeyIdentity, KeySessionToken, KeyEncryptionKey, KeyWallets}

// Store reads and writes session snapshots
type Store struct {
	kv ports.Store
}

// NewStore creates a session store over kv
func NewStore(kv ports.Store) *Store {
	return &Store{kv: kv}
}

// KV returns the underlying key/value store
func (s *Store) KV() ports.Store {
	return s.kv
}

// Load returns the persisted snapshot. ok is false when any entry is missing,
// the wallet list does not decode, or it is empty.
func (s *Store) Load(ctx context.Context) (core.Snapshot, bool, error) {
	values := make(map[string]string, len(Keys))
	for _, key := range Keys {
		value, err := s.kv.Get(ctx, key)
		if errors.Is(err, core.ErrSessionNotFound) {
			return core.Snapshot{}, false, nil
		}
		if err != nil {
			return core.Snapshot{}, false, fmt.Errorf("load %s: %w", key, err)
		}
		if value == "" {
			return core.Snapshot{}, false, nil
		}
		values[key] = value
	}

	var wallets []core.WalletRecord
	if err := json.Unmarshal([]byte(values[KeyWallets]), &wallets); err != nil {
		return core.Snapshot{}, false, nil
	}

	snap := core.Snapshot{
		Identity: core.Identity(values[KeyIdentity]),
		Credentials: core.Credentials{
			SessionToken:  values[KeySessionToken],
			EncryptionKey: values[KeyEncryptionKey],
		},
		Wallets: wallets,
	}
	if !snap.Complete() {
		return core.Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Save writes a complete snapshot, wallets last
func (s *Store) Save(ctx context.Context, snap core.Snapshot) error {
	if !snap.Complete() {
		return fmt.Errorf("save incomplete snapshot: %w", core.ErrWalletPending)
	}

	wallets, err := json.Marshal(snap.Wallets)
	if err != nil {
		return fmt.Errorf("encode wallets: %w", err)
	}

	entries := map[string]string{
		KeyIdentity:      snap.Identity.String(),
		KeySessionToken:  snap.Credentials.SessionToken,
		KeyEncryptionKey: snap.Credentials.EncryptionKey,
		KeyWallets:       string(wallets),
	}
	for _, key := range Keys {
		if err := s.kv.Set(ctx, key, entries[key]); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return nil
}

// SaveWallets replaces the persisted wallet list of an existing session
func (s *Store) SaveWallets(ctx context.Context, wallets []core.WalletRecord) error {
	if len(wallets) == 0 {
		return fmt.Errorf("save wallets: %w", core.ErrWalletPending)
	}
	raw, err := json.Marshal(wallets)
	if err != nil {
		return fmt.Errorf("encode wallets: %w", err)
	}
	return s.kv.Set(ctx, KeyWallets, string(raw))
}

// Clear removes all four snapshot entries
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, Keys...); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Credentials returns the persisted pair when both halves are present
func (s *Store) Credentials(ctx context.Context) (core.Credentials, bool) {
	token, err := s.kv.Get(ctx, KeySessionToken)
	if err != nil {
		return core.Credentials{}, false
	}
	key, err := s.kv.Get(ctx, KeyEncryptionKey)
	if err != nil {
		return core.Credentials{}, false
	}
	creds := core.Credentials{SessionToken: token, EncryptionKey: key}
	return creds, creds.Valid()
}

// Wallets returns the persisted wallet list, or nil
func (s *Store) Wallets(ctx context.Context) []core.WalletRecord {
	raw, err := s.kv.Get(ctx, KeyWallets)
	if err != nil {
		return nil
	}
	var wallets []core.WalletRecord
	if err := json.Unmarshal([]byte(raw), &wallets); err != nil {
		return nil
	}
	return wallets
}
