// Package connector exposes the custody wallet session to a generic
// multi-chain framework as an account connector.
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/ports"
	"github.com/layer-3/pinwallet/session"
	"go.uber.org/zap"
)

// Identification of the connector towards the framework
const (
	ID   = "pinwallet"
	Name = "PIN Wallet"
	Type = "pinwallet"
)

// Connector implements ports.Connector over the persisted session.
// It never talks to the custody service.
type Connector struct {
	sessions  *session.Store
	signer    ports.SigningProvider
	emitter   ports.Emitter
	inspector ports.CredentialInspector
	chainID   uint64
	logger    *zap.Logger

	terminator ports.SessionTerminator
}

var _ ports.Connector = (*Connector)(nil)

// Option configures a Connector
type Option func(*Connector)

// WithTerminator relays framework disconnects to the owner of the session
func WithTerminator(t ports.SessionTerminator) Option {
	return func(c *Connector) { c.terminator = t }
}

// New creates a connector for chainID that reports to emitter
func New(sessions *session.Store, signer ports.SigningProvider, emitter ports.Emitter, chainID uint64, inspector ports.CredentialInspector, logger *zap.Logger, opts ...Option) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Connector{
		sessions:  sessions,
		signer:    signer,
		emitter:   emitter,
		inspector: inspector,
		chainID:   chainID,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) ID() string   { return ID }
func (c *Connector) Name() string { return Name }
func (c *Connector) Type() string { return Type }

// Connect adopts the persisted session. chainID 0 selects the configured chain.
func (c *Connector) Connect(ctx context.Context, chainID uint64) ([]common.Address, uint64, error) {
	snap, ok, err := c.sessions.Load(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, 0, core.ErrNoSession
	}
	primary, _ := snap.Primary()
	account, ok := primary.Account()
	if !ok {
		return nil, 0, fmt.Errorf("primary wallet %s has no account address: %w", primary.ID, core.ErrNoSession)
	}

	c.signer.SetAuthentication(snap.Credentials)

	if chainID == 0 {
		chainID = c.chainID
	}
	accounts := []common.Address{account}
	c.emitter.Emit(ctx, core.ConnectorEvent{
		Type:        core.EventConnect,
		ConnectorID: ID,
		Accounts:    accounts,
		ChainID:     chainID,
	})
	c.logger.Debug("connector connected", zap.Stringer("account", account), zap.Uint64("chain_id", chainID))
	return accounts, chainID, nil
}

// Disconnect ends a connected session and deletes the persisted snapshot.
// Credentials are not revoked remotely.
func (c *Connector) Disconnect(ctx context.Context) error {
	terminated, err := c.terminate(ctx)
	if err != nil {
		return err
	}
	if !terminated {
		if err := c.sessions.Clear(ctx); err != nil {
			return err
		}
	}
	c.emitter.Emit(ctx, core.ConnectorEvent{Type: core.EventDisconnect, ConnectorID: ID})
	return nil
}

// terminate disconnects the session owner while it is still connected.
// A disconnect the owner started itself finds it disconnected already.
func (c *Connector) terminate(ctx context.Context) (bool, error) {
	if c.terminator == nil || c.terminator.Status().State != core.StateConnected {
		return false, nil
	}
	c.logger.Info("framework requested disconnect; ending wallet session")
	if err := c.terminator.Disconnect(ctx); err != nil {
		return true, fmt.Errorf("end wallet session: %w", err)
	}
	return true, nil
}

// Accounts returns the primary wallet address, or nothing
func (c *Connector) Accounts(ctx context.Context) ([]common.Address, error) {
	wallets := c.sessions.Wallets(ctx)
	if len(wallets) == 0 {
		return []common.Address{}, nil
	}
	account, ok := wallets[0].Account()
	if !ok {
		return []common.Address{}, nil
	}
	return []common.Address{account}, nil
}

// ChainID returns the configured chain
func (c *Connector) ChainID(context.Context) (uint64, error) {
	return c.chainID, nil
}

// IsAuthorized reports whether a wallet list and a session token are stored
func (c *Connector) IsAuthorized(ctx context.Context) (bool, error) {
	if len(c.sessions.Wallets(ctx)) == 0 {
		return false, nil
	}
	token, err := c.sessions.KV().Get(ctx, session.KeySessionToken)
	if err != nil {
		return false, nil
	}
	return token != "", nil
}

// Provider returns the signing provider armed with the stored credentials
func (c *Connector) Provider(ctx context.Context) (ports.SigningProvider, error) {
	if creds, ok := c.sessions.Credentials(ctx); ok {
		c.signer.SetAuthentication(creds)
	}
	return c.signer, nil
}

// SwitchChain always fails; the wallet is bound to one chain
func (c *Connector) SwitchChain(context.Context, uint64) error {
	return core.ErrSwitchChainUnsupported
}

func (c *Connector) OnAccountsChanged(ctx context.Context, accounts []common.Address) {
	if len(accounts) == 0 {
		c.OnDisconnect(ctx)
		return
	}
	c.emitter.Emit(ctx, core.ConnectorEvent{Type: core.EventChange, ConnectorID: ID, Accounts: accounts})
}

func (c *Connector) OnChainChanged(ctx context.Context, chainID uint64) {
	c.emitter.Emit(ctx, core.ConnectorEvent{Type: core.EventChange, ConnectorID: ID, ChainID: chainID})
}

func (c *Connector) OnDisconnect(ctx context.Context) {
	if _, err := c.terminate(ctx); err != nil {
		c.logger.Warn("failed to end wallet session", zap.Error(err))
	}
	c.emitter.Emit(ctx, core.ConnectorEvent{Type: core.EventDisconnect, ConnectorID: ID})
}

// Account returns the primary wallet address
func (c *Connector) Account(ctx context.Context) (common.Address, bool) {
	accounts, _ := c.Accounts(ctx)
	if len(accounts) == 0 {
		return common.Address{}, false
	}
	return accounts[0], true
}

// SessionToken returns the stored session token, or ""
func (c *Connector) SessionToken(ctx context.Context) string {
	token, _ := c.sessions.KV().Get(ctx, session.KeySessionToken)
	return token
}

// EncryptionKey returns the stored encryption key, or ""
func (c *Connector) EncryptionKey(ctx context.Context) string {
	key, _ := c.sessions.KV().Get(ctx, session.KeyEncryptionKey)
	return key
}

// WalletID returns the id of the primary wallet, or ""
func (c *Connector) WalletID(ctx context.Context) string {
	wallets := c.sessions.Wallets(ctx)
	if len(wallets) == 0 {
		return ""
	}
	return wallets[0].ID
}

// TokenExpiry returns the expiry carried by the stored session token
func (c *Connector) TokenExpiry(ctx context.Context) (time.Time, bool) {
	token := c.SessionToken(ctx)
	if token == "" || c.inspector == nil {
		return time.Time{}, false
	}
	return c.inspector.ExpiresAt(token)
}
