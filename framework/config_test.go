package framework

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/pinwallet/adapters/store"
	"github.com/layer-3/pinwallet/connector"
	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/ports"
	"github.com/layer-3/pinwallet/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []core.ConnectorEvent
}

func (l *eventLog) PublishStateChange(context.Context, core.StateChange) error { return nil }

func (l *eventLog) PublishConnectorEvent(_ context.Context, event core.ConnectorEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) types() []core.ConnectorEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]core.ConnectorEventType, 0, len(l.events))
	for _, e := range l.events {
		types = append(types, e.Type)
	}
	return types
}

type nopSigner struct{}

func (nopSigner) IsReady() bool                            { return true }
func (nopSigner) SetAuthentication(core.Credentials)       {}
func (nopSigner) Execute(string, func(error))              {}
func (nopSigner) DeviceID(context.Context) (string, error) { return "", nil }

var account = common.HexToAddress("0x1111111111111111111111111111111111111111")

func newFramework(t *testing.T, persisted bool) (*Config, *session.Store, *eventLog) {
	t.Helper()
	sessions := session.NewStore(store.NewMemoryStore())
	if persisted {
		require.NoError(t, sessions.Save(context.Background(), core.Snapshot{
			Identity:    "alice1",
			Credentials: core.Credentials{SessionToken: "t1", EncryptionKey: "k1"},
			Wallets:     []core.WalletRecord{{ID: "w1", Address: account.Hex(), Blockchain: "ARC-TESTNET"}},
		}))
	}
	events := &eventLog{}
	cfg := New(events, nil)
	cfg.Register(connector.New(sessions, nopSigner{}, cfg, 5042002, nil, nil))
	return cfg, sessions, events
}

func TestConnectAndDisconnect(t *testing.T) {
	ctx := context.Background()
	cfg, sessions, events := newFramework(t, true)

	assert.Equal(t, ports.ConnectionDisconnected, cfg.Connection().Status)

	require.NoError(t, cfg.Connect(ctx, connector.ID))
	conn := cfg.Connection()
	assert.Equal(t, ports.ConnectionConnected, conn.Status)
	assert.Equal(t, connector.ID, conn.ConnectorID)
	assert.Equal(t, uint64(5042002), conn.ChainID)
	address, ok := conn.Address()
	require.True(t, ok)
	assert.Equal(t, account, address)

	require.NoError(t, cfg.Disconnect(ctx))
	assert.Equal(t, ports.ConnectionDisconnected, cfg.Connection().Status)
	_, ok, err := sessions.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []core.ConnectorEventType{core.EventConnect, core.EventDisconnect}, events.types())
}

func TestConnect_NoSessionRestoresPrevious(t *testing.T) {
	cfg, _, events := newFramework(t, false)

	err := cfg.Connect(context.Background(), connector.ID)
	assert.ErrorIs(t, err, core.ErrNoSession)
	assert.Equal(t, ports.ConnectionDisconnected, cfg.Connection().Status)
	assert.Empty(t, events.types())
}

func TestConnect_UnknownConnector(t *testing.T) {
	cfg, _, _ := newFramework(t, true)
	assert.ErrorIs(t, cfg.Connect(context.Background(), "injected"), core.ErrConnectorNotFound)
}

func TestEmit_Change(t *testing.T) {
	ctx := context.Background()
	cfg, _, _ := newFramework(t, true)
	require.NoError(t, cfg.Connect(ctx, connector.ID))

	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	cfg.Emit(ctx, core.ConnectorEvent{Type: core.EventChange, ConnectorID: connector.ID, Accounts: []common.Address{other}})
	cfg.Emit(ctx, core.ConnectorEvent{Type: core.EventChange, ConnectorID: connector.ID, ChainID: 1})

	conn := cfg.Connection()
	assert.Equal(t, []common.Address{other}, conn.Accounts)
	assert.Equal(t, uint64(1), conn.ChainID)
	assert.Equal(t, ports.ConnectionConnected, conn.Status)
}

func TestReconnect(t *testing.T) {
	ctx := context.Background()

	cfg, _, _ := newFramework(t, true)
	require.NoError(t, cfg.Reconnect(ctx))
	assert.Equal(t, ports.ConnectionConnected, cfg.Connection().Status)

	cfg, _, _ = newFramework(t, false)
	require.NoError(t, cfg.Reconnect(ctx))
	assert.Equal(t, ports.ConnectionDisconnected, cfg.Connection().Status)
}
