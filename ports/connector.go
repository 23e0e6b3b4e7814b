package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/pinwallet/core"
)

// Connector is the account-abstraction interface a multi-chain framework consumes
type Connector interface {
	ID() string
	Name() string
	Type() string

	// Connect restores an existing session; chainID 0 selects the default chain
	Connect(ctx context.Context, chainID uint64) ([]common.Address, uint64, error)
	Disconnect(ctx context.Context) error
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	IsAuthorized(ctx context.Context) (bool, error)
	Provider(ctx context.Context) (SigningProvider, error)
	SwitchChain(ctx context.Context, chainID uint64) error

	OnAccountsChanged(ctx context.Context, accounts []common.Address)
	OnChainChanged(ctx context.Context, chainID uint64)
	OnDisconnect(ctx context.Context)
}

// SessionTerminator ends the wallet session when the framework asks the
// connector to disconnect
type SessionTerminator interface {
	Status() core.Status
	Disconnect(ctx context.Context) error
}

// Emitter receives connector lifecycle events
type Emitter interface {
	Emit(ctx context.Context, event core.ConnectorEvent)
}

// ConnectionStatus is the framework's view of a connection
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
)

// Connection is the framework's current connection
type Connection struct {
	ConnectorID string
	Accounts    []common.Address
	ChainID     uint64
	Status      ConnectionStatus
}

// Address returns the first account of the connection
func (c Connection) Address() (common.Address, bool) {
	if len(c.Accounts) == 0 {
		return common.Address{}, false
	}
	return c.Accounts[0], true
}

// Framework is the generic multi-chain framework the connector plugs into
type Framework interface {
	Connection() Connection
	Connect(ctx context.Context, connectorID string) error
	Disconnect(ctx context.Context) error
}
