// Package framework is a minimal in-process multi-chain wallet framework.
// It registers connectors, tracks the current connection and relays
// connector events to subscribers.
package framework

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/ports"
	"go.uber.org/zap"
)

// Config holds the registered connectors and the current connection
type Config struct {
	events ports.EventPublisher
	logger *zap.Logger

	mu         sync.RWMutex
	connectors map[string]ports.Connector
	order      []string
	connection ports.Connection
}

var (
	_ ports.Emitter   = (*Config)(nil)
	_ ports.Framework = (*Config)(nil)
)

// New creates a framework that publishes connector events to events
func New(events ports.EventPublisher, logger *zap.Logger) *Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Config{
		events:     events,
		logger:     logger,
		connectors: make(map[string]ports.Connector),
		connection: ports.Connection{Status: ports.ConnectionDisconnected},
	}
}

// Register adds a connector, replacing one with the same id
func (c *Config) Register(connector ports.Connector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.connectors[connector.ID()]; !exists {
		c.order = append(c.order, connector.ID())
	}
	c.connectors[connector.ID()] = connector
}

// Connector returns a registered connector
func (c *Config) Connector(id string) (ports.Connector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	connector, ok := c.connectors[id]
	return connector, ok
}

// Connection returns a copy of the current connection
func (c *Config) Connection() ports.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn := c.connection
	conn.Accounts = append([]common.Address(nil), c.connection.Accounts...)
	return conn
}

// Emit applies a connector event to the connection and publishes it
func (c *Config) Emit(ctx context.Context, event core.ConnectorEvent) {
	c.mu.Lock()
	switch event.Type {
	case core.EventConnect:
		c.connection = ports.Connection{
			ConnectorID: event.ConnectorID,
			Accounts:    append([]common.Address(nil), event.Accounts...),
			ChainID:     event.ChainID,
			Status:      ports.ConnectionConnected,
		}
	case core.EventChange:
		if len(event.Accounts) > 0 {
			c.connection.Accounts = append([]common.Address(nil), event.Accounts...)
		}
		if event.ChainID != 0 {
			c.connection.ChainID = event.ChainID
		}
	case core.EventDisconnect:
		c.connection = ports.Connection{Status: ports.ConnectionDisconnected}
	}
	c.mu.Unlock()

	c.logger.Debug("connector event",
		zap.String("type", string(event.Type)),
		zap.String("connector_id", event.ConnectorID))

	if c.events == nil {
		return
	}
	if err := c.events.PublishConnectorEvent(context.WithoutCancel(ctx), event); err != nil {
		c.logger.Warn("failed to publish connector event", zap.Error(err))
	}
}

// Connect connects through the connector registered as id
func (c *Config) Connect(ctx context.Context, id string) error {
	connector, ok := c.Connector(id)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrConnectorNotFound, id)
	}

	c.mu.Lock()
	previous := c.connection
	c.connection.Status = ports.ConnectionConnecting
	c.mu.Unlock()

	accounts, chainID, err := connector.Connect(ctx, 0)
	if err != nil {
		c.mu.Lock()
		if c.connection.Status == ports.ConnectionConnecting {
			c.connection = previous
		}
		c.mu.Unlock()
		return fmt.Errorf("connect %s: %w", id, err)
	}

	c.mu.Lock()
	if c.connection.Status != ports.ConnectionConnected || c.connection.ConnectorID != id {
		c.connection = ports.Connection{
			ConnectorID: id,
			Accounts:    accounts,
			ChainID:     chainID,
			Status:      ports.ConnectionConnected,
		}
	}
	c.mu.Unlock()
	return nil
}

// Disconnect disconnects the current connector, if any
func (c *Config) Disconnect(ctx context.Context) error {
	c.mu.RLock()
	id := c.connection.ConnectorID
	c.mu.RUnlock()

	var err error
	if connector, ok := c.Connector(id); ok {
		err = connector.Disconnect(ctx)
	}

	c.mu.Lock()
	c.connection = ports.Connection{Status: ports.ConnectionDisconnected}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("disconnect %s: %w", id, err)
	}
	return nil
}

// Reconnect connects through the first authorized connector, in registration order
func (c *Config) Reconnect(ctx context.Context) error {
	c.mu.RLock()
	ids := append([]string(nil), c.order...)
	c.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		connector, ok := c.Connector(id)
		if !ok {
			continue
		}
		authorized, err := connector.IsAuthorized(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !authorized {
			continue
		}
		if err := c.Connect(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}
