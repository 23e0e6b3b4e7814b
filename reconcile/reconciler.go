// Package reconcile keeps the multi-chain framework's connection in step with
// the onboarding machine.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/pinwallet/adapters/events"
	"github.com/layer-3/pinwallet/internal/metrics"
	"github.com/layer-3/pinwallet/ports"
	"go.uber.org/zap"
)

// Action is the corrective step taken by an evaluation
type Action string

const (
	ActionNone       Action = "none"
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
)

// observation is the input of one evaluation
type observation struct {
	connected        bool
	address          string
	frameworkStatus  ports.ConnectionStatus
	frameworkAddress string
}

// Reconciler connects or disconnects the framework so that it mirrors the
// machine. Machine state is authoritative.
type Reconciler struct {
	machine     StateSource
	framework   ports.Framework
	connectorID string
	accounts    *AccountQuery
	metrics     *metrics.Metrics
	logger      *zap.Logger

	mu   sync.Mutex
	last *observation
}

// New creates a reconciler that drives framework through connectorID
func New(machine StateSource, framework ports.Framework, connectorID string, accounts *AccountQuery, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		machine:     machine,
		framework:   framework,
		connectorID: connectorID,
		accounts:    accounts,
		metrics:     m,
		logger:      logger,
	}
}

// Evaluate compares both sides once and takes at most one action.
// Inputs equal to those of the previous successful action never cause a
// second one; a failed action is tried again on the next evaluation.
func (r *Reconciler) Evaluate(ctx context.Context) (Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obs := r.observe()
	action := decide(obs)
	if action == ActionNone {
		r.last = nil
		return ActionNone, nil
	}
	if r.last != nil && *r.last == obs {
		return ActionNone, nil
	}
	r.last = &obs

	var err error
	switch action {
	case ActionConnect:
		r.logger.Info("syncing framework with wallet", zap.String("address", obs.address))
		err = r.framework.Connect(ctx, r.connectorID)
	case ActionDisconnect:
		r.logger.Info("disconnecting framework to match wallet state")
		err = r.framework.Disconnect(ctx)
	}
	r.metrics.ReconcilerAction(string(action), err)
	if r.accounts != nil {
		r.accounts.Invalidate()
	}
	if err != nil {
		r.last = nil
		return action, fmt.Errorf("reconcile %s: %w", action, err)
	}
	return action, nil
}

func (r *Reconciler) observe() observation {
	status := r.machine.Status()
	conn := r.framework.Connection()

	obs := observation{
		connected:       status.Connected(),
		address:         normalize(status.Address),
		frameworkStatus: conn.Status,
	}
	if address, ok := conn.Address(); ok {
		obs.frameworkAddress = normalize(address.Hex())
	}
	return obs
}

func decide(obs observation) Action {
	if obs.frameworkStatus == ports.ConnectionConnecting {
		return ActionNone
	}
	frameworkConnected := obs.frameworkStatus == ports.ConnectionConnected
	if obs.connected && obs.address != "" {
		if !frameworkConnected || obs.frameworkAddress != obs.address {
			return ActionConnect
		}
		return ActionNone
	}
	if !obs.connected && frameworkConnected {
		return ActionDisconnect
	}
	return ActionNone
}

func normalize(address string) string {
	if common.IsHexAddress(address) {
		return common.HexToAddress(address).Hex()
	}
	return strings.ToLower(address)
}

// Run evaluates once, then again on every state change and connector event
// until ctx is done
func (r *Reconciler) Run(ctx context.Context, subscriber message.Subscriber) error {
	states, err := subscriber.Subscribe(ctx, events.StateTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.StateTopic, err)
	}
	connectorEvents, err := subscriber.Subscribe(ctx, events.ConnectorTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.ConnectorTopic, err)
	}

	r.evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-states:
			if !ok {
				return nil
			}
			msg.Ack()
			r.evaluate(ctx)
		case msg, ok := <-connectorEvents:
			if !ok {
				return nil
			}
			msg.Ack()
			r.evaluate(ctx)
		}
	}
}

func (r *Reconciler) evaluate(ctx context.Context) {
	action, err := r.Evaluate(ctx)
	if err != nil {
		r.logger.Warn("reconcile failed", zap.String("action", string(action)), zap.Error(err))
	}
}
