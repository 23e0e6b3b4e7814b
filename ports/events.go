package ports

import (
	"context"

	"github.com/layer-3/pinwallet/core"
)

// EventPublisher publishes lifecycle events to interested subscribers
type EventPublisher interface {
	PublishStateChange(ctx context.Context, change core.StateChange) error
	PublishConnectorEvent(ctx context.Context, event core.ConnectorEvent) error
}
