package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/pinwallet/core"
	"github.com/layer-3/pinwallet/ports"
)

// Topics events are published on
const (
	StateTopic     = "pinwallet.state"
	ConnectorTopic = "pinwallet.connector"
)

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishStateChange publishes a state change of the onboarding machine
func (p *WatermillPublisher) PublishStateChange(ctx context.Context, change core.StateChange) error {
	return p.publish(ctx, StateTopic, change)
}

// PublishConnectorEvent publishes a connector lifecycle event
func (p *WatermillPublisher) PublishConnectorEvent(ctx context.Context, event core.ConnectorEvent) error {
	return p.publish(ctx, ConnectorTopic, event)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// DecodeStateChange decodes a message published with PublishStateChange
func DecodeStateChange(msg *message.Message) (core.StateChange, error) {
	var change core.StateChange
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		return core.StateChange{}, fmt.Errorf("failed to unmarshal state change: %w", err)
	}
	return change, nil
}

// DecodeConnectorEvent decodes a message published with PublishConnectorEvent
func DecodeConnectorEvent(msg *message.Message) (core.ConnectorEvent, error) {
	var event core.ConnectorEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return core.ConnectorEvent{}, fmt.Errorf("failed to unmarshal connector event: %w", err)
	}
	return event, nil
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishStateChange(context.Context, core.StateChange) error       { return nil }
func (NopPublisher) PublishConnectorEvent(context.Context, core.ConnectorEvent) error { return nil }
