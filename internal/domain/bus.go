package domain

import (
	"context"
)

// EventBus publishes run and ring events to downstream consumers.
// In-process channels by default, NATS when configured.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics published by the engine.
const (
	TopicRunCompleted = "mulerift.run.completed"
	TopicRingDetected = "mulerift.ring.detected"
)

// RingEvent is the payload published on TopicRingDetected for each ring at
// or above the configured alert floor.
type RingEvent struct {
	RunID string    `json:"runId"`
	Ring  FraudRing `json:"ring"`
}

// RunEvent is the payload published on TopicRunCompleted.
type RunEvent struct {
	RunID   string  `json:"runId"`
	Source  string  `json:"source"`
	Summary Summary `json:"summary"`
}
