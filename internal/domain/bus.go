package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Topics published and consumed by Kestrel.
const (
	TopicDecisionMade  = "kestrel.decision.made"
	TopicAlertCreated  = "kestrel.alert.created"
	TopicAlertResolved = "kestrel.alert.resolved"

	// TopicAlertResolve carries AlertResolution commands.
	TopicAlertResolve = "kestrel.alert.resolve"
)

// EventBus moves opaque payloads between publishers and topic subscribers.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler is invoked once per delivered message. A returned error is
// logged by the bus; the message is not redelivered.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope every bus delivers.
type Message struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Payload     []byte    `json:"payload"`
	PublishedAt time.Time `json:"publishedAt"`
}

// NewMessage stamps a fresh envelope for payload.
func NewMessage(topic string, payload []byte) *Message {
	return &Message{
		ID:          uuid.NewString(),
		Topic:       topic,
		Payload:     payload,
		PublishedAt: time.Now().UTC(),
	}
}

// Subscription is a live topic registration.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the event bus.
type EventBusConfig struct {
	// Type is "channel" (in process) or "nats".
	Type string `mapstructure:"type"`

	ChannelBufferSize int `mapstructure:"channelBufferSize"`

	NATSUrl           string `mapstructure:"natsUrl"`
	NATSToken         string `mapstructure:"natsToken"`
	NATSMaxReconnects int    `mapstructure:"natsMaxReconnects"`
	// NATSReconnectWait is in seconds.
	NATSReconnectWait int `mapstructure:"natsReconnectWait"`
}
