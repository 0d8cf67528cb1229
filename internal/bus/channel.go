// Package bus carries decision and alert events and alert-resolution
// commands, either in process or over NATS.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus is closed")

// ChannelBus delivers messages in process. Every subscriber owns a buffered
// queue drained by its own goroutine; when the queue is full the message is
// dropped for that subscriber, so delivery is at most once.
type ChannelBus struct {
	mu      sync.RWMutex
	queue   int
	topics  map[string]map[*inbox]struct{}
	stopped bool
	logger  *zap.Logger
}

type inbox struct {
	bus     *ChannelBus
	topic   string
	handler domain.MessageHandler
	pending chan *domain.Message
	ctx     context.Context
	stop    context.CancelFunc
}

// NewChannelBus returns a bus whose subscribers buffer up to queue messages.
// A non-positive queue becomes 1000.
func NewChannelBus(queue int, logger *zap.Logger) *ChannelBus {
	if queue <= 0 {
		queue = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelBus{
		queue:  queue,
		topics: make(map[string]map[*inbox]struct{}),
		logger: logger.Named("bus"),
	}
}

// Publish fans payload out to the topic's subscribers without blocking.
func (b *ChannelBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return ErrClosed
	}

	msg := domain.NewMessage(topic, payload)
	for in := range b.topics[topic] {
		select {
		case in.pending <- msg:
		default:
			b.logger.Warn("subscriber queue full, message dropped",
				zap.String("topic", topic),
				zap.String("message_id", msg.ID),
			)
		}
	}
	return nil
}

// Subscribe starts delivering topic messages to handler. Delivery stops on
// Unsubscribe, on Close, or when ctx ends.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil, ErrClosed
	}

	in := &inbox{
		bus:     b,
		topic:   topic,
		handler: handler,
		pending: make(chan *domain.Message, b.queue),
	}
	in.ctx, in.stop = context.WithCancel(ctx)

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*inbox]struct{})
	}
	b.topics[topic][in] = struct{}{}

	go in.drain(b.logger)
	return in, nil
}

func (b *ChannelBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return ErrClosed
	}
	return nil
}

// Close stops every subscriber. Calling it twice is harmless.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil
	}
	b.stopped = true
	for _, set := range b.topics {
		for in := range set {
			in.stop()
		}
	}
	clear(b.topics)
	return nil
}

func (in *inbox) drain(log *zap.Logger) {
	for {
		select {
		case <-in.ctx.Done():
			return
		case msg := <-in.pending:
			if err := in.handler(in.ctx, msg); err != nil {
				log.Error("message handler failed",
					zap.String("topic", msg.Topic),
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func (in *inbox) Unsubscribe() error {
	in.stop()

	b := in.bus
	b.mu.Lock()
	if set := b.topics[in.topic]; set != nil {
		delete(set, in)
		if len(set) == 0 {
			delete(b.topics, in.topic)
		}
	}
	b.mu.Unlock()
	return nil
}

func (in *inbox) Topic() string { return in.topic }
