package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/kestrel/internal/domain"
	"go.uber.org/zap"
)

// NATSBus publishes each topic on the NATS subject of the same name. Message
// envelopes travel as JSON.
type NATSBus struct {
	nc     *nats.Conn
	logger *zap.Logger

	mu   sync.Mutex
	subs map[*natsSub]struct{}
}

type natsSub struct {
	bus   *NATSBus
	topic string
	raw   *nats.Subscription
}

// NewNATSBus dials cfg.NATSUrl. The initial dial is retried
// NATSMaxReconnects times, NATSReconnectWait seconds apart; the same limits
// govern reconnects once connected.
func NewNATSBus(cfg domain.EventBusConfig, logger *zap.Logger) (*NATSBus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("bus")

	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}

	opts := natsOptions(log, cfg.NATSToken, attempts, wait)

	var nc *nats.Conn
	var err error
	for attempt := 1; ; attempt++ {
		if nc, err = nats.Connect(url, opts...); err == nil {
			break
		}
		if attempt == attempts {
			return nil, fmt.Errorf("nats %s: gave up after %d attempts: %w", url, attempts, err)
		}
		log.Warn("nats dial failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		time.Sleep(wait)
	}

	log.Info("nats connected", zap.String("url", nc.ConnectedUrl()))
	return &NATSBus{nc: nc, logger: log, subs: make(map[*natsSub]struct{})}, nil
}

func natsOptions(log *zap.Logger, token string, reconnects int, wait time.Duration) []nats.Option {
	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(reconnects),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			log.Error("nats async error", fields...)
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	return opts
}

func (b *NATSBus) Publish(_ context.Context, topic string, payload []byte) error {
	data, err := json.Marshal(domain.NewMessage(topic, payload))
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return b.nc.Publish(topic, data)
}

// Subscribe attaches handler to the topic subject. Envelopes that fail to
// decode are logged and skipped.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	raw, err := b.nc.Subscribe(topic, func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.logger.Warn("undecodable envelope", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		if err := handler(ctx, &msg); err != nil {
			b.logger.Error("message handler failed",
				zap.String("topic", msg.Topic),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s := &natsSub{bus: b, topic: topic, raw: raw}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.nc.IsConnected() {
		return errors.New("nats: not connected")
	}
	return b.nc.FlushWithContext(ctx)
}

// Close drops every subscription and the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	for s := range b.subs {
		_ = s.raw.Unsubscribe()
	}
	clear(b.subs)
	b.mu.Unlock()

	b.nc.Close()
	return nil
}

func (s *natsSub) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.raw.Unsubscribe()
}

func (s *natsSub) Topic() string { return s.topic }
