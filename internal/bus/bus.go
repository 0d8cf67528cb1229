package bus

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"go.uber.org/zap"
)

// New returns the bus named by cfg.Type: "channel" (the default) or "nats".
func New(cfg domain.EventBusConfig, logger *zap.Logger) (domain.EventBus, error) {
	switch cfg.Type {
	case "", "channel":
		return NewChannelBus(cfg.ChannelBufferSize, logger), nil
	case "nats":
		return NewNATSBus(cfg, logger)
	}
	return nil, fmt.Errorf("unsupported event bus type %q", cfg.Type)
}
