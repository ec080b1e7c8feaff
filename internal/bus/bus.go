package bus

import (
	"fmt"

	"github.com/opensource-finance/mulerift/internal/domain"
)

// New creates an event bus based on configuration: in-process channels by
// default, NATS when downstream systems consume ring alerts.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
