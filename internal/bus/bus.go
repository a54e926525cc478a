// Package bus maintains the durable AMQP connection carrying call-control
// events: a supervisor owns the connection and restarts the consumer and
// producer pipelines on every reconnect, while inbound messages are routed
// through a typed dispatch registry.
package bus

import (
	"log/slog"

	"github.com/pc-m/asterisk-scale-poc/config"
	"github.com/pc-m/asterisk-scale-poc/internal/domain/model"
	"github.com/pc-m/asterisk-scale-poc/internal/retry"
)

// ServiceID names the consume queue and the outbound exchange.
const ServiceID = "wazo-applicationd"

type Bus struct {
	cfg      config.AMQPConfig
	logger   *slog.Logger
	registry *Registry
	out      *eventQueue
	retry    retry.Policy
	dial     dialFunc
}

func New(cfg *config.Config, logger *slog.Logger, registry *Registry) *Bus {
	return &Bus{
		cfg:      cfg.AMQP,
		logger:   logger,
		registry: registry,
		out:      newEventQueue(),
		retry:    retry.FixedDelay(cfg.AMQP.ReconnectionInterval),
		dial:     dialAMQP,
	}
}

// OnEvent registers a handler for an event type. Must be called before Run;
// the registry is read-only once the consumer pipeline starts.
func (b *Bus) OnEvent(eventType string, h Handler) {
	b.registry.OnEvent(eventType, h)
}

// Publish enqueues ev for publication. It never blocks, even while the
// connection is down; the event is published once a connection is live.
func (b *Bus) Publish(ev model.OutboundEvent) {
	b.out.Enqueue(ev)
}
