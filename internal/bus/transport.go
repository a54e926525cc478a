package bus

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pc-m/asterisk-scale-poc/config"
	"github.com/pc-m/asterisk-scale-poc/internal/domain/model"
)

// Delivery is the handle to one inbound transport message. It must be
// acknowledged exactly once, whatever the processing outcome.
type Delivery interface {
	Body() []byte
	Ack() error
}

// Publisher publishes one outbound event on the connection generation that
// opened it. Publication is fire-and-forget; there is no confirm wait.
type Publisher interface {
	Publish(ctx context.Context, ev model.OutboundEvent) error
}

// transport is one broker connection generation. The supervisor is its sole
// owner: it opens the pipelines once per generation and closes the whole
// thing when the connection dies or the supervisor is cancelled.
type transport interface {
	Consume() (<-chan Delivery, error)
	OpenPublisher() (Publisher, error)
	Closed() <-chan *amqp.Error
	Close() error
}

type dialFunc func(cfg config.AMQPConfig) (transport, error)

type amqpTransport struct {
	conn *amqp.Connection
	cfg  config.AMQPConfig

	// done releases the delivery forwarder when the generation is torn down,
	// so a send nobody receives anymore cannot strand it.
	done      chan struct{}
	closeOnce sync.Once
}

func dialAMQP(cfg config.AMQPConfig) (transport, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("dial %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &amqpTransport{conn: conn, cfg: cfg, done: make(chan struct{})}, nil
}

// Consume declares the exchange and the service queue, binds it under the
// configured routing key and starts delivering messages.
func (t *amqpTransport) Consume() (<-chan Delivery, error) {
	ch, err := t.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}

	if err := ch.ExchangeDeclare(t.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", t.cfg.Exchange, err)
	}

	q, err := ch.QueueDeclare(ServiceID, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", ServiceID, err)
	}

	// TODO(binding): bind per registered application instead of funnelling
	// every stasis message into one queue.
	if err := ch.QueueBind(q.Name, t.cfg.RoutingKey, t.cfg.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", q.Name, err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume queue %s: %w", q.Name, err)
	}

	out := make(chan Delivery)
	go forwardDeliveries(deliveries, out, t.done)

	return out, nil
}

// forwardDeliveries adapts broker deliveries to the pipeline channel until
// the source closes or the generation is torn down.
func forwardDeliveries(in <-chan amqp.Delivery, out chan<- Delivery, done <-chan struct{}) {
	defer close(out)
	for d := range in {
		select {
		case out <- amqpDelivery{d: d}:
		case <-done:
			return
		}
	}
}

// OpenPublisher declares the service's own topic exchange and returns a
// publisher bound to it.
func (t *amqpTransport) OpenPublisher() (Publisher, error) {
	ch, err := t.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ServiceID, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", ServiceID, err)
	}

	return &amqpPublisher{ch: ch}, nil
}

func (t *amqpTransport) Closed() <-chan *amqp.Error {
	return t.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (t *amqpTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return t.conn.Close()
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (a amqpDelivery) Body() []byte { return a.d.Body }
func (a amqpDelivery) Ack() error   { return a.d.Ack(false) }

type amqpPublisher struct {
	ch *amqp.Channel
}

func (p *amqpPublisher) Publish(ctx context.Context, ev model.OutboundEvent) error {
	headers := amqp.Table{}
	for k, v := range ev.Metadata {
		headers[k] = v
	}

	return p.ch.PublishWithContext(ctx, ServiceID, ev.RoutingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Headers:     headers,
		Body:        ev.Body,
	})
}
