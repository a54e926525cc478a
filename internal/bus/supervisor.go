package bus

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run is the connection supervisor. It returns only on cancellation; every
// failure, transport or protocol, is logged and retried after the configured
// reconnection interval. At most one consumer/producer pair is alive at any
// instant.
func (b *Bus) Run(ctx context.Context) error {
	b.logger.Info("starting AMQP bus", "host", b.cfg.Host, "port", b.cfg.Port)

	for {
		if ctx.Err() != nil {
			return nil
		}

		t, err := b.dial(b.cfg)
		if err != nil {
			b.logger.Error("failed to connect to broker",
				"kind", Classify(err).String(),
				"error", err,
				"retry_in", b.cfg.ReconnectionInterval)
			if err := b.retry.Wait(ctx); err != nil {
				return nil
			}
			continue
		}

		b.logger.Info("connected to broker, consuming")
		b.runGeneration(ctx, t)

		if ctx.Err() != nil {
			return nil
		}
		if err := b.retry.Wait(ctx); err != nil {
			return nil
		}
	}
}

// runGeneration drives one connection generation: it wires the pipelines to
// the live connection and blocks until the connection dies or the supervisor
// is cancelled. Both pipelines are joined before it returns, so a superseded
// generation can produce no further side effects.
func (b *Bus) runGeneration(ctx context.Context, t transport) {
	defer t.Close()

	deliveries, err := t.Consume()
	if err != nil {
		b.logger.Error("consumer setup failed", "kind", Classify(err).String(), "error", err)
		return
	}

	pub, err := t.OpenPublisher()
	if err != nil {
		b.logger.Error("producer setup failed", "kind", Classify(err).String(), "error", err)
		return
	}

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return b.consume(genCtx, deliveries) })
	g.Go(func() error { return b.produce(genCtx, pub) })

	select {
	case <-ctx.Done():
	case amqpErr := <-t.Closed():
		if amqpErr != nil {
			b.logger.Error("broker connection lost", "error", amqpErr)
		}
	}

	cancel()
	_ = g.Wait()
}
