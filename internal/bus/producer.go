package bus

import "context"

// produce is the producer pipeline: it drains the outbound queue in FIFO
// order and publishes each event on this generation's connection. Failures
// are logged, not retried; a dead connection surfaces through the supervisor
// restarting the whole pair.
func (b *Bus) produce(ctx context.Context, pub Publisher) error {
	for {
		ev, ok := b.out.Dequeue(ctx)
		if !ok {
			return nil
		}

		b.logger.Debug("publishing event", "event", ev.Name, "routing_key", ev.RoutingKey)
		if err := pub.Publish(ctx, ev); err != nil {
			b.logger.Error("failed to publish event", "event", ev.Name, "error", err)
		}
	}
}
