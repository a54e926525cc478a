package bus

import (
	"context"
	"encoding/json"

	"github.com/pc-m/asterisk-scale-poc/internal/domain/model"
)

// consume is the consumer pipeline: one message at a time, in arrival order,
// each handler awaited before the next message is dequeued. A slow handler
// throttling consumption is the intended admission control.
func (b *Bus) consume(ctx context.Context, deliveries <-chan Delivery) error {
	for {
		// Cancellation wins over a delivery that is ready at the same time.
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			b.dispatch(ctx, d)
		}
	}
}

// dispatch acknowledges d, decodes it and routes it through the registry.
// Messages are acknowledged before processing: redelivering a message its
// handler cannot process would only build a poison loop.
func (b *Bus) dispatch(ctx context.Context, d Delivery) {
	if err := d.Ack(); err != nil {
		b.logger.Error("failed to ack message", "error", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(d.Body(), &doc); err != nil {
		b.logger.Error("error while decoding AMQP message", "error", err)
		return
	}

	// Most bus traffic is not stasis-related; no type means not interesting.
	eventType, _ := doc["type"].(string)
	if eventType == "" {
		return
	}

	asteriskID, _ := doc["asterisk_id"].(string)
	if asteriskID == "" {
		b.logger.Error("message without asterisk id", "type", eventType)
		return
	}

	applicationName := resolveApplicationName(doc)
	if !model.ValidApplicationName(applicationName) {
		b.logger.Error("not a valid application", "type", eventType, "application", applicationName)
		return
	}

	h, ok := b.registry.Lookup(eventType)
	if !ok {
		return
	}

	callCtx := model.NewContext(asteriskID)
	event := model.NewStasisEvent(asteriskID, applicationName)

	if err := h(ctx, callCtx, event, doc); err != nil {
		b.logger.Error("handler failed", "type", eventType, "application", applicationName, "error", err)
	}
}

// resolveApplicationName reads the top-level application field, falling back
// to channel.dialplan.app_data when absent.
func resolveApplicationName(doc map[string]any) string {
	if name, _ := doc["application"].(string); name != "" {
		return name
	}

	channel, _ := doc["channel"].(map[string]any)
	dialplan, _ := channel["dialplan"].(map[string]any)
	name, _ := dialplan["app_data"].(string)
	return name
}
