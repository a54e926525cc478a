package model

import (
	"encoding/json"
	"fmt"
)

// OutboundEvent is an event queued for publication on the bus. It is
// immutable once enqueued: Metadata becomes transport headers, RoutingKey
// addresses the topic exchange, Name is for logging only.
type OutboundEvent struct {
	Name       string
	Body       []byte
	Metadata   map[string]string
	RoutingKey string
}

// NewJSONEvent marshals payload into an event body.
func NewJSONEvent(name string, payload any, metadata map[string]string, routingKey string) (OutboundEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboundEvent{}, fmt.Errorf("marshal event %q: %w", name, err)
	}

	return OutboundEvent{
		Name:       name,
		Body:       body,
		Metadata:   metadata,
		RoutingKey: routingKey,
	}, nil
}
