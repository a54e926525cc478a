package bus

import (
	"context"

	"github.com/pc-m/asterisk-scale-poc/internal/domain/model"
)

// Handler processes one dispatched Stasis event. The raw decoded document is
// forwarded untouched so handlers can reach fields the core does not model.
type Handler func(ctx context.Context, callCtx model.Context, event model.StasisEvent, payload map[string]any) error

// Registry maps an event-type string to its handler. It is populated once at
// startup, before the consumer pipeline starts, and treated as read-only
// afterwards; registering after startup is unsupported.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// OnEvent registers h for eventType. Registering the same type twice
// overwrites the previous handler.
func (r *Registry) OnEvent(eventType string, h Handler) {
	r.handlers[eventType] = h
}

func (r *Registry) Lookup(eventType string) (Handler, bool) {
	h, ok := r.handlers[eventType]
	return h, ok
}
