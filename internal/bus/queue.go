package bus

import (
	"context"
	"sync"

	"github.com/pc-m/asterisk-scale-poc/internal/domain/model"
)

// eventQueue is the unbounded FIFO backing Publish. Enqueue never blocks the
// caller, even while the connection is down; growth during a prolonged outage
// is an accepted risk. Dequeue is only ever called by the single live
// producer pipeline.
type eventQueue struct {
	mu     sync.Mutex
	items  []model.OutboundEvent
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) Enqueue(ev model.OutboundEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Dequeue pops the oldest event, blocking until one is available. It returns
// false only when ctx is cancelled while the queue is empty.
func (q *eventQueue) Dequeue(ctx context.Context) (model.OutboundEvent, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.OutboundEvent{}, false
		case <-q.signal:
		}
	}
}

func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
