package bus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pc-m/asterisk-scale-poc/config"
)

// logRecorder captures slog records so tests can assert on what was (and was
// not) logged.
type logRecorder struct {
	mu      sync.Mutex
	records []slog.Record
}

func (r *logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *logRecorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *logRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *logRecorder) WithGroup(string) slog.Handler      { return r }

func (r *logRecorder) count(level slog.Level, msgContains string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.records {
		if rec.Level == level && strings.Contains(rec.Message, msgContains) {
			n++
		}
	}
	return n
}

func newTestBus() (*Bus, *logRecorder) {
	rec := &logRecorder{}
	cfg := &config.Config{
		AMQP: config.AMQPConfig{
			Host:                 "localhost",
			Port:                 5672,
			Exchange:             "wazo-events",
			RoutingKey:           "stasis.#",
			ReconnectionInterval: time.Millisecond,
		},
	}
	return New(cfg, slog.New(rec), NewRegistry()), rec
}

type fakeDelivery struct {
	mu   sync.Mutex
	body []byte
	acks int
}

func (d *fakeDelivery) Body() []byte { return d.body }

func (d *fakeDelivery) Ack() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acks++
	return nil
}

func (d *fakeDelivery) ackCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acks
}
