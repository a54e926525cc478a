package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/pc-m/asterisk-scale-poc/internal/domain/model"
)

// watchLoop long-polls the catalog's health endpoint for Asterisk peers and
// edge-detects OK/KO transitions against its shadow table. One loop exists
// per leadership tenure; the gate discards it, shadow table included, when
// leadership is lost.
type watchLoop struct {
	health   HealthAPI
	logger   *slog.Logger
	waitTime time.Duration

	onOK []NodeFunc
	onKO []NodeFunc

	// shadow holds the last-known status per peer, used solely for
	// transition detection. Owned exclusively by the loop goroutine.
	shadow map[string]model.AsteriskNode
	// index is the opaque blocking-query index, reset to zero whenever the
	// loop restarts under new leadership.
	index uint64
}

func newWatchLoop(health HealthAPI, logger *slog.Logger, waitTime time.Duration, onOK, onKO []NodeFunc) *watchLoop {
	return &watchLoop{
		health:   health,
		logger:   logger,
		waitTime: waitTime,
		onOK:     onOK,
		onKO:     onKO,
		shadow:   make(map[string]model.AsteriskNode),
	}
}

// run primes the shadow table from the current full world state, notifying
// consumers of every peer, then polls for changes until cancelled. Catalog
// errors never terminate the loop.
func (w *watchLoop) run(ctx context.Context) {
	w.logger.Info("asterisk watch started")
	defer w.logger.Info("asterisk watch stopped")

	w.prime(ctx)

	for ctx.Err() == nil {
		w.poll(ctx)
	}
}

// prime fetches the peer set once, without blocking semantics. Every peer is
// reported: the previous tenure's shadow table is gone, so consumers need
// the full current state, not deltas.
func (w *watchLoop) prime(ctx context.Context) {
	entries, meta, err := w.health.Service(AsteriskServiceName, "", false, queryOptions(ctx))
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("consul error while priming watch", "error", err)
		}
		return
	}
	if ctx.Err() != nil {
		// Leadership was lost while the query was on the wire; the result
		// belongs to a tenure that no longer exists.
		return
	}
	w.index = meta.LastIndex

	for _, node := range nodesFromEntries(entries, w.logger) {
		w.report(ctx, node)
		w.shadow[node.ID] = node
	}
}

// poll issues one blocking query and reports status transitions. A peer
// missing from the shadow table counts as a transition worth reporting.
// Peers absent from the result are left untouched; disappearance detection
// is not this loop's concern.
func (w *watchLoop) poll(ctx context.Context) {
	q := queryOptions(ctx)
	q.WaitIndex = w.index
	q.WaitTime = w.waitTime

	entries, meta, err := w.health.Service(AsteriskServiceName, "", false, q)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("consul error while watching asterisk members", "error", err)
		}
		return
	}
	if ctx.Err() != nil {
		// An in-flight long poll that lands after cancellation is discarded,
		// never reported.
		return
	}

	if meta.LastIndex == w.index {
		// Wait elapsed with no change.
		return
	}
	w.index = meta.LastIndex

	for _, node := range nodesFromEntries(entries, w.logger) {
		last, known := w.shadow[node.ID]
		if !known || last.Status != node.Status {
			w.report(ctx, node)
		}
		w.shadow[node.ID] = node
	}
}

// report invokes the callback set matching the node's status, in
// registration order, awaiting each before moving on.
func (w *watchLoop) report(ctx context.Context, node model.AsteriskNode) {
	callbacks := w.onOK
	if node.Status == model.StatusKO {
		callbacks = w.onKO
	}

	for _, fn := range callbacks {
		if err := fn(ctx, node); err != nil {
			w.logger.Error("node callback failed",
				"node", node.ID,
				"status", node.Status.String(),
				"error", err)
		}
	}
}
