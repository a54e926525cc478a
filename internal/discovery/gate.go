package discovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pc-m/asterisk-scale-poc/config"
)

// Elector is the external election primitive: it campaigns for key and calls
// back on role transitions. onElected receives a context bounded by the
// current campaign; liveness of the election is tied to the given health
// check IDs.
type Elector interface {
	Start(ctx context.Context, key string, checkIDs []string, onElected func(ctx context.Context), onResigned func()) error
}

// LeadershipGate ensures at most one watch loop runs per process, and only
// while this replica holds leadership. The watch loop never talks to the
// election mechanism directly.
type LeadershipGate struct {
	logger  *slog.Logger
	elector Elector
	key     string

	// watch starts a fresh watch loop; injected so the gate is testable
	// without a catalog.
	watch func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLeadershipGate(cfg *config.Config, logger *slog.Logger, elector Elector, d *Discovery) *LeadershipGate {
	return &LeadershipGate{
		logger:  logger,
		elector: elector,
		key:     cfg.Discovery.LeadershipKey,
		watch: func(ctx context.Context) {
			loop := newWatchLoop(d.health, logger, cfg.Discovery.WatchWait, d.onNodeOK, d.onNodeKO)
			loop.run(ctx)
		},
	}
}

// Run campaigns until cancelled. It returns with no watch activity left
// running.
func (g *LeadershipGate) Run(ctx context.Context) error {
	defer g.stopWatch()
	return g.elector.Start(ctx, g.key, []string{CheckID}, g.startWatch, g.stopWatch)
}

func (g *LeadershipGate) startWatch(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		return
	}
	g.logger.Info("acquired leadership, starting asterisk watch")

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	g.cancel = cancel
	g.done = done

	go func() {
		defer close(done)
		g.watch(watchCtx)
	}()
}

// stopWatch cancels the running watch loop and waits for it to finish, so no
// orphaned watch activity survives a leadership change.
func (g *LeadershipGate) stopWatch() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()

	if cancel == nil {
		return
	}
	g.logger.Info("leadership released, stopping asterisk watch")

	cancel()
	<-done
}
