package discovery

import (
	"context"

	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

var Module = fx.Module("discovery",
	fx.Provide(
		New,
		NewConsulElector,
		NewLeadershipGate,
	),

	fx.Invoke(run),
)

// run starts the registrar and the leadership gate as independent
// long-running tasks tied to the process lifecycle.
func run(lc fx.Lifecycle, d *Discovery, gate *LeadershipGate) {
	var cancel context.CancelFunc
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, c := context.WithCancel(context.Background())
			cancel = c

			go func() {
				defer close(done)
				var g errgroup.Group
				g.Go(func() error { return d.Run(runCtx) })
				g.Go(func() error { return gate.Run(runCtx) })
				_ = g.Wait()
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
