package bus

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("bus",
	fx.Provide(
		NewRegistry,
		New,
	),

	fx.Invoke(run),
)

func run(lc fx.Lifecycle, b *Bus) {
	var cancel context.CancelFunc
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, c := context.WithCancel(context.Background())
			cancel = c
			go func() {
				defer close(done)
				_ = b.Run(runCtx)
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
