package ingestion

import (
	"context"

	"github.com/smallbiznis/wasteloop/internal/ingestion/repository"
	"github.com/smallbiznis/wasteloop/internal/wasteintel"
	"go.uber.org/fx"
)

var Module = fx.Module("ingestion",
	fx.Provide(repository.Provide),
	fx.Provide(func(s *wasteintel.Service) Pipeline { return s }),
	fx.Provide(NewWorker),
	fx.Provide(NewTrigger),
	fx.Invoke(StartWorker),
)

func StartWorker(lc fx.Lifecycle, w *Worker) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan struct{})
			go func() {
				defer close(done)
				w.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
