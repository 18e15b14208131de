package daemon

import (
	"context"

	"github.com/matheus3301/layover/internal/bus"
	"github.com/matheus3301/layover/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// registerStatusLog writes every session state transition to the log.
func registerStatusLog(lc fx.Lifecycle, b *bus.Bus, logger *zap.Logger) {
	var (
		unsub func()
		done  chan struct{}
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ch <-chan bus.Event
			ch, unsub = b.Subscribe("session.", 16)
			done = make(chan struct{})
			go func() {
				defer close(done)
				for evt := range ch {
					sc, ok := evt.Payload.(status.StatusChange)
					if !ok {
						continue
					}
					logger.Info("session status changed",
						zap.String("from", string(sc.From)),
						zap.String("to", string(sc.To)))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			unsub()
			<-done
			return nil
		},
	})
}
