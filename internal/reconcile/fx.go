package reconcile

import (
	"context"

	"github.com/smallbiznis/racepay/internal/config"
	paymentservice "github.com/smallbiznis/racepay/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("reconcile",
	fx.Provide(
		func(svc *paymentservice.Service) Reconciler { return svc },
		New,
	),
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, cfg config.Config, sweeper *Sweeper, log *zap.Logger) {
	if !cfg.Reconcile.Enabled {
		log.Info("reconcile sweeper disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sweeper.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}
