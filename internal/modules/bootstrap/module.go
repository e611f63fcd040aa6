package bootstrap

import (
	"context"

	bootstrap "market_scanner/internal/modules/bootstrap/service"
	"market_scanner/internal/modules/config"
	market "market_scanner/internal/modules/market/service"
	"market_scanner/internal/notify"
	"market_scanner/pkg/logger"

	"go.uber.org/fx"
)

func NewWarmuper(cfg *config.Config, f *market.Fetcher, n notify.Notifier) *bootstrap.Warmuper {
	return bootstrap.NewWarmuper(f, n, cfg.Defaults, cfg.Market.MaxConcurrent)
}

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(NewWarmuper),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, wu *bootstrap.Warmuper) {
			if !cfg.Bootstrap.Enabled {
				return
			}
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						syms, err := wu.TopSymbols(ctx, cfg.Bootstrap.Symbols)
						if err != nil {
							logger.Warn("[BOOT] список символов: %v", err)
							return
						}
						n, err := wu.Warmup(ctx, syms)
						if err != nil {
							logger.Warn("[BOOT] warmup error: %v", err)
							return
						}
						logger.Info("[BOOT] warmup done: %d symbols, %d tables", len(syms), n)
					}()
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
