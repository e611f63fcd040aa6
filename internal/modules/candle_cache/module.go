package candle_cache

import (
	"market_scanner/internal/modules/candle_cache/service"
	"market_scanner/internal/modules/config"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("candle_cache",
		fx.Provide(
			func(cfg *config.Config) *service.Cache {
				return service.New(cfg.Cache.Capacity)
			},
			service.NewLoader,
		),
	)
}
