package scanner

import (
	"context"

	"market_scanner/internal/modules/config"
	health "market_scanner/internal/modules/health/service"
	market "market_scanner/internal/modules/market/service"
	"market_scanner/internal/modules/scanner/service"
	settings "market_scanner/internal/modules/settings/service"
	sink "market_scanner/internal/modules/sink/service"
	"market_scanner/internal/notify"
	"market_scanner/pkg/logger"

	"go.uber.org/fx"
)

func NewService(cfg *config.Config, f *market.Fetcher, store settings.Store, sk sink.Sink, n notify.Notifier, state *health.State) *service.Service {
	return service.New(service.Config{
		Tick:    cfg.Scanner.Tick,
		Workers: cfg.Scanner.Workers,
	}, f, store, sk, n, service.SystemClock{}, state)
}

// Run запускает планировщик вместе с приложением.
func Run(lc fx.Lifecycle, s *service.Service, n notify.Notifier) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("[SCAN] старт %s", s)
			s.Start(context.Background())
			n.SendService(context.Background(), "✅ Сканер запущен")
			return nil
		},
		OnStop: func(context.Context) error {
			s.Stop()
			logger.Info("[SCAN] остановлен")
			return nil
		},
	})
}

func Module() fx.Option {
	return fx.Module("scanner",
		fx.Provide(NewService),
		fx.Invoke(Run),
	)
}
