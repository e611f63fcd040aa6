package main

import (
	"context"
	"log"

	"market_scanner/internal/modules/bootstrap"
	candlecache "market_scanner/internal/modules/candle_cache"
	"market_scanner/internal/modules/config"
	"market_scanner/internal/modules/health"
	"market_scanner/internal/modules/market"
	"market_scanner/internal/modules/postgres"
	"market_scanner/internal/modules/redis"
	"market_scanner/internal/modules/scanner"
	"market_scanner/internal/modules/settings"
	"market_scanner/internal/modules/sink"
	telegram "market_scanner/internal/modules/telegram_bot"
	"market_scanner/pkg/logger"
	"market_scanner/pkg/tracing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const serviceName = "market_scanner"

// setupObservability переводит логгер на уровень из конфига и поднимает трейсер.
func setupObservability(lc fx.Lifecycle, cfg *config.Config) error {
	if _, err := logger.Init(cfg.Service.LogLevel, cfg.Service.Dev); err != nil {
		return err
	}

	_, closeTracer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return err
	}
	lc.Append(fx.StopHook(closeTracer))
	return nil
}

func main() {
	logger.SetServiceName(serviceName)
	tracing.SetServiceName(serviceName)

	boot, err := logger.Init("info", false)
	if err != nil {
		log.Fatal(err)
	}

	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: boot.WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
		config.Module(),
		fx.Invoke(setupObservability),
		postgres.Module(),
		redis.Module(),
		candlecache.Module(),
		market.Module(),
		settings.Module(),
		telegram.Module(),
		sink.Module(),
		health.Module(),
		scanner.Module(),
		bootstrap.Module(),
	)

	if err := app.Start(context.Background()); err != nil {
		logger.Fatal("start: %v", err)
	}
	<-app.Done()

	ctx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		logger.Error("stop: %v", err)
	}
}
