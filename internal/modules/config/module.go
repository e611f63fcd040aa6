package config

import (
	"market_scanner/pkg/logger"

	"go.uber.org/fx"
)

func logSummary(cfg *Config) {
	d := cfg.Defaults
	logger.Info("[CONFIG] provider=%s settings=%s workers=%d tick=%s defaults: %s/%s %s every %ds",
		cfg.Market.Provider, cfg.Settings.Backend, cfg.Scanner.Workers, cfg.Scanner.Tick,
		d.Timeframe, d.HTFTimeframe, d.Variant, d.ScanIntervalSec)
}

// Module: конфиг как fx-провайдер.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(NewConfig),
		fx.Invoke(logSummary),
	)
}
