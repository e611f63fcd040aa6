package market

import (
	"context"
	"net/http"
	"strings"

	ccache "market_scanner/internal/modules/candle_cache/service"
	"market_scanner/internal/modules/config"
	"market_scanner/internal/modules/market/service"
	"market_scanner/pkg/logger"

	"go.uber.org/fx"
)

func NewGuard(cfg *config.Config) *service.Guard {
	m := cfg.Market
	return service.NewGuard(service.GuardConfig{
		MaxConcurrent:  m.MaxConcurrent,
		RPS:            m.RPS,
		Burst:          m.Burst,
		RequestTimeout: m.RequestTimeout,
		Attempts:       m.RetryAttempts,
		BaseDelay:      m.RetryBase,
		MaxDelay:       m.RetryMax,
	})
}

// NewClient выбирает провайдера по market.provider.
func NewClient(cfg *config.Config, guard *service.Guard, stream *service.TickerStream) service.Client {
	httpClient := &http.Client{Timeout: cfg.Market.RequestTimeout}

	switch strings.ToLower(cfg.Market.Provider) {
	case "binance":
		baseURL := cfg.Market.BaseURL
		if strings.Contains(baseURL, "okx.com") {
			baseURL = ""
		}
		return service.NewBinanceClient(cfg.Market.Binance.APIKey, cfg.Market.Binance.SecretKey, baseURL, httpClient, guard)
	default:
		c := service.NewOKXClient(cfg.Market.BaseURL, httpClient, guard)
		if stream != nil {
			c.AttachStream(stream)
		}
		return c
	}
}

func NewTickerStream(cfg *config.Config) *service.TickerStream {
	if !cfg.Market.TickerStream || strings.ToLower(cfg.Market.Provider) == "binance" {
		return nil
	}
	return service.NewTickerStream(cfg.Market.WSURL)
}

func NewFetcher(cfg *config.Config, client service.Client, loader *ccache.Loader) *service.Fetcher {
	return service.NewFetcher(client, loader, cfg.Market.SymbolsTTL)
}

// RunTickerStream подписывает WS на вселенную символов из дефолтного конфига.
func RunTickerStream(lc fx.Lifecycle, cfg *config.Config, stream *service.TickerStream, f *service.Fetcher) {
	if stream == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				d := cfg.Defaults
				syms, err := f.Symbols(ctx, d.MinVolume24h, d.Blacklist, d.MaxSymbols)
				if err != nil {
					logger.Error("[WS] не удалось собрать список инструментов: %v", err)
					return
				}
				stream.Run(ctx, syms)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// Module поднимает клиента рынка и фетчер поверх кэша свечей.
func Module() fx.Option {
	return fx.Module("market",
		fx.Provide(
			NewGuard,
			NewTickerStream,
			NewClient,
			NewFetcher,
		),
		fx.Invoke(RunTickerStream),
	)
}
