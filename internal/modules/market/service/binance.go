package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"market_scanner/internal/helper"
	"market_scanner/internal/models"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
)

const binanceMaxCandles = 1500

// BinanceClient: USDT-M фьючерсы Binance.
type BinanceClient struct {
	client *futures.Client
	guard  *Guard
	now    func() time.Time
}

func NewBinanceClient(apiKey, secretKey, baseURL string, httpClient *http.Client, guard *Guard) *BinanceClient {
	fc := futures.NewClient(apiKey, secretKey)
	if httpClient != nil {
		fc.HTTPClient = httpClient
	}
	if baseURL != "" {
		fc.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &BinanceClient{client: fc, guard: guard, now: time.Now}
}

func (c *BinanceClient) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (models.CandleTable, error) {
	if limit <= 0 {
		limit = 100
	}
	interval, err := binanceInterval(timeframe)
	if err != nil {
		return models.CandleTable{}, err
	}

	var klines []*futures.Kline
	err = c.guard.Do(ctx, "klines "+symbol, func(ctx context.Context) error {
		var err error
		klines, err = c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(min(limit+1, binanceMaxCandles)).
			Do(ctx)
		return mapBinanceErr(err)
	})
	if err != nil {
		return models.CandleTable{}, err
	}

	now := c.now().UnixMilli()
	out := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		// незакрытая свеча: CloseTime в будущем
		if k.CloseTime >= now {
			continue
		}
		candle := models.Candle{
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
			Volume:   parseFloat(k.Volume),
		}
		if candle.Close <= 0 {
			continue
		}
		if n := len(out); n > 0 && !candle.OpenTime.After(out[n-1].OpenTime) {
			continue
		}
		out = append(out, candle)
	}

	return models.CandleTable{Symbol: symbol, Timeframe: helper.NormTF(timeframe), Candles: out}, nil
}

func (c *BinanceClient) ListSymbols(ctx context.Context, minVolume float64, blacklist []string, maxCount int) ([]string, error) {
	var all []*futures.PriceChangeStats
	err := c.guard.Do(ctx, "ticker 24hr", func(ctx context.Context) error {
		var err error
		all, err = c.client.NewListPriceChangeStatsService().Do(ctx)
		return mapBinanceErr(err)
	})
	if err != nil {
		return nil, err
	}

	stats := make([]models.Stats24h, 0, len(all))
	for _, p := range all {
		if !strings.HasSuffix(p.Symbol, "USDT") {
			continue
		}
		s := binanceStats(p)
		if s.Last <= 0 || s.QuoteVolume < minVolume || blacklisted(p.Symbol, blacklist) {
			continue
		}
		stats = append(stats, s)
	}
	return rankByVolume(stats, maxCount), nil
}

func (c *BinanceClient) Get24hStats(ctx context.Context, symbol string) (models.Stats24h, bool, error) {
	var res []*futures.PriceChangeStats
	err := c.guard.Do(ctx, "ticker "+symbol, func(ctx context.Context) error {
		var err error
		res, err = c.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		return mapBinanceErr(err)
	})
	if err != nil {
		var apiErr *common.APIError
		// -1121 Invalid symbol
		if errors.As(err, &apiErr) && apiErr.Code == -1121 {
			return models.Stats24h{}, false, nil
		}
		return models.Stats24h{}, false, err
	}
	if len(res) == 0 {
		return models.Stats24h{}, false, nil
	}
	return binanceStats(res[0]), true, nil
}

func binanceStats(p *futures.PriceChangeStats) models.Stats24h {
	return models.Stats24h{
		Symbol:      p.Symbol,
		ChangePct:   parseFloat(p.PriceChangePercent),
		Volume:      parseFloat(p.Volume),
		QuoteVolume: parseFloat(p.QuoteVolume),
		High:        parseFloat(p.HighPrice),
		Low:         parseFloat(p.LowPrice),
		Last:        parseFloat(p.LastPrice),
	}
}

// mapBinanceErr: -1003 / -1015: превышен лимит запросов.
func mapBinanceErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && (apiErr.Code == -1003 || apiErr.Code == -1015) {
		return errors.Wrap(ErrRateLimited, apiErr.Error())
	}
	return err
}
