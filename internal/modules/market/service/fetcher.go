package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"market_scanner/internal/models"
	ccache "market_scanner/internal/modules/candle_cache/service"
	"market_scanner/pkg/tracing"

	"golang.org/x/sync/singleflight"
)

type symbolsEntry struct {
	list    []string
	expires time.Time
}

// Fetcher: единая точка получения рыночных данных для сканера:
// свечи через общий кэш, списки символов с собственным TTL.
type Fetcher struct {
	client     Client
	loader     *ccache.Loader
	symbolsTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	symbols map[string]symbolsEntry
	sf      singleflight.Group
}

func NewFetcher(client Client, loader *ccache.Loader, symbolsTTL time.Duration) *Fetcher {
	return &Fetcher{
		client:     client,
		loader:     loader,
		symbolsTTL: symbolsTTL,
		now:        time.Now,
		symbols:    make(map[string]symbolsEntry),
	}
}

func (f *Fetcher) CacheStats() ccache.Stats { return f.loader.Cache().Stats() }

// Candles: таблица (symbol, timeframe). Повторные и параллельные запросы одного ключа
// обслуживаются одной загрузкой.
func (f *Fetcher) Candles(ctx context.Context, symbol, timeframe string, limit int) (models.CandleTable, error) {
	t, _, err := f.loader.Load(ctx, symbol, timeframe, limit, func(ctx context.Context) (models.CandleTable, error) {
		span, ctx := tracing.StartSpan(ctx, "market.fetch_candles", map[string]any{
			"symbol": symbol, "timeframe": timeframe, "limit": limit,
		})
		defer span.Finish()

		t, err := f.client.FetchCandles(ctx, symbol, timeframe, limit)
		tracing.Fail(span, err)
		return t, err
	})
	return t, err
}

// Symbols: вселенная символов, кэшируется на symbolsTTL.
func (f *Fetcher) Symbols(ctx context.Context, minVolume float64, blacklist []string, maxCount int) ([]string, error) {
	key := symbolsKey(minVolume, blacklist, maxCount)

	f.mu.Lock()
	e, ok := f.symbols[key]
	f.mu.Unlock()
	if ok && f.now().Before(e.expires) {
		return e.list, nil
	}

	v, err, _ := f.sf.Do(key, func() (any, error) {
		list, err := f.client.ListSymbols(ctx, minVolume, blacklist, maxCount)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.symbols[key] = symbolsEntry{list: list, expires: f.now().Add(f.symbolsTTL)}
		f.mu.Unlock()
		return list, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	return v.([]string), nil
}

func (f *Fetcher) Stats24h(ctx context.Context, symbol string) (models.Stats24h, bool, error) {
	return f.client.Get24hStats(ctx, symbol)
}

func symbolsKey(minVolume float64, blacklist []string, maxCount int) string {
	bl := slices.Clone(blacklist)
	for i := range bl {
		bl[i] = strings.ToUpper(strings.TrimSpace(bl[i]))
	}
	slices.Sort(bl)
	return fmt.Sprintf("%.0f|%d|%s", minVolume, maxCount, strings.Join(bl, ","))
}
