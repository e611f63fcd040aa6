package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"market_scanner/internal/models"
	ccache "market_scanner/internal/modules/candle_cache/service"
)

type countingClient struct {
	mu           sync.Mutex
	candleCalls  map[string]int
	symbolsCalls int
}

func (c *countingClient) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (models.CandleTable, error) {
	c.mu.Lock()
	c.candleCalls[symbol+"|"+timeframe]++
	c.mu.Unlock()
	return models.CandleTable{Symbol: symbol, Timeframe: timeframe, Candles: []models.Candle{{Close: 1}}}, nil
}

func (c *countingClient) ListSymbols(ctx context.Context, minVolume float64, blacklist []string, maxCount int) ([]string, error) {
	c.mu.Lock()
	c.symbolsCalls++
	c.mu.Unlock()
	return []string{"BTC-USDT-SWAP"}, nil
}

func (c *countingClient) Get24hStats(ctx context.Context, symbol string) (models.Stats24h, bool, error) {
	return models.Stats24h{Symbol: symbol}, true, nil
}

func TestFetcherCachesCandlesAndSymbols(t *testing.T) {
	client := &countingClient{candleCalls: map[string]int{}}
	f := NewFetcher(client, ccache.NewLoader(ccache.New(10)), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.Candles(ctx, "BTC-USDT-SWAP", "1h", 100); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := f.Symbols(ctx, 1000, []string{"b", "a"}, 10); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// другой порядок блэклиста: тот же ключ
	if _, err := f.Symbols(ctx, 1000, []string{"A", "B"}, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.candleCalls["BTC-USDT-SWAP|1h"] != 1 {
		t.Errorf("expected 1 candle fetch, got %d", client.candleCalls["BTC-USDT-SWAP|1h"])
	}
	if client.symbolsCalls != 1 {
		t.Errorf("expected 1 symbols fetch, got %d", client.symbolsCalls)
	}
}

func TestFetcherSymbolsExpire(t *testing.T) {
	client := &countingClient{candleCalls: map[string]int{}}
	f := NewFetcher(client, ccache.NewLoader(ccache.New(10)), time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	_, _ = f.Symbols(context.Background(), 0, nil, 5)
	now = now.Add(2 * time.Minute)
	_, _ = f.Symbols(context.Background(), 0, nil, 5)

	if client.symbolsCalls != 2 {
		t.Errorf("expected refetch after ttl, got %d calls", client.symbolsCalls)
	}
}
