package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"market_scanner/internal/models"
	"market_scanner/internal/notify"
)

type fakeMarket struct {
	mu    sync.Mutex
	calls map[string]int
	fail  string
}

func (m *fakeMarket) Symbols(ctx context.Context, minVolume float64, blacklist []string, maxCount int) ([]string, error) {
	return []string{"A", "B", "C"}, nil
}

func (m *fakeMarket) Candles(ctx context.Context, symbol, timeframe string, limit int) (models.CandleTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[symbol+"|"+timeframe]++
	if symbol == m.fail {
		return models.CandleTable{}, errors.New("boom")
	}
	return models.CandleTable{Symbol: symbol, Timeframe: timeframe}, nil
}

func TestWarmup(t *testing.T) {
	tests := []struct {
		name    string
		useHTF  bool
		fail    string
		loaded  int
		wantErr bool
	}{
		{name: "ltf and htf", useHTF: true, loaded: 4},
		{name: "ltf only", useHTF: false, loaded: 2},
		{name: "one symbol fails", useHTF: false, fail: "B", loaded: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultScanConfig()
			cfg.UseHTF = tt.useHTF
			m := &fakeMarket{calls: map[string]int{}, fail: tt.fail}
			w := NewWarmuper(m, notify.NewStdout(), cfg, 2)

			syms, err := w.TopSymbols(context.Background(), 2)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(syms) != 2 {
				t.Fatalf("expected 2 symbols, got %d", len(syms))
			}

			n, err := w.Warmup(context.Background(), syms)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if n != tt.loaded {
				t.Errorf("expected %d tables, got %d", tt.loaded, n)
			}
		})
	}
}
