package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"market_scanner/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func table(symbol string) models.CandleTable {
	return models.CandleTable{Symbol: symbol, Timeframe: "1h", Candles: []models.Candle{{Close: 1}}}
}

func TestCacheTTL(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		advance time.Duration
		found   bool
	}{
		{name: "zero ttl after delay", ttl: 0, advance: time.Millisecond, found: false},
		{name: "before expiry", ttl: time.Minute, advance: 59 * time.Second, found: true},
		{name: "at expiry", ttl: time.Minute, advance: time.Minute, found: true},
		{name: "after expiry", ttl: time.Minute, advance: time.Minute + time.Nanosecond, found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newFakeClock()
			c := New(10, WithClock(clk.Now))
			c.Set("BTC-USDT-SWAP", "1h", table("BTC-USDT-SWAP"), tt.ttl)
			clk.Advance(tt.advance)

			_, ok := c.Get("BTC-USDT-SWAP", "1h")
			if ok != tt.found {
				t.Errorf("expected found=%v, got %v", tt.found, ok)
			}
			if !tt.found && c.Len() != 0 {
				t.Errorf("expected expired entry purged, size %d", c.Len())
			}
		})
	}
}

func TestCacheLRUEviction(t *testing.T) {
	clk := newFakeClock()
	c := New(3, WithClock(clk.Now))
	for i := 0; i < 3; i++ {
		sym := fmt.Sprintf("S%d", i)
		c.Set(sym, "1h", table(sym), time.Hour)
	}

	c.Set("S3", "1h", table("S3"), time.Hour)
	if _, ok := c.Get("S0", "1h"); ok {
		t.Errorf("expected S0 evicted")
	}
	for _, sym := range []string{"S1", "S2", "S3"} {
		if _, ok := c.Get(sym, "1h"); !ok {
			t.Errorf("expected %s present", sym)
		}
	}
}

func TestCacheGetProtectsFromEviction(t *testing.T) {
	clk := newFakeClock()
	c := New(3, WithClock(clk.Now))
	for i := 0; i < 3; i++ {
		sym := fmt.Sprintf("S%d", i)
		c.Set(sym, "1h", table(sym), time.Hour)
	}

	if _, ok := c.Get("S0", "1h"); !ok {
		t.Fatal("expected S0 present")
	}
	c.Set("S3", "1h", table("S3"), time.Hour)

	if _, ok := c.Get("S0", "1h"); !ok {
		t.Errorf("expected S0 kept after access")
	}
	if _, ok := c.Get("S1", "1h"); ok {
		t.Errorf("expected S1 evicted")
	}
}

func TestCacheOverwriteDoesNotEvict(t *testing.T) {
	c := New(2)
	c.Set("A", "1h", table("A"), time.Hour)
	c.Set("B", "1h", table("B"), time.Hour)
	c.Set("A", "60m", table("A"), time.Hour)

	if c.Len() != 2 {
		t.Fatalf("expected size 2, got %d", c.Len())
	}
	if _, ok := c.Get("B", "1h"); !ok {
		t.Errorf("expected B present")
	}
}

func TestCacheStats(t *testing.T) {
	c := New(4)
	c.Set("A", "1h", table("A"), time.Hour)
	c.Get("A", "1h")
	c.Get("A", "1h")
	c.Get("B", "1h")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("expected 2 hits 1 miss, got %d/%d", s.Hits, s.Misses)
	}
	if s.Size != 1 {
		t.Errorf("expected size 1, got %d", s.Size)
	}
	if s.HitRatio < 0.66 || s.HitRatio > 0.67 {
		t.Errorf("expected hit ratio 2/3, got %f", s.HitRatio)
	}
}
