package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"market_scanner/internal/models"
	"market_scanner/internal/notify"
)

// Market: то, что нужно для прогрева (market.Fetcher).
type Market interface {
	Symbols(ctx context.Context, minVolume float64, blacklist []string, maxCount int) ([]string, error)
	Candles(ctx context.Context, symbol, timeframe string, limit int) (models.CandleTable, error)
}

// Warmuper заранее наполняет кэш свечей по дефолтному конфигу,
// чтобы первый проход сканера не упирался в лимиты биржи.
type Warmuper struct {
	market Market
	n      notify.Notifier
	cfg    models.ScanConfig

	// ограничитель параллелизма, чтобы не словить rate limit
	sem chan struct{}
}

func NewWarmuper(m Market, n notify.Notifier, cfg models.ScanConfig, parallel int) *Warmuper {
	if parallel <= 0 {
		parallel = 8
	}
	return &Warmuper{
		market: m,
		n:      n,
		cfg:    cfg.Normalized(),
		sem:    make(chan struct{}, parallel),
	}
}

// TopSymbols: первые n символов вселенной по умолчанию.
func (w *Warmuper) TopSymbols(ctx context.Context, n int) ([]string, error) {
	syms, err := w.market.Symbols(ctx, w.cfg.MinVolume24h, w.cfg.Blacklist, w.cfg.MaxSymbols)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(syms) > n {
		syms = syms[:n]
	}
	return syms, nil
}

// Warmup грузит LTF и (если включён) HTF каждого символа. Возвращает число таблиц и первую ошибку.
func (w *Warmuper) Warmup(ctx context.Context, symbols []string) (int, error) {
	if len(symbols) == 0 {
		return 0, nil
	}

	ltfNeed := w.cfg.CandleLimit
	htfNeed := max(3*w.cfg.HTFEMAPeriod, w.cfg.HTFEMAPeriod+w.cfg.MinBarsMargin)

	w.n.SendService(ctx, fmt.Sprintf("🔥 warmup start: symbols=%d LTF=%s(%d) HTF=%s(%d)",
		len(symbols), w.cfg.Timeframe, ltfNeed, w.cfg.HTFTimeframe, htfNeed,
	))

	var (
		loaded   atomic.Int64
		wg       sync.WaitGroup
		firstErr error
		mu       sync.Mutex
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, sym := range symbols {
		sym := sym
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				fail(ctx.Err())
				return
			}
			defer func() { <-w.sem }()

			if w.cfg.UseHTF {
				if _, err := w.market.Candles(ctx, sym, w.cfg.HTFTimeframe, htfNeed); err != nil {
					fail(fmt.Errorf("warmup HTF %s: %w", sym, err))
					return
				}
				loaded.Add(1)
			}
			if _, err := w.market.Candles(ctx, sym, w.cfg.Timeframe, ltfNeed); err != nil {
				fail(fmt.Errorf("warmup LTF %s: %w", sym, err))
				return
			}
			loaded.Add(1)
		}()
	}

	wg.Wait()

	n := int(loaded.Load())
	if firstErr != nil {
		w.n.SendService(ctx, "⚠️ warmup finished with error: "+firstErr.Error())
		return n, firstErr
	}
	w.n.SendService(ctx, fmt.Sprintf("✅ warmup finished: %d tables", n))
	return n, nil
}
