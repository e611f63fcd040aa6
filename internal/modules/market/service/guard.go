package service

import (
	"context"
	"time"

	"market_scanner/pkg/logger"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type GuardConfig struct {
	MaxConcurrent  int
	RPS            float64
	Burst          int
	RequestTimeout time.Duration
	Attempts       int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
}

// Guard ограничивает исходящие запросы: семафор, rate limit, таймаут на попытку,
// ретраи с экспоненциальной задержкой на 429/5xx/таймаутах.
type Guard struct {
	cfg     GuardConfig
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewGuard(cfg GuardConfig) *Guard {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Guard{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter: rate.NewLimiter(limit, burst),
		sleep:   sleepCtx,
	}
}

// WithSleep подменяет ожидание между попытками (тесты).
func (g *Guard) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Guard {
	g.sleep = fn
	return g
}

// Do выполняет fn с ретраями. Слот семафора держится только на время попытки.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < g.cfg.Attempts; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt-1, retryAfterOf(err))
			logger.Warn("[MARKET] %s: попытка %d/%d через %s: %v", op, attempt+1, g.cfg.Attempts, delay, err)
			if serr := g.sleep(ctx, delay); serr != nil {
				return serr
			}
		}

		err = g.once(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRetryable(err) {
			return err
		}
	}
	return errors.Wrapf(err, "%s: retries exhausted (%d)", op, g.cfg.Attempts)
}

func (g *Guard) once(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	return fn(cctx)
}

func (g *Guard) backoff(attempt int, retryAfter time.Duration) time.Duration {
	d := g.cfg.BaseDelay
	for i := 0; i < attempt && d < g.cfg.MaxDelay; i++ {
		d *= 2
	}
	if d > g.cfg.MaxDelay {
		d = g.cfg.MaxDelay
	}
	if retryAfter > d {
		d = min(retryAfter, g.cfg.MaxDelay)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
