package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"market_scanner/internal/models"
	indicator "market_scanner/internal/modules/indicator/service"
	settings "market_scanner/internal/modules/settings/service"
	sink "market_scanner/internal/modules/sink/service"
	"market_scanner/internal/notify"
	"market_scanner/pkg/logger"
	"market_scanner/pkg/tracing"

	"golang.org/x/sync/errgroup"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// MarketData: свечи, вселенная символов и суточная статистика (market.Fetcher).
type MarketData interface {
	Symbols(ctx context.Context, minVolume float64, blacklist []string, maxCount int) ([]string, error)
	Candles(ctx context.Context, symbol, timeframe string, limit int) (models.CandleTable, error)
	Stats24h(ctx context.Context, symbol string) (models.Stats24h, bool, error)
}

// Reporter получает итог каждого прохода (health).
type Reporter interface {
	ReportCycle(r models.CycleReport)
}

type Config struct {
	Tick    time.Duration
	Workers int
}

// jobState: состояние задания (пользователь, сторона) между проходами.
type jobState struct {
	lastScan  time.Time
	indicator *indicator.Indicator
}

type Service struct {
	cfg      Config
	market   MarketData
	store    settings.Store
	sink     sink.Sink
	notifier notify.Notifier
	clock    Clock
	reporter Reporter

	mu     sync.Mutex
	jobs   map[models.JobKey]*jobState
	lapsed map[int64]bool // уже уведомлены об окончании доступа

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, market MarketData, store settings.Store, sk sink.Sink, n notify.Notifier, clock Clock, reporter Reporter) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 5 * time.Second
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{
		cfg:      cfg,
		market:   market,
		store:    store,
		sink:     sk,
		notifier: n,
		clock:    clock,
		reporter: reporter,
		jobs:     make(map[models.JobKey]*jobState),
		lapsed:   make(map[int64]bool),
	}
}

// Start: фоновый цикл: проход сразу и далее раз в Tick.
func (s *Service) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Tick)
		defer ticker.Stop()

		for {
			s.safeCycle(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop: мягко гасит цикл и ждёт текущий проход.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Service) safeCycle(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("[SCAN] panic в проходе: %v\n%s", p, debug.Stack())
		}
	}()

	r := s.RunCycle(ctx)
	if s.reporter != nil {
		s.reporter.ReportCycle(r)
	}
	if r.Due > 0 || r.Error != "" {
		logger.Info("[SCAN] due=%d dispatched=%d skipped=%d analyses=%d signals=%d fetch_fail=%d took=%s",
			r.Due, r.Dispatched, r.Skipped, r.Analyses, r.Signals, r.FetchFailures, r.Duration)
	}
}

type candleKey struct {
	symbol    string
	timeframe string
}

// RunCycle: один проход планировщика.
func (s *Service) RunCycle(ctx context.Context) (report models.CycleReport) {
	now := s.clock.Now()
	report.At = now
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	span, ctx := tracing.StartSpan(ctx, "scanner.cycle", nil)
	defer span.Finish()

	candidates, err := s.store.DueUsers(ctx, now)
	if err != nil {
		tracing.Fail(span, err)
		logger.Error("[SCAN] кандидаты: %v", err)
		report.Error = err.Error()
		return report
	}

	due := s.selectDue(candidates, now)
	report.Due = len(due)
	if len(due) == 0 {
		return report
	}

	due = s.filterAccess(ctx, due)

	// вселенная символов каждого задания
	universe := make(map[models.JobKey][]string, len(due))
	var ready []models.ScanJob
	for _, job := range due {
		c := job.Config
		syms, err := s.market.Symbols(ctx, c.MinVolume24h, c.Blacklist, c.MaxSymbols)
		if err != nil {
			logger.Warn("[SCAN] символы user=%d %s: %v", job.UserID, job.Direction, err)
			continue
		}
		universe[job.Key()] = syms
		ready = append(ready, job)
	}

	tables, failures := s.fetchAll(ctx, ready, universe)
	report.FetchFailures = failures

	// задание уходит в работу, если есть хотя бы одна таблица (или пустая вселенная)
	type item struct {
		job    models.ScanJob
		state  *jobState
		symbol string
		ltf    models.CandleTable
		htf    []models.Candle
	}
	var (
		items      []item
		dispatched []models.JobKey
	)
	for _, job := range ready {
		syms := universe[job.Key()]
		st := s.state(job)
		n := 0
		for _, sym := range syms {
			t, ok := tables[candleKey{sym, job.Config.Timeframe}]
			if !ok {
				continue
			}
			var htf []models.Candle
			if job.Config.UseHTF {
				htf = tables[candleKey{sym, job.Config.HTFTimeframe}].Candles
			}
			items = append(items, item{job: job, state: st, symbol: sym, ltf: t, htf: htf})
			n++
		}
		if n > 0 || len(syms) == 0 {
			dispatched = append(dispatched, job.Key())
		}
	}
	report.Dispatched = len(dispatched)
	report.Skipped = report.Due - report.Dispatched

	var (
		signals atomic.Int32
		blocked sync.Map
	)
	stats := newStatsMemo(s.market)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, it := range items {
		it := it
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("[SCAN] panic %s user=%d: %v", it.symbol, it.job.UserID, p)
				}
			}()
			if gctx.Err() != nil {
				return nil
			}

			res, ok := it.state.indicator.Analyze(it.symbol, it.ltf.Candles, it.htf, it.job.Config)
			if !ok {
				return nil
			}
			signals.Add(1)
			res.Market = stats.get(gctx, it.symbol)
			if _, err := s.sink.Emit(gctx, res, it.job.UserID, it.job.Config); err != nil {
				if errors.Is(err, sink.ErrRecipientBlocked) {
					blocked.Store(it.job.UserID, true)
				}
				logger.Warn("[SCAN] emit %s user=%d: %v", it.symbol, it.job.UserID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	report.Analyses = len(items)
	report.Signals = int(signals.Load())

	blocked.Range(func(k, _ any) bool {
		userID := k.(int64)
		if err := s.store.Deactivate(ctx, userID); err != nil {
			logger.Warn("[SCAN] deactivate blocked user=%d: %v", userID, err)
		} else {
			logger.Info("[SCAN] user=%d заблокировал бота, сканирование выключено", userID)
		}
		return true
	})

	s.mu.Lock()
	for _, key := range dispatched {
		if st, ok := s.jobs[key]; ok {
			st.lastScan = now
		}
	}
	s.mu.Unlock()
	return report
}

// selectDue: интервал прошёл с последнего скана. Состояния исчезнувших заданий удаляются.
func (s *Service) selectDue(candidates []models.ScanJob, now time.Time) []models.ScanJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[models.JobKey]bool, len(candidates))
	var due []models.ScanJob
	for _, job := range candidates {
		key := job.Key()
		seen[key] = true
		st, ok := s.jobs[key]
		if ok && !st.lastScan.IsZero() && now.Sub(st.lastScan) < job.Config.Interval() {
			continue
		}
		due = append(due, job)
	}
	for key := range s.jobs {
		if !seen[key] {
			delete(s.jobs, key)
		}
	}
	return due
}

func (s *Service) state(job models.ScanJob) *jobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.jobs[job.Key()]
	if !ok {
		st = &jobState{indicator: indicator.New(job.Direction)}
		s.jobs[job.Key()] = st
	}
	return st
}

// filterAccess: без доступа задание пропускается, флаги снимаются,
// уведомление уходит один раз на переход.
func (s *Service) filterAccess(ctx context.Context, due []models.ScanJob) []models.ScanJob {
	type access struct {
		ok     bool
		status models.AccessStatus
		err    error
	}
	checked := make(map[int64]access)

	var out []models.ScanJob
	for _, job := range due {
		a, ok := checked[job.UserID]
		if !ok {
			a.ok, a.status, a.err = s.store.CheckAccess(ctx, job.UserID)
			checked[job.UserID] = a
			if a.err == nil && !a.ok {
				s.onLapse(ctx, job.UserID, a.status)
			}
		}
		if a.err != nil {
			logger.Warn("[SCAN] доступ user=%d: %v", job.UserID, a.err)
			continue
		}
		if !a.ok {
			continue
		}

		s.mu.Lock()
		delete(s.lapsed, job.UserID)
		s.mu.Unlock()
		out = append(out, job)
	}
	return out
}

func (s *Service) onLapse(ctx context.Context, userID int64, status models.AccessStatus) {
	s.mu.Lock()
	already := s.lapsed[userID]
	s.lapsed[userID] = true
	s.mu.Unlock()
	if already {
		return
	}

	if err := s.store.Deactivate(ctx, userID); err != nil {
		logger.Warn("[SCAN] deactivate user=%d: %v", userID, err)
	}
	if err := s.notifier.SendExpiry(ctx, userID, status); err != nil {
		logger.Warn("[SCAN] expiry notify user=%d: %v", userID, err)
	}
	logger.Info("[SCAN] user=%d доступ %s, сканирование выключено", userID, status)
}

// fetchAll загружает каждую пару (symbol, timeframe) ровно один раз за проход.
// Лимит: максимальный из нужных заданиям этого таймфрейма.
func (s *Service) fetchAll(ctx context.Context, jobs []models.ScanJob, universe map[models.JobKey][]string) (map[candleKey]models.CandleTable, int) {
	limits := make(map[string]int)
	need := func(tf string, n int) {
		if n > limits[tf] {
			limits[tf] = n
		}
	}
	pairs := make(map[candleKey]struct{})
	for _, job := range jobs {
		c := job.Config
		need(c.Timeframe, c.CandleLimit)
		if c.UseHTF {
			need(c.HTFTimeframe, htfLimit(c))
		}
		for _, sym := range universe[job.Key()] {
			pairs[candleKey{sym, c.Timeframe}] = struct{}{}
			if c.UseHTF {
				pairs[candleKey{sym, c.HTFTimeframe}] = struct{}{}
			}
		}
	}

	var (
		mu       sync.Mutex
		tables   = make(map[candleKey]models.CandleTable, len(pairs))
		failures int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for key := range pairs {
		key := key
		g.Go(func() error {
			t, err := s.market.Candles(gctx, key.symbol, key.timeframe, limits[key.timeframe])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				logger.Debug("[SCAN] свечи %s %s: %v", key.symbol, key.timeframe, err)
				return nil
			}
			tables[key] = t
			return nil
		})
	}
	_ = g.Wait()
	return tables, failures
}

// statsMemo: суточная статистика, не больше одного запроса на символ за проход.
type statsMemo struct {
	market MarketData
	mu     sync.Mutex
	byKey  map[string]*statsEntry
}

type statsEntry struct {
	once sync.Once
	st   *models.Stats24h
}

func newStatsMemo(m MarketData) *statsMemo {
	return &statsMemo{market: m, byKey: make(map[string]*statsEntry)}
}

// get: nil, если статистики нет или запрос упал; сигнал уходит без неё.
func (m *statsMemo) get(ctx context.Context, symbol string) *models.Stats24h {
	m.mu.Lock()
	e, ok := m.byKey[symbol]
	if !ok {
		e = &statsEntry{}
		m.byKey[symbol] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		st, found, err := m.market.Stats24h(ctx, symbol)
		switch {
		case err != nil:
			logger.Debug("[SCAN] 24h %s: %v", symbol, err)
		case found:
			e.st = &st
		}
	})
	return e.st
}

// htfLimit: сколько баров старшего ТФ нужно, чтобы EMA успела сойтись.
func htfLimit(c models.ScanConfig) int {
	return max(3*c.HTFEMAPeriod, c.HTFEMAPeriod+c.MinBarsMargin)
}

func (s *Service) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("scanner{jobs=%d workers=%d}", len(s.jobs), s.cfg.Workers)
}
