package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"market_scanner/internal/models"
)

type Trend int

const (
	TrendNeutral Trend = iota
	TrendBullish
	TrendBearish
)

func (t Trend) String() string {
	switch t {
	case TrendBullish:
		return "bullish"
	case TrendBearish:
		return "bearish"
	}
	return "neutral"
}

// Indicator: анализатор одного задания (пользователь, сторона).
// Память кулдауна своя у каждого экземпляра.
type Indicator struct {
	dir models.Direction

	mu       sync.Mutex
	cooldown map[string]time.Time // symbol -> OpenTime бара последнего сигнала
}

func New(dir models.Direction) *Indicator {
	return &Indicator{
		dir:      dir,
		cooldown: make(map[string]time.Time),
	}
}

func (ind *Indicator) Direction() models.Direction { return ind.dir }

// snapshot: всё, что посчитано по таблице на последнем закрытом баре.
type snapshot struct {
	cfg      models.ScanConfig
	strategy Strategy

	c          []models.Candle
	start      int
	prev, last models.Candle

	emaFast, emaSlow []float64
	atr, rsi         []float64

	atrNow, rsiNow float64
	volRatio       float64
	tol            float64

	trend Trend
	htf   Trend // TrendNeutral = неизвестно

	pivotHighs, pivotLows []pivot
	supports, resistances []models.Zone

	pattern   Pattern
	structure Structure
}

type trigger struct {
	dir  models.Direction
	kind models.TriggerKind
	zone models.Zone
}

// Analyze ищет сигнал на последнем закрытом баре. Любые кривые данные дают "нет сигнала".
func (ind *Indicator) Analyze(symbol string, candles, htf []models.Candle, cfg models.ScanConfig) (models.SignalResult, bool) {
	cfg = cfg.Normalized()
	n := len(candles)
	if n < cfg.MinBars() || !validCandles(candles) {
		return models.SignalResult{}, false
	}
	if ind.coolingDown(symbol, candles, cfg.CooldownBars) {
		return models.SignalResult{}, false
	}

	s := newSnapshot(candles, htf, cfg)
	if len(s.supports) == 0 || len(s.resistances) == 0 {
		return models.SignalResult{}, false
	}

	var found []trigger
	for _, dir := range []models.Direction{models.Long, models.Short} {
		if !ind.dir.Allows(dir) {
			continue
		}
		if t, ok := s.findTrigger(dir); ok {
			found = append(found, t)
		}
	}
	if len(found) == 0 {
		return models.SignalResult{}, false
	}
	if len(found) == 2 {
		found = []trigger{s.tieBreak(found[0], found[1])}
	}

	t := found[0]
	if !s.passFilters(t.dir) {
		return models.SignalResult{}, false
	}

	res, ok := s.build(symbol, t)
	if !ok {
		return models.SignalResult{}, false
	}

	ind.mu.Lock()
	ind.cooldown[symbol] = s.last.OpenTime
	ind.mu.Unlock()
	return res, true
}

// coolingDown: после сигнала считаем бары, открывшиеся позже сигнального.
func (ind *Indicator) coolingDown(symbol string, c []models.Candle, bars int) bool {
	ind.mu.Lock()
	at, ok := ind.cooldown[symbol]
	ind.mu.Unlock()
	if !ok || bars <= 0 {
		return false
	}

	elapsed := 0
	for i := len(c) - 1; i >= 0 && c[i].OpenTime.After(at); i-- {
		elapsed++
	}
	return elapsed < bars
}

func newSnapshot(c, htf []models.Candle, cfg models.ScanConfig) *snapshot {
	n := len(c)
	cl := closes(c)
	s := &snapshot{
		cfg:      cfg,
		strategy: StrategyFor(cfg.Variant),
		c:        c,
		start:    max(0, n-cfg.ZoneLookback),
		prev:     c[n-2],
		last:     c[n-1],
		emaFast:  emaSeries(cl, cfg.EMAFast),
		emaSlow:  emaSeries(cl, cfg.EMASlow),
		atr:      atrSeries(c, cfg.ATRPeriod),
		rsi:      rsiSeries(cl, cfg.RSIPeriod),
	}
	s.atrNow = s.atr[n-1]
	s.rsiNow = s.rsi[n-1]
	s.tol = s.atrNow * cfg.ZoneBuffer
	if ma := volumeMA(c, n-1, cfg.VolumeWindow); ma > 0 {
		s.volRatio = s.last.Volume / ma
	}

	fast, slow := s.emaFast[n-1], s.emaSlow[n-1]
	switch {
	case s.last.Close > fast && fast > slow:
		s.trend = TrendBullish
	case s.last.Close < fast && fast < slow:
		s.trend = TrendBearish
	}
	s.htf = htfTrend(htf, cfg)

	s.pivotHighs, s.pivotLows = findPivots(c, s.start, cfg.PivotStrength)
	s.supports = clusterZones(s.pivotLows, s.tol, models.ZoneSupport)
	s.resistances = clusterZones(s.pivotHighs, s.tol, models.ZoneResistance)

	s.pattern = detectPattern(s.prev, s.last)
	s.structure = detectStructure(s)
	return s
}

// htfTrend: неизвестен, если фильтр выключен или таблица короткая.
func htfTrend(htf []models.Candle, cfg models.ScanConfig) Trend {
	if !cfg.UseHTF || len(htf) < cfg.HTFEMAPeriod || !validCandles(htf) {
		return TrendNeutral
	}
	ema := emaSeries(closes(htf), cfg.HTFEMAPeriod)
	if htf[len(htf)-1].Close > ema[len(ema)-1] {
		return TrendBullish
	}
	return TrendBearish
}

func (s *snapshot) findTrigger(dir models.Direction) (trigger, bool) {
	for _, kind := range s.strategy.Triggers() {
		if z, ok := s.match(dir, kind); ok {
			return trigger{dir: dir, kind: kind, zone: z}, true
		}
	}
	return trigger{}, false
}

// match перебирает зоны от ближней к дальней.
// SFP и отскок работают от "своей" зоны (поддержка для LONG), пробой и ретест: от противоположной.
func (s *snapshot) match(dir models.Direction, kind models.TriggerKind) (models.Zone, bool) {
	own, opposite := s.supports, s.resistances
	if dir == models.Short {
		own, opposite = s.resistances, s.supports
	}
	zones := own
	if kind == models.TriggerBreakout || kind == models.TriggerRetest {
		zones = opposite
	}

	for _, z := range byProximity(zones, s.last.Close) {
		var ok bool
		switch kind {
		case models.TriggerSFP:
			ok = s.sfp(dir, z)
		case models.TriggerBounce:
			ok = s.bounce(dir, z)
		case models.TriggerBreakout:
			ok = s.breakout(dir, z)
		case models.TriggerRetest:
			ok = s.retest(dir, z)
		}
		if ok {
			return z, true
		}
	}
	return models.Zone{}, false
}

// sfp: тень за зоной, закрытие вернулось, объём выше среднего.
func (s *snapshot) sfp(dir models.Direction, z models.Zone) bool {
	if s.volRatio <= 1 {
		return false
	}
	if dir == models.Long {
		return s.last.Low < z.Price-s.tol && s.last.Close > z.Price
	}
	return s.last.High > z.Price+s.tol && s.last.Close < z.Price
}

func (s *snapshot) bounce(dir models.Direction, z models.Zone) bool {
	if s.pattern.Bias != biasFor(dir) || s.volRatio < s.cfg.VolumeMultiplier {
		return false
	}
	if dir == models.Long {
		return abs(s.last.Low-z.Price) <= s.tol && s.last.Close > z.Price
	}
	return abs(s.last.High-z.Price) <= s.tol && s.last.Close < z.Price
}

// breakout: импульсное закрытие за зоной на сильном объёме.
func (s *snapshot) breakout(dir models.Direction, z models.Zone) bool {
	if s.last.Body() < s.cfg.ImpulseATR*s.atrNow || s.volRatio < s.cfg.StrongVolumeMultiplier {
		return false
	}
	if dir == models.Long {
		return s.last.Bullish() && s.prev.Close <= z.Price && s.last.Close > z.Price
	}
	return s.last.Bearish() && s.prev.Close >= z.Price && s.last.Close < z.Price
}

// retest: зона уже пробита закрытием после последнего касания, цена вернулась к ней и отбилась.
func (s *snapshot) retest(dir models.Direction, z models.Zone) bool {
	if s.pattern.Bias != biasFor(dir) {
		return false
	}
	n := len(s.c)
	broken := false
	for j := z.LastIndex + 1; j < n-1; j++ {
		if (dir == models.Long && s.c[j].Close > z.Price+s.tol) ||
			(dir == models.Short && s.c[j].Close < z.Price-s.tol) {
			broken = true
			break
		}
	}
	if !broken {
		return false
	}
	if dir == models.Long {
		return s.prev.Close > z.Price && s.last.Low <= z.Price+s.tol && s.last.Close > z.Price
	}
	return s.prev.Close < z.Price && s.last.High >= z.Price-s.tol && s.last.Close < z.Price
}

// tieBreak оставляет одну сторону, когда сработали обе.
func (s *snapshot) tieBreak(long, short trigger) trigger {
	high := s.rsiNow >= 50
	if s.cfg.TieBreak == models.TieBreakMomentum {
		if high {
			return long
		}
		return short
	}
	if high {
		return short
	}
	return long
}

func (s *snapshot) passFilters(dir models.Direction) bool {
	bias := biasFor(dir)
	cfg := s.cfg

	if cfg.UseRSIFilter {
		if dir == models.Long && s.rsiNow >= cfg.RSIOverbought {
			return false
		}
		if dir == models.Short && s.rsiNow <= cfg.RSIOversold {
			return false
		}
	}
	if s.htf != TrendNeutral && s.htf != trendFor(dir) {
		return false
	}

	st := s.structure
	if s.strategy.StructureFilter(cfg) && st.BOS != BiasNone && st.BOS != bias {
		return false
	}
	switch {
	case cfg.RequireBOS && st.BOS != bias,
		cfg.RequireFVG && st.InFVG != bias,
		cfg.RequireOB && st.AtOB != bias,
		cfg.RequireSweep && st.Sweep != bias,
		cfg.RequireDivergence && st.Diverge != bias:
		return false
	}
	return true
}

func (s *snapshot) build(symbol string, t trigger) (models.SignalResult, bool) {
	cfg := s.cfg
	entry := s.last.Close
	buf := s.atrNow * cfg.StopBufferATR

	var stop float64
	if t.dir == models.Long {
		structural := min(t.zone.Low, s.last.Low) - buf
		capped := entry * (1 - cfg.MaxRiskPct/100)
		stop = max(structural, capped)
		if stop >= entry || stop <= 0 {
			return models.SignalResult{}, false
		}
	} else {
		structural := max(t.zone.High, s.last.High) + buf
		capped := entry * (1 + cfg.MaxRiskPct/100)
		stop = min(structural, capped)
		if stop <= entry {
			return models.SignalResult{}, false
		}
	}
	risk := abs(entry - stop)

	quality, reasons := s.score(t)
	if quality < cfg.MinQuality {
		return models.SignalResult{}, false
	}

	res := models.SignalResult{
		Symbol:       symbol,
		Direction:    t.dir,
		Variant:      s.strategy.Variant(),
		Trigger:      t.kind,
		Entry:        entry,
		Stop:         stop,
		RiskPct:      risk / entry * 100,
		Quality:      quality,
		Reasons:      reasons,
		RSI:          s.rsiNow,
		VolumeRatio:  s.volRatio,
		Pattern:      s.pattern.Name,
		Structure:    s.structure.Label(),
		CounterTrend: s.trend == trendFor(opposite(t.dir)),
		Level:        t.zone.Price,
		LevelHits:    t.zone.Hits,
		BarTime:      s.last.OpenTime,
	}
	res.Timeframe = cfg.Timeframe

	sign := 1.0
	if t.dir == models.Short {
		sign = -1
	}
	res.TP1 = entry + sign*risk*cfg.TP1RR
	res.TP2 = entry + sign*risk*cfg.TP2RR
	res.TP3 = entry + sign*risk*cfg.TP3RR

	if s.strategy.DynamicTargets(cfg) {
		if levels := s.dynamicTargets(t.dir, entry, risk); len(levels) >= 3 {
			res.TP1, res.TP2, res.TP3 = levels[0], levels[1], levels[2]
			res.DynamicTargets = true
		}
	}
	return res, true
}

// dynamicTargets: ближайшие противоположные FVG/OB не ближе MinTargetRR*risk.
func (s *snapshot) dynamicTargets(dir models.Direction, entry, risk float64) []float64 {
	minDist := s.cfg.MinTargetRR * risk
	want := BiasBearish
	if dir == models.Short {
		want = BiasBullish
	}

	var levels []float64
	for _, g := range append(append([]Gap(nil), s.structure.FVGs...), s.structure.OBs...) {
		if g.Bias != want {
			continue
		}
		if dir == models.Long && g.Low >= entry+minDist {
			levels = append(levels, g.Low)
		}
		if dir == models.Short && g.High <= entry-minDist {
			levels = append(levels, g.High)
		}
	}

	if dir == models.Long {
		sort.Float64s(levels)
	} else {
		sort.Sort(sort.Reverse(sort.Float64Slice(levels)))
	}
	out := levels[:0]
	for _, l := range levels {
		if len(out) == 0 || out[len(out)-1] != l {
			out = append(out, l)
		}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// score: база варианта плюс пункты чек-листа, итог в [1, 5].
func (s *snapshot) score(t trigger) (int, []string) {
	bias := biasFor(t.dir)
	st := s.structure
	q := s.strategy.BaseScore()
	reasons := []string{triggerReason(t)}

	add := func(ok bool, reason string) {
		if ok {
			q++
			reasons = append(reasons, reason)
		}
	}

	add(s.volRatio >= s.cfg.VolumeMultiplier, fmt.Sprintf("Объём x%.2f к среднему", s.volRatio))
	add(s.pattern.Bias == bias, "Паттерн: "+s.pattern.Name)
	rsiOK := (t.dir == models.Long && s.rsiNow < 50) || (t.dir == models.Short && s.rsiNow > 50)
	add(rsiOK, fmt.Sprintf("RSI %.1f", s.rsiNow))
	add(s.trend == trendFor(t.dir), "Локальный тренд по EMA")
	add(s.htf == trendFor(t.dir), "Старший ТФ подтверждает")
	if s.strategy.ScoresStructure() {
		why := st.Confirms(bias)
		add(why != "", "Структура: "+why)
	}
	if s.strategy.ScoresGaps() {
		add(st.InFVG == bias || st.AtOB == bias, "Цена в FVG/OB")
	}

	if s.trend == trendFor(opposite(t.dir)) {
		reasons = append(reasons, "Контртрендовый вход")
	}
	return min(max(q, 1), 5), reasons
}

func triggerReason(t trigger) string {
	z := fmt.Sprintf("%.6g (касаний: %d)", t.zone.Price, t.zone.Hits)
	switch t.kind {
	case models.TriggerSFP:
		return "Ложный пробой уровня " + z
	case models.TriggerBounce:
		return "Отскок от уровня " + z
	case models.TriggerBreakout:
		return "Пробой уровня " + z
	case models.TriggerRetest:
		return "Ретест уровня " + z
	}
	return string(t.kind)
}

func trendFor(dir models.Direction) Trend {
	if dir == models.Long {
		return TrendBullish
	}
	return TrendBearish
}

func opposite(dir models.Direction) models.Direction {
	if dir == models.Long {
		return models.Short
	}
	return models.Long
}
