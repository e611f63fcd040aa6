package service

import (
	"math"
	"testing"

	"market_scanner/internal/models"
)

func TestTriggers(t *testing.T) {
	zone := models.Zone{Price: 100, Low: 99.8, High: 100.2, Hits: 3}
	flat := bar(0, 100, 100.3, 99.7, 100, 100)

	tests := []struct {
		name    string
		kind    models.TriggerKind
		dir     models.Direction
		mid     []models.Candle
		prev    models.Candle
		last    models.Candle
		pattern Bias
		vol     float64
		want    bool
	}{
		{name: "sfp long", kind: models.TriggerSFP, dir: models.Long,
			prev: bar(1, 100.5, 100.8, 100.2, 100.4, 100), last: bar(2, 100.4, 100.6, 99.3, 100.4, 120), vol: 1.2, want: true},
		{name: "sfp long, quiet volume", kind: models.TriggerSFP, dir: models.Long,
			prev: bar(1, 100.5, 100.8, 100.2, 100.4, 100), last: bar(2, 100.4, 100.6, 99.3, 100.4, 100), vol: 1, want: false},
		{name: "sfp long, closed below", kind: models.TriggerSFP, dir: models.Long,
			prev: bar(1, 100.5, 100.8, 100.2, 100.4, 100), last: bar(2, 100.4, 100.6, 99.3, 99.9, 120), vol: 1.2, want: false},
		{name: "sfp short", kind: models.TriggerSFP, dir: models.Short,
			prev: bar(1, 99.5, 99.8, 99.2, 99.6, 100), last: bar(2, 99.6, 100.7, 99.4, 99.6, 120), vol: 1.2, want: true},

		{name: "bounce long", kind: models.TriggerBounce, dir: models.Long,
			prev: bar(1, 100.6, 100.7, 100.1, 100.2, 100), last: bar(2, 100.1, 100.8, 99.8, 100.6, 130), pattern: BiasBullish, vol: 1.3, want: true},
		{name: "bounce long, bearish pattern", kind: models.TriggerBounce, dir: models.Long,
			prev: bar(1, 100.6, 100.7, 100.1, 100.2, 100), last: bar(2, 100.1, 100.8, 99.8, 100.6, 130), pattern: BiasBearish, vol: 1.3, want: false},
		{name: "bounce long, far from zone", kind: models.TriggerBounce, dir: models.Long,
			prev: bar(1, 101.6, 101.7, 101.1, 101.2, 100), last: bar(2, 101.1, 101.8, 100.8, 101.6, 130), pattern: BiasBullish, vol: 1.3, want: false},
		{name: "bounce short", kind: models.TriggerBounce, dir: models.Short,
			prev: bar(1, 99.4, 99.9, 99.3, 99.8, 100), last: bar(2, 99.9, 100.2, 99.2, 99.4, 130), pattern: BiasBearish, vol: 1.3, want: true},

		{name: "breakout long", kind: models.TriggerBreakout, dir: models.Long,
			prev: bar(1, 99.5, 99.9, 99.3, 99.8, 100), last: bar(2, 99.5, 101.2, 99.4, 101, 200), vol: 2, want: true},
		{name: "breakout long, weak volume", kind: models.TriggerBreakout, dir: models.Long,
			prev: bar(1, 99.5, 99.9, 99.3, 99.8, 100), last: bar(2, 99.5, 101.2, 99.4, 101, 190), vol: 1.9, want: false},
		{name: "breakout long, small body", kind: models.TriggerBreakout, dir: models.Long,
			prev: bar(1, 99.5, 99.9, 99.3, 99.8, 100), last: bar(2, 99.9, 100.5, 99.8, 100.4, 200), vol: 2, want: false},
		{name: "breakout long, already above", kind: models.TriggerBreakout, dir: models.Long,
			prev: bar(1, 100.1, 100.4, 100, 100.2, 100), last: bar(2, 100, 101.6, 99.9, 101.4, 200), vol: 2, want: false},
		{name: "breakout short", kind: models.TriggerBreakout, dir: models.Short,
			prev: bar(1, 100.5, 100.7, 100.1, 100.2, 100), last: bar(2, 100.5, 100.6, 98.8, 99, 200), vol: 2, want: true},

		{name: "retest long", kind: models.TriggerRetest, dir: models.Long,
			mid:  []models.Candle{bar(1, 100, 101.2, 99.9, 101, 100)},
			prev: bar(2, 101, 101.1, 100.5, 100.6, 100), last: bar(3, 100.6, 101, 100.3, 100.8, 100), pattern: BiasBullish, want: true},
		{name: "retest long, never broken", kind: models.TriggerRetest, dir: models.Long,
			mid:  []models.Candle{bar(1, 100, 100.4, 99.9, 100.3, 100)},
			prev: bar(2, 100.3, 100.7, 100.2, 100.4, 100), last: bar(3, 100.4, 100.9, 100.3, 100.8, 100), pattern: BiasBullish, want: false},
		{name: "retest short", kind: models.TriggerRetest, dir: models.Short,
			mid:  []models.Candle{bar(1, 100, 100.1, 98.8, 99, 100)},
			prev: bar(2, 99, 99.5, 98.9, 99.4, 100), last: bar(3, 99.4, 99.7, 99, 99.2, 100), pattern: BiasBearish, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := append([]models.Candle{flat}, tt.mid...)
			c = append(c, tt.prev, tt.last)
			s := scene(c)
			s.pattern = Pattern{Bias: tt.pattern}
			s.volRatio = tt.vol
			s.supports = []models.Zone{zone}
			s.resistances = []models.Zone{zone}

			z, ok := s.match(tt.dir, tt.kind)
			if ok != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, ok)
			}
			if ok && z.Price != zone.Price {
				t.Errorf("expected zone %v, got %v", zone.Price, z.Price)
			}
		})
	}
}

func TestMatchPicksZoneSide(t *testing.T) {
	s := scene([]models.Candle{
		bar(0, 104, 104.5, 103.8, 104.2, 100),
		bar(1, 104.2, 104.9, 104.1, 104.8, 100),
		bar(2, 104.6, 106, 104.5, 105.8, 200),
	})
	s.volRatio = 2
	s.supports = []models.Zone{{Kind: models.ZoneSupport, Price: 100, Low: 99.8, High: 100.2, Hits: 2}}
	s.resistances = []models.Zone{{Kind: models.ZoneResistance, Price: 105, Low: 104.8, High: 105.2, Hits: 2}}

	z, ok := s.match(models.Long, models.TriggerBreakout)
	if !ok || z.Kind != models.ZoneResistance {
		t.Errorf("expected LONG breakout of resistance, got %+v (%v)", z, ok)
	}
	if _, ok := s.match(models.Short, models.TriggerBreakout); ok {
		t.Error("expected no SHORT breakout of support")
	}
}

func TestPassFilters(t *testing.T) {
	tests := []struct {
		name string
		dir  models.Direction
		edit func(s *snapshot)
		want bool
	}{
		{name: "clean", dir: models.Long, edit: func(s *snapshot) {}, want: true},
		{name: "overbought long", dir: models.Long, edit: func(s *snapshot) { s.rsiNow = 75 }, want: false},
		{name: "oversold short", dir: models.Short, edit: func(s *snapshot) { s.rsiNow = 25 }, want: false},
		{name: "overbought short", dir: models.Short, edit: func(s *snapshot) { s.rsiNow = 75 }, want: true},
		{name: "rsi filter off", dir: models.Long, edit: func(s *snapshot) {
			s.rsiNow = 75
			s.cfg.UseRSIFilter = false
		}, want: true},
		{name: "htf against", dir: models.Long, edit: func(s *snapshot) { s.htf = TrendBearish }, want: false},
		{name: "htf agrees", dir: models.Short, edit: func(s *snapshot) { s.htf = TrendBearish }, want: true},
		{name: "structure against, filter off", dir: models.Long, edit: func(s *snapshot) { s.structure.BOS = BiasBearish }, want: true},
		{name: "structure against, filter on", dir: models.Long, edit: func(s *snapshot) {
			s.structure.BOS = BiasBearish
			s.cfg.UseStructureFilter = true
		}, want: false},
		{name: "smc filters structure", dir: models.Long, edit: func(s *snapshot) {
			s.strategy = smcStrategy{}
			s.structure.BOS = BiasBearish
		}, want: false},
		{name: "require bos, missing", dir: models.Long, edit: func(s *snapshot) { s.cfg.RequireBOS = true }, want: false},
		{name: "require bos, met", dir: models.Long, edit: func(s *snapshot) {
			s.cfg.RequireBOS = true
			s.structure.BOS = BiasBullish
		}, want: true},
		{name: "require fvg, missing", dir: models.Long, edit: func(s *snapshot) { s.cfg.RequireFVG = true }, want: false},
		{name: "require fvg, met", dir: models.Short, edit: func(s *snapshot) {
			s.cfg.RequireFVG = true
			s.structure.InFVG = BiasBearish
		}, want: true},
		{name: "require ob, wrong side", dir: models.Long, edit: func(s *snapshot) {
			s.cfg.RequireOB = true
			s.structure.AtOB = BiasBearish
		}, want: false},
		{name: "require ob, met", dir: models.Long, edit: func(s *snapshot) {
			s.cfg.RequireOB = true
			s.structure.AtOB = BiasBullish
		}, want: true},
		{name: "require sweep, missing", dir: models.Short, edit: func(s *snapshot) { s.cfg.RequireSweep = true }, want: false},
		{name: "require sweep, met", dir: models.Short, edit: func(s *snapshot) {
			s.cfg.RequireSweep = true
			s.structure.Sweep = BiasBearish
		}, want: true},
		{name: "require divergence, missing", dir: models.Long, edit: func(s *snapshot) { s.cfg.RequireDivergence = true }, want: false},
		{name: "require divergence, met", dir: models.Long, edit: func(s *snapshot) {
			s.cfg.RequireDivergence = true
			s.structure.Diverge = BiasBullish
		}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := scene([]models.Candle{bar(0, 100, 101, 99, 100, 1), bar(1, 100, 101, 99, 100.5, 1)})
			tt.edit(s)
			if got := s.passFilters(tt.dir); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDynamicTargets(t *testing.T) {
	s := scene([]models.Candle{bar(0, 100, 101, 99, 100, 1), bar(1, 100, 101, 99, 100, 1)})
	s.structure.FVGs = []Gap{
		{Low: 104, High: 105, Bias: BiasBearish},
		{Low: 103, High: 103.5, Bias: BiasBearish},
		{Low: 101.5, High: 102, Bias: BiasBearish}, // ближе MinTargetRR
		{Low: 107, High: 108, Bias: BiasBearish},
		{Low: 103.2, High: 103.4, Bias: BiasBullish},
		{Low: 96, High: 97, Bias: BiasBullish},
		{Low: 93, High: 94, Bias: BiasBullish},
	}
	s.structure.OBs = []Gap{
		{Low: 103, High: 104, Bias: BiasBearish},
		{Low: 105, High: 106, Bias: BiasBearish},
		{Low: 97.5, High: 98.5, Bias: BiasBullish},
	}

	tests := []struct {
		name string
		dir  models.Direction
		want []float64
	}{
		{"long", models.Long, []float64{103, 104, 105}},
		{"short", models.Short, []float64{98.5, 97, 94}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.dynamicTargets(tt.dir, 100, 2)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}

func TestBuildTargets(t *testing.T) {
	tests := []struct {
		name        string
		gaps        []Gap
		wantDynamic bool
		want        [3]float64
	}{
		{
			name:        "fixed when levels are few",
			gaps:        []Gap{{Low: 103, High: 104, Bias: BiasBearish}, {Low: 105, High: 106, Bias: BiasBearish}},
			wantDynamic: false,
			want:        [3]float64{102, 104, 106},
		},
		{
			name: "dynamic",
			gaps: []Gap{
				{Low: 103, High: 104, Bias: BiasBearish},
				{Low: 105, High: 106, Bias: BiasBearish},
				{Low: 108, High: 109, Bias: BiasBearish},
			},
			wantDynamic: true,
			want:        [3]float64{103, 105, 108},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := scene([]models.Candle{bar(0, 100.2, 100.4, 99.5, 99.6, 1), bar(1, 99.6, 100.2, 99, 100, 1)})
			s.strategy = smcStrategy{}
			s.structure.FVGs = tt.gaps
			zone := models.Zone{Kind: models.ZoneSupport, Price: 98.5, Low: 98, High: 99, Hits: 2}

			res, ok := s.build("BTC-USDT-SWAP", trigger{dir: models.Long, kind: models.TriggerBounce, zone: zone})
			if !ok {
				t.Fatal("expected signal")
			}
			if math.Abs(res.Stop-98) > 1e-9 {
				t.Errorf("expected capped stop 98, got %v", res.Stop)
			}
			if res.DynamicTargets != tt.wantDynamic {
				t.Errorf("expected dynamic=%v, got %v", tt.wantDynamic, res.DynamicTargets)
			}
			got := [3]float64{res.TP1, res.TP2, res.TP3}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("expected targets %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}

func TestAnalyzeResistanceRejection(t *testing.T) {
	c := mirror(bounceSeries(), 210)

	res, ok := New(models.Short).Analyze("BTC-USDT-SWAP", c, fallingHTF(80), models.DefaultScanConfig())
	if !ok {
		t.Fatal("expected SHORT signal, got none")
	}
	if res.Direction != models.Short || res.Trigger != models.TriggerBounce {
		t.Errorf("expected SHORT bounce, got %s %s", res.Direction, res.Trigger)
	}
	if math.Abs(res.Level-110.5) > 1e-9 || res.LevelHits != 4 {
		t.Errorf("expected level 110.5 with 4 hits, got %v with %d", res.Level, res.LevelHits)
	}
	if res.Pattern != "bearish_engulfing" {
		t.Errorf("expected bearish_engulfing, got %q", res.Pattern)
	}
	if math.Abs(res.Entry-108.4) > 1e-9 {
		t.Errorf("expected entry 108.4, got %v", res.Entry)
	}
	if math.Abs(res.Stop-res.Entry*1.02) > 1e-9 {
		t.Errorf("expected capped stop %v, got %v", res.Entry*1.02, res.Stop)
	}
	if !(res.TP3 < res.TP2 && res.TP2 < res.TP1 && res.TP1 < res.Entry) {
		t.Errorf("expected descending targets below entry, got %v %v %v", res.TP1, res.TP2, res.TP3)
	}
	if res.RSI <= 50 || res.RSI >= 70 {
		t.Errorf("expected RSI around 60, got %v", res.RSI)
	}
	if !res.CounterTrend {
		t.Error("expected counter-trend flag against bullish EMAs")
	}
}
