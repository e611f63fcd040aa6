package service

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"market_scanner/internal/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c, v float64) models.Candle {
	return models.Candle{OpenTime: t0.Add(time.Duration(i) * time.Hour), Open: o, High: h, Low: l, Close: c, Volume: v}
}

// bounceSeries: три полных качели 100..110, опора 99.5 с четырьмя касаниями,
// последний бар: бычье поглощение от опоры на объёме x1.5.
func bounceSeries() []models.Candle {
	path := []float64{105, 104, 103, 102, 101, 100}
	for k := 0; k < 3; k++ {
		for p := 101.0; p <= 110; p++ {
			path = append(path, p)
		}
		for p := 109.0; p >= 100; p-- {
			path = append(path, p)
		}
	}
	for p := 101.0; p <= 110; p++ {
		path = append(path, p)
	}
	for p := 109.0; p >= 101; p-- {
		path = append(path, p)
	}

	c := make([]models.Candle, 0, len(path)+2)
	prev := path[0] + 0.5
	for i, p := range path {
		h, l := math.Max(prev, p)+0.2, math.Min(prev, p)-0.2
		if p == 100 {
			l = 99.5
		}
		if p == 110 {
			h = 110.5
		}
		c = append(c, bar(i, prev, h, l, p, 100))
		prev = p
	}
	n := len(c)
	c = append(c, bar(n, 101, 101.2, 100.1, 100.3, 100))
	c = append(c, bar(n+1, 100.2, 101.8, 99.8, 101.6, 150))
	return c
}

func risingHTF(n int) []models.Candle {
	c := make([]models.Candle, n)
	for i := range c {
		p := 100 + float64(i)
		c[i] = bar(i*4, p, p+1.5, p-0.5, p+1, 100)
	}
	return c
}

func fallingHTF(n int) []models.Candle {
	c := make([]models.Candle, n)
	for i := range c {
		p := 200 - float64(i)
		c[i] = bar(i*4, p, p+0.5, p-1.5, p-1, 100)
	}
	return c
}

func TestAnalyzeFlatSeries(t *testing.T) {
	cfg := models.DefaultScanConfig()
	c := make([]models.Candle, 200)
	for i := range c {
		c[i] = bar(i, 100, 100.1, 99.9, 100, 1000)
	}

	ind := New(models.Both)
	for n := cfg.MinBars(); n <= len(c); n++ {
		if res, ok := ind.Analyze("FLAT-USDT-SWAP", c[:n], nil, cfg); ok {
			t.Fatalf("expected no signal at bar %d, got %+v", n, res)
		}
	}
}

func TestAnalyzeSupportBounce(t *testing.T) {
	cfg := models.DefaultScanConfig()
	c := bounceSeries()

	res, ok := New(models.Long).Analyze("BTC-USDT-SWAP", c, risingHTF(80), cfg)
	if !ok {
		t.Fatal("expected LONG signal, got none")
	}
	if res.Direction != models.Long {
		t.Errorf("expected LONG, got %s", res.Direction)
	}
	if res.Trigger != models.TriggerBounce {
		t.Errorf("expected bounce trigger, got %s", res.Trigger)
	}
	if res.Quality < 4 || res.Quality > 5 {
		t.Errorf("expected quality in [4,5], got %d", res.Quality)
	}
	if res.Level != 99.5 || res.LevelHits != 4 {
		t.Errorf("expected level 99.5 with 4 hits, got %v with %d", res.Level, res.LevelHits)
	}
	if res.Pattern != "bullish_engulfing" {
		t.Errorf("expected bullish_engulfing, got %q", res.Pattern)
	}
	if math.Abs(res.VolumeRatio-1.5) > 1e-9 {
		t.Errorf("expected volume ratio 1.5, got %v", res.VolumeRatio)
	}
	if res.RSI >= 50 || res.RSI <= 30 {
		t.Errorf("expected RSI around 40, got %v", res.RSI)
	}
	if res.Entry != 101.6 {
		t.Errorf("expected entry 101.6, got %v", res.Entry)
	}
	// структурный стоп дальше 2%, срабатывает ограничение риска
	if math.Abs(res.Stop-101.6*0.98) > 1e-9 {
		t.Errorf("expected capped stop %v, got %v", 101.6*0.98, res.Stop)
	}
	risk := res.Entry - res.Stop
	if math.Abs(res.TP1-(res.Entry+risk)) > 1e-9 || math.Abs(res.TP3-(res.Entry+3*risk)) > 1e-9 {
		t.Errorf("expected fixed targets, got %v %v %v", res.TP1, res.TP2, res.TP3)
	}
	if !res.CounterTrend {
		t.Error("expected counter-trend flag against bearish EMAs")
	}
	if !res.BarTime.Equal(c[len(c)-1].OpenTime) {
		t.Errorf("expected bar time %v, got %v", c[len(c)-1].OpenTime, res.BarTime)
	}
	if len(res.Reasons) == 0 {
		t.Error("expected reasons")
	}
}

func TestAnalyzeVariants(t *testing.T) {
	tests := []struct {
		name    string
		variant models.Variant
		want    bool
	}{
		{name: "zone_sfp", variant: models.VariantZoneSFP, want: true},
		{name: "smc", variant: models.VariantSMC, want: true},
		// classic торгует только пробой и ретест
		{name: "classic", variant: models.VariantClassic, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultScanConfig()
			cfg.Variant = tt.variant

			res, ok := New(models.Long).Analyze("BTC-USDT-SWAP", bounceSeries(), risingHTF(80), cfg)
			if ok != tt.want {
				t.Fatalf("expected signal=%v, got %v (%+v)", tt.want, ok, res)
			}
			if !ok {
				return
			}
			if res.Variant != tt.variant {
				t.Errorf("expected variant %s, got %s", tt.variant, res.Variant)
			}
			if !(res.Entry < res.TP1 && res.TP1 < res.TP2 && res.TP2 < res.TP3) {
				t.Errorf("expected ascending targets above entry, got %v %v %v", res.TP1, res.TP2, res.TP3)
			}
		})
	}
}

func TestAnalyzeHTF(t *testing.T) {
	tests := []struct {
		name string
		htf  []models.Candle
		want bool
	}{
		{name: "agrees", htf: risingHTF(80), want: true},
		{name: "missing", htf: nil, want: true},
		{name: "too short", htf: risingHTF(10), want: true},
		{name: "disagrees", htf: fallingHTF(80), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := New(models.Long).Analyze("BTC-USDT-SWAP", bounceSeries(), tt.htf, models.DefaultScanConfig())
			if ok != tt.want {
				t.Errorf("expected signal=%v, got %v", tt.want, ok)
			}
		})
	}
}

func TestAnalyzeDirectionFilter(t *testing.T) {
	cfg := models.DefaultScanConfig()

	if _, ok := New(models.Short).Analyze("BTC-USDT-SWAP", bounceSeries(), risingHTF(80), cfg); ok {
		t.Error("expected no signal for SHORT-only job")
	}
	res, ok := New(models.Both).Analyze("BTC-USDT-SWAP", bounceSeries(), risingHTF(80), cfg)
	if !ok || res.Direction != models.Long {
		t.Errorf("expected LONG for BOTH job, got %v %+v", ok, res)
	}
}

func TestAnalyzeNotEnoughBars(t *testing.T) {
	cfg := models.DefaultScanConfig()
	c := bounceSeries()
	c = c[len(c)-(cfg.MinBars()-1):]

	if _, ok := New(models.Both).Analyze("BTC-USDT-SWAP", c, risingHTF(80), cfg); ok {
		t.Error("expected no signal below minimum bars")
	}
}

func TestAnalyzeMalformed(t *testing.T) {
	cfg := models.DefaultScanConfig()
	tests := []struct {
		name string
		mod  func(c []models.Candle)
	}{
		{name: "nan close", mod: func(c []models.Candle) { c[10].Close = math.NaN() }},
		{name: "zero price", mod: func(c []models.Candle) { c[20].Low = 0 }},
		{name: "high below low", mod: func(c []models.Candle) { c[30].High = c[30].Low - 1 }},
		{name: "negative volume", mod: func(c []models.Candle) { c[40].Volume = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := bounceSeries()
			tt.mod(c)
			if _, ok := New(models.Both).Analyze("BTC-USDT-SWAP", c, risingHTF(80), cfg); ok {
				t.Error("expected no signal on malformed input")
			}
		})
	}
}

func TestAnalyzeCooldown(t *testing.T) {
	cfg := models.DefaultScanConfig()
	c := bounceSeries()
	n := len(c)
	htf := risingHTF(80)

	// продолжение после сигнального бара
	last := c[n-1].Close
	for k := 0; k < cfg.CooldownBars+1; k++ {
		p := last + 0.3
		c = append(c, bar(n+k, last, p+0.2, last-0.2, p, 100))
		last = p
	}

	ind := New(models.Long)
	if _, ok := ind.Analyze("BTC-USDT-SWAP", c[:n], htf, cfg); !ok {
		t.Fatal("expected initial signal")
	}
	if _, ok := ind.Analyze("BTC-USDT-SWAP", c[:n], htf, cfg); ok {
		t.Error("expected repeated call on the same bar to be suppressed")
	}
	for k := 1; k < cfg.CooldownBars; k++ {
		if _, ok := ind.Analyze("BTC-USDT-SWAP", c[:n+k], htf, cfg); ok {
			t.Errorf("expected no signal at bar N+%d", k)
		}
	}

	gotRes, gotOK := ind.Analyze("BTC-USDT-SWAP", c[:n+cfg.CooldownBars], htf, cfg)
	wantRes, wantOK := New(models.Long).Analyze("BTC-USDT-SWAP", c[:n+cfg.CooldownBars], htf, cfg)
	if gotOK != wantOK || !reflect.DeepEqual(gotRes, wantRes) {
		t.Errorf("expected normal evaluation after cooldown, got %v %+v, want %v %+v", gotOK, gotRes, wantOK, wantRes)
	}
}

func TestCooldownIsPerInstanceAndSymbol(t *testing.T) {
	cfg := models.DefaultScanConfig()
	c := bounceSeries()
	htf := risingHTF(80)

	a, b := New(models.Long), New(models.Long)
	if _, ok := a.Analyze("BTC-USDT-SWAP", c, htf, cfg); !ok {
		t.Fatal("expected signal for first instance")
	}
	if _, ok := b.Analyze("BTC-USDT-SWAP", c, htf, cfg); !ok {
		t.Error("expected other instance not to share cooldown")
	}
	if _, ok := a.Analyze("ETH-USDT-SWAP", c, htf, cfg); !ok {
		t.Error("expected other symbol not to share cooldown")
	}
}

func TestTieBreak(t *testing.T) {
	long := trigger{dir: models.Long}
	short := trigger{dir: models.Short}

	tests := []struct {
		name   string
		policy models.TieBreak
		rsi    float64
		want   models.Direction
	}{
		{name: "reference high rsi", policy: models.TieBreakReference, rsi: 60, want: models.Short},
		{name: "reference at 50", policy: models.TieBreakReference, rsi: 50, want: models.Short},
		{name: "reference low rsi", policy: models.TieBreakReference, rsi: 40, want: models.Long},
		{name: "momentum high rsi", policy: models.TieBreakMomentum, rsi: 60, want: models.Long},
		{name: "momentum low rsi", policy: models.TieBreakMomentum, rsi: 40, want: models.Short},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultScanConfig()
			cfg.TieBreak = tt.policy
			s := &snapshot{cfg: cfg, rsiNow: tt.rsi}
			if got := s.tieBreak(long, short); got.dir != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.dir)
			}
		})
	}
}

func TestAnalyzeRandomInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	variants := []models.Variant{models.VariantClassic, models.VariantZoneSFP, models.VariantSMC}

	for run := 0; run < 20; run++ {
		c := make([]models.Candle, 300)
		p := 100.0
		for i := range c {
			o := p
			p = math.Max(1, p+rng.NormFloat64()*1.5)
			h := math.Max(o, p) + rng.Float64()
			l := math.Max(0.5, math.Min(o, p)-rng.Float64())
			c[i] = bar(i, o, h, l, p, 50+rng.Float64()*200)
		}

		cfg := models.DefaultScanConfig()
		cfg.Variant = variants[run%len(variants)]
		cfg.UseHTF = false
		cfg.CooldownBars = 0
		cfg.MaxRiskPct = 1 + float64(run%3)

		ind := New(models.Both)
		for n := cfg.MinBars(); n <= len(c); n++ {
			res, ok := ind.Analyze("RND-USDT-SWAP", c[:n], nil, cfg)
			if !ok {
				continue
			}
			if res.Quality < 1 || res.Quality > 5 {
				t.Fatalf("expected quality in [1,5], got %d", res.Quality)
			}
			if math.Abs(res.Entry-res.Stop)/res.Entry > cfg.MaxRiskPct/100+1e-9 {
				t.Fatalf("expected risk <= %v%%, got %v%%", cfg.MaxRiskPct, res.RiskPct)
			}
			if res.LevelHits < 2 {
				t.Fatalf("expected zone with >= 2 hits, got %d", res.LevelHits)
			}
			if res.Direction == models.Long && res.Stop >= res.Entry ||
				res.Direction == models.Short && res.Stop <= res.Entry {
				t.Fatalf("expected stop on the losing side, got %+v", res)
			}
		}
	}
}
