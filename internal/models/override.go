package models

import "slices"

// TradeOverride: оверрайд параметров для одной стороны (LONG/SHORT).
// Применяется только заданное поле (nil = не задано), значение не сравнивается с дефолтом.
type TradeOverride struct {
	Timeframe       *string  `json:"timeframe,omitempty" yaml:"timeframe,omitempty"`
	HTFTimeframe    *string  `json:"htf_timeframe,omitempty" yaml:"htf_timeframe,omitempty"`
	ScanIntervalSec *int     `json:"scan_interval_sec,omitempty" yaml:"scan_interval_sec,omitempty"`
	Variant         *Variant `json:"variant,omitempty" yaml:"variant,omitempty"`
	CandleLimit     *int     `json:"candle_limit,omitempty" yaml:"candle_limit,omitempty"`

	EMAFast       *int     `json:"ema_fast,omitempty" yaml:"ema_fast,omitempty"`
	EMASlow       *int     `json:"ema_slow,omitempty" yaml:"ema_slow,omitempty"`
	ATRPeriod     *int     `json:"atr_period,omitempty" yaml:"atr_period,omitempty"`
	RSIPeriod     *int     `json:"rsi_period,omitempty" yaml:"rsi_period,omitempty"`
	RSIOverbought *float64 `json:"rsi_overbought,omitempty" yaml:"rsi_overbought,omitempty"`
	RSIOversold   *float64 `json:"rsi_oversold,omitempty" yaml:"rsi_oversold,omitempty"`

	VolumeWindow           *int     `json:"volume_window,omitempty" yaml:"volume_window,omitempty"`
	VolumeMultiplier       *float64 `json:"volume_multiplier,omitempty" yaml:"volume_multiplier,omitempty"`
	StrongVolumeMultiplier *float64 `json:"strong_volume_multiplier,omitempty" yaml:"strong_volume_multiplier,omitempty"`
	ImpulseATR             *float64 `json:"impulse_atr,omitempty" yaml:"impulse_atr,omitempty"`

	PivotStrength *int     `json:"pivot_strength,omitempty" yaml:"pivot_strength,omitempty"`
	ZoneBuffer    *float64 `json:"zone_buffer,omitempty" yaml:"zone_buffer,omitempty"`
	ZoneLookback  *int     `json:"zone_lookback,omitempty" yaml:"zone_lookback,omitempty"`

	UseHTF       *bool `json:"use_htf,omitempty" yaml:"use_htf,omitempty"`
	HTFEMAPeriod *int  `json:"htf_ema_period,omitempty" yaml:"htf_ema_period,omitempty"`

	UseRSIFilter       *bool `json:"use_rsi_filter,omitempty" yaml:"use_rsi_filter,omitempty"`
	UseStructureFilter *bool `json:"use_structure_filter,omitempty" yaml:"use_structure_filter,omitempty"`

	RequireBOS        *bool `json:"require_bos,omitempty" yaml:"require_bos,omitempty"`
	RequireFVG        *bool `json:"require_fvg,omitempty" yaml:"require_fvg,omitempty"`
	RequireOB         *bool `json:"require_ob,omitempty" yaml:"require_ob,omitempty"`
	RequireSweep      *bool `json:"require_sweep,omitempty" yaml:"require_sweep,omitempty"`
	RequireDivergence *bool `json:"require_divergence,omitempty" yaml:"require_divergence,omitempty"`

	MaxRiskPct     *float64 `json:"max_risk_pct,omitempty" yaml:"max_risk_pct,omitempty"`
	StopBufferATR  *float64 `json:"stop_buffer_atr,omitempty" yaml:"stop_buffer_atr,omitempty"`
	TP1RR          *float64 `json:"tp1_rr,omitempty" yaml:"tp1_rr,omitempty"`
	TP2RR          *float64 `json:"tp2_rr,omitempty" yaml:"tp2_rr,omitempty"`
	TP3RR          *float64 `json:"tp3_rr,omitempty" yaml:"tp3_rr,omitempty"`
	DynamicTargets *bool    `json:"dynamic_targets,omitempty" yaml:"dynamic_targets,omitempty"`
	MinTargetRR    *float64 `json:"min_target_rr,omitempty" yaml:"min_target_rr,omitempty"`

	CooldownBars  *int      `json:"cooldown_bars,omitempty" yaml:"cooldown_bars,omitempty"`
	MinBarsMargin *int      `json:"min_bars_margin,omitempty" yaml:"min_bars_margin,omitempty"`
	MinQuality    *int      `json:"min_quality,omitempty" yaml:"min_quality,omitempty"`
	TieBreak      *TieBreak `json:"tie_break,omitempty" yaml:"tie_break,omitempty"`

	MinVolume24h *float64  `json:"min_volume_24h,omitempty" yaml:"min_volume_24h,omitempty"`
	Blacklist    *[]string `json:"blacklist,omitempty" yaml:"blacklist,omitempty"`
	MaxSymbols   *int      `json:"max_symbols,omitempty" yaml:"max_symbols,omitempty"`
}

// MergedWith накладывает заданные поля оверрайда на общий конфиг.
func (c ScanConfig) MergedWith(o TradeOverride) ScanConfig {
	out := c
	out.Blacklist = slices.Clone(c.Blacklist)

	apply(&out.Timeframe, o.Timeframe)
	apply(&out.HTFTimeframe, o.HTFTimeframe)
	apply(&out.ScanIntervalSec, o.ScanIntervalSec)
	apply(&out.Variant, o.Variant)
	apply(&out.CandleLimit, o.CandleLimit)

	apply(&out.EMAFast, o.EMAFast)
	apply(&out.EMASlow, o.EMASlow)
	apply(&out.ATRPeriod, o.ATRPeriod)
	apply(&out.RSIPeriod, o.RSIPeriod)
	apply(&out.RSIOverbought, o.RSIOverbought)
	apply(&out.RSIOversold, o.RSIOversold)

	apply(&out.VolumeWindow, o.VolumeWindow)
	apply(&out.VolumeMultiplier, o.VolumeMultiplier)
	apply(&out.StrongVolumeMultiplier, o.StrongVolumeMultiplier)
	apply(&out.ImpulseATR, o.ImpulseATR)

	apply(&out.PivotStrength, o.PivotStrength)
	apply(&out.ZoneBuffer, o.ZoneBuffer)
	apply(&out.ZoneLookback, o.ZoneLookback)

	apply(&out.UseHTF, o.UseHTF)
	apply(&out.HTFEMAPeriod, o.HTFEMAPeriod)
	apply(&out.UseRSIFilter, o.UseRSIFilter)
	apply(&out.UseStructureFilter, o.UseStructureFilter)

	apply(&out.RequireBOS, o.RequireBOS)
	apply(&out.RequireFVG, o.RequireFVG)
	apply(&out.RequireOB, o.RequireOB)
	apply(&out.RequireSweep, o.RequireSweep)
	apply(&out.RequireDivergence, o.RequireDivergence)

	apply(&out.MaxRiskPct, o.MaxRiskPct)
	apply(&out.StopBufferATR, o.StopBufferATR)
	apply(&out.TP1RR, o.TP1RR)
	apply(&out.TP2RR, o.TP2RR)
	apply(&out.TP3RR, o.TP3RR)
	apply(&out.DynamicTargets, o.DynamicTargets)
	apply(&out.MinTargetRR, o.MinTargetRR)

	apply(&out.CooldownBars, o.CooldownBars)
	apply(&out.MinBarsMargin, o.MinBarsMargin)
	apply(&out.MinQuality, o.MinQuality)
	apply(&out.TieBreak, o.TieBreak)

	apply(&out.MinVolume24h, o.MinVolume24h)
	apply(&out.MaxSymbols, o.MaxSymbols)
	if o.Blacklist != nil {
		out.Blacklist = slices.Clone(*o.Blacklist)
	}
	return out
}

// Empty: ни одно поле не задано.
func (o TradeOverride) Empty() bool {
	return o == TradeOverride{}
}

// LegacyOverride переводит старую запись (полная структура параметров) в оверрайд.
// Поле считается заданным, только если отличается от дефолта: так раньше
// работало слияние, и сохранённые записи читаются как раньше.
func LegacyOverride(full ScanConfig) TradeOverride {
	def := DefaultScanConfig()
	var o TradeOverride

	o.Timeframe = differs(full.Timeframe, def.Timeframe)
	o.HTFTimeframe = differs(full.HTFTimeframe, def.HTFTimeframe)
	o.ScanIntervalSec = differs(full.ScanIntervalSec, def.ScanIntervalSec)
	o.Variant = differs(full.Variant, def.Variant)
	o.CandleLimit = differs(full.CandleLimit, def.CandleLimit)

	o.EMAFast = differs(full.EMAFast, def.EMAFast)
	o.EMASlow = differs(full.EMASlow, def.EMASlow)
	o.ATRPeriod = differs(full.ATRPeriod, def.ATRPeriod)
	o.RSIPeriod = differs(full.RSIPeriod, def.RSIPeriod)
	o.RSIOverbought = differs(full.RSIOverbought, def.RSIOverbought)
	o.RSIOversold = differs(full.RSIOversold, def.RSIOversold)

	o.VolumeWindow = differs(full.VolumeWindow, def.VolumeWindow)
	o.VolumeMultiplier = differs(full.VolumeMultiplier, def.VolumeMultiplier)
	o.StrongVolumeMultiplier = differs(full.StrongVolumeMultiplier, def.StrongVolumeMultiplier)
	o.ImpulseATR = differs(full.ImpulseATR, def.ImpulseATR)

	o.PivotStrength = differs(full.PivotStrength, def.PivotStrength)
	o.ZoneBuffer = differs(full.ZoneBuffer, def.ZoneBuffer)
	o.ZoneLookback = differs(full.ZoneLookback, def.ZoneLookback)

	o.UseHTF = differs(full.UseHTF, def.UseHTF)
	o.HTFEMAPeriod = differs(full.HTFEMAPeriod, def.HTFEMAPeriod)
	o.UseRSIFilter = differs(full.UseRSIFilter, def.UseRSIFilter)
	o.UseStructureFilter = differs(full.UseStructureFilter, def.UseStructureFilter)

	o.RequireBOS = differs(full.RequireBOS, def.RequireBOS)
	o.RequireFVG = differs(full.RequireFVG, def.RequireFVG)
	o.RequireOB = differs(full.RequireOB, def.RequireOB)
	o.RequireSweep = differs(full.RequireSweep, def.RequireSweep)
	o.RequireDivergence = differs(full.RequireDivergence, def.RequireDivergence)

	o.MaxRiskPct = differs(full.MaxRiskPct, def.MaxRiskPct)
	o.StopBufferATR = differs(full.StopBufferATR, def.StopBufferATR)
	o.TP1RR = differs(full.TP1RR, def.TP1RR)
	o.TP2RR = differs(full.TP2RR, def.TP2RR)
	o.TP3RR = differs(full.TP3RR, def.TP3RR)
	o.DynamicTargets = differs(full.DynamicTargets, def.DynamicTargets)
	o.MinTargetRR = differs(full.MinTargetRR, def.MinTargetRR)

	o.CooldownBars = differs(full.CooldownBars, def.CooldownBars)
	o.MinBarsMargin = differs(full.MinBarsMargin, def.MinBarsMargin)
	o.MinQuality = differs(full.MinQuality, def.MinQuality)
	o.TieBreak = differs(full.TieBreak, def.TieBreak)

	o.MinVolume24h = differs(full.MinVolume24h, def.MinVolume24h)
	o.MaxSymbols = differs(full.MaxSymbols, def.MaxSymbols)
	if !slices.Equal(full.Blacklist, def.Blacklist) {
		bl := slices.Clone(full.Blacklist)
		o.Blacklist = &bl
	}
	return o
}

func apply[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func differs[T comparable](v, def T) *T {
	if v == def {
		return nil
	}
	return &v
}
