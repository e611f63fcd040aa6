package models

import (
	"slices"
	"time"
)

// ScanConfig: итоговые параметры одного задания сканирования.
// Значение неизменяемое: собирается раз за проход планировщика.
type ScanConfig struct {
	Timeframe       string  `json:"timeframe" yaml:"timeframe" mapstructure:"timeframe"`
	HTFTimeframe    string  `json:"htf_timeframe" yaml:"htf_timeframe" mapstructure:"htf_timeframe"`
	ScanIntervalSec int     `json:"scan_interval_sec" yaml:"scan_interval_sec" mapstructure:"scan_interval_sec"`
	Variant         Variant `json:"variant" yaml:"variant" mapstructure:"variant"`
	CandleLimit     int     `json:"candle_limit" yaml:"candle_limit" mapstructure:"candle_limit"`

	EMAFast       int     `json:"ema_fast" yaml:"ema_fast" mapstructure:"ema_fast"`
	EMASlow       int     `json:"ema_slow" yaml:"ema_slow" mapstructure:"ema_slow"`
	ATRPeriod     int     `json:"atr_period" yaml:"atr_period" mapstructure:"atr_period"`
	RSIPeriod     int     `json:"rsi_period" yaml:"rsi_period" mapstructure:"rsi_period"`
	RSIOverbought float64 `json:"rsi_overbought" yaml:"rsi_overbought" mapstructure:"rsi_overbought"`
	RSIOversold   float64 `json:"rsi_oversold" yaml:"rsi_oversold" mapstructure:"rsi_oversold"`

	VolumeWindow           int     `json:"volume_window" yaml:"volume_window" mapstructure:"volume_window"`
	VolumeMultiplier       float64 `json:"volume_multiplier" yaml:"volume_multiplier" mapstructure:"volume_multiplier"`
	StrongVolumeMultiplier float64 `json:"strong_volume_multiplier" yaml:"strong_volume_multiplier" mapstructure:"strong_volume_multiplier"`
	ImpulseATR             float64 `json:"impulse_atr" yaml:"impulse_atr" mapstructure:"impulse_atr"`

	PivotStrength int     `json:"pivot_strength" yaml:"pivot_strength" mapstructure:"pivot_strength"`
	ZoneBuffer    float64 `json:"zone_buffer" yaml:"zone_buffer" mapstructure:"zone_buffer"` // доля ATR
	ZoneLookback  int     `json:"zone_lookback" yaml:"zone_lookback" mapstructure:"zone_lookback"`

	UseHTF       bool `json:"use_htf" yaml:"use_htf" mapstructure:"use_htf"`
	HTFEMAPeriod int  `json:"htf_ema_period" yaml:"htf_ema_period" mapstructure:"htf_ema_period"`

	UseRSIFilter       bool `json:"use_rsi_filter" yaml:"use_rsi_filter" mapstructure:"use_rsi_filter"`
	UseStructureFilter bool `json:"use_structure_filter" yaml:"use_structure_filter" mapstructure:"use_structure_filter"`

	// обязательные SMC-признаки
	RequireBOS        bool `json:"require_bos" yaml:"require_bos" mapstructure:"require_bos"`
	RequireFVG        bool `json:"require_fvg" yaml:"require_fvg" mapstructure:"require_fvg"`
	RequireOB         bool `json:"require_ob" yaml:"require_ob" mapstructure:"require_ob"`
	RequireSweep      bool `json:"require_sweep" yaml:"require_sweep" mapstructure:"require_sweep"`
	RequireDivergence bool `json:"require_divergence" yaml:"require_divergence" mapstructure:"require_divergence"`

	MaxRiskPct     float64 `json:"max_risk_pct" yaml:"max_risk_pct" mapstructure:"max_risk_pct"`
	StopBufferATR  float64 `json:"stop_buffer_atr" yaml:"stop_buffer_atr" mapstructure:"stop_buffer_atr"`
	TP1RR          float64 `json:"tp1_rr" yaml:"tp1_rr" mapstructure:"tp1_rr"`
	TP2RR          float64 `json:"tp2_rr" yaml:"tp2_rr" mapstructure:"tp2_rr"`
	TP3RR          float64 `json:"tp3_rr" yaml:"tp3_rr" mapstructure:"tp3_rr"`
	DynamicTargets bool    `json:"dynamic_targets" yaml:"dynamic_targets" mapstructure:"dynamic_targets"`
	MinTargetRR    float64 `json:"min_target_rr" yaml:"min_target_rr" mapstructure:"min_target_rr"`

	CooldownBars  int      `json:"cooldown_bars" yaml:"cooldown_bars" mapstructure:"cooldown_bars"`
	MinBarsMargin int      `json:"min_bars_margin" yaml:"min_bars_margin" mapstructure:"min_bars_margin"`
	MinQuality    int      `json:"min_quality" yaml:"min_quality" mapstructure:"min_quality"`
	TieBreak      TieBreak `json:"tie_break" yaml:"tie_break" mapstructure:"tie_break"`

	// вселенная символов
	MinVolume24h float64  `json:"min_volume_24h" yaml:"min_volume_24h" mapstructure:"min_volume_24h"`
	Blacklist    []string `json:"blacklist" yaml:"blacklist" mapstructure:"blacklist"`
	MaxSymbols   int      `json:"max_symbols" yaml:"max_symbols" mapstructure:"max_symbols"`
}

func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Timeframe:       "1h",
		HTFTimeframe:    "4h",
		ScanIntervalSec: 300,
		Variant:         VariantZoneSFP,
		CandleLimit:     200,

		EMAFast:       21,
		EMASlow:       50,
		ATRPeriod:     14,
		RSIPeriod:     14,
		RSIOverbought: 70,
		RSIOversold:   30,

		VolumeWindow:           20,
		VolumeMultiplier:       1.3,
		StrongVolumeMultiplier: 2.0,
		ImpulseATR:             0.8,

		PivotStrength: 3,
		ZoneBuffer:    0.5,
		ZoneLookback:  100,

		UseHTF:       true,
		HTFEMAPeriod: 50,

		UseRSIFilter:       true,
		UseStructureFilter: false,

		MaxRiskPct:    2.0,
		StopBufferATR: 0.3,
		TP1RR:         1.0,
		TP2RR:         2.0,
		TP3RR:         3.0,
		MinTargetRR:   1.0,

		CooldownBars:  5,
		MinBarsMargin: 10,
		MinQuality:    1,
		TieBreak:      TieBreakReference,

		MinVolume24h: 5_000_000,
		MaxSymbols:   50,
	}
}

func (c ScanConfig) Interval() time.Duration {
	return time.Duration(c.ScanIntervalSec) * time.Second
}

// MinBars: сколько закрытых баров нужно для анализа.
func (c ScanConfig) MinBars() int {
	need := c.EMASlow
	need = max(need, c.EMAFast)
	need = max(need, c.RSIPeriod+1)
	need = max(need, c.ATRPeriod+1)
	need = max(need, c.VolumeWindow+1)
	need = max(need, 2*c.PivotStrength+3)
	return need + c.MinBarsMargin
}

// Normalized подставляет дефолты вместо невалидных значений.
// Кривой конфиг не должен ронять скан.
func (c ScanConfig) Normalized() ScanConfig {
	def := DefaultScanConfig()
	out := c
	out.Blacklist = slices.Clone(c.Blacklist)

	if out.Timeframe == "" {
		out.Timeframe = def.Timeframe
	}
	if out.HTFTimeframe == "" {
		out.HTFTimeframe = def.HTFTimeframe
	}
	if !out.Variant.Valid() {
		out.Variant = def.Variant
	}
	if out.TieBreak != TieBreakReference && out.TieBreak != TieBreakMomentum {
		out.TieBreak = def.TieBreak
	}

	positiveInt(&out.ScanIntervalSec, def.ScanIntervalSec)
	positiveInt(&out.CandleLimit, def.CandleLimit)
	positiveInt(&out.EMAFast, def.EMAFast)
	positiveInt(&out.EMASlow, def.EMASlow)
	positiveInt(&out.ATRPeriod, def.ATRPeriod)
	positiveInt(&out.RSIPeriod, def.RSIPeriod)
	positiveInt(&out.VolumeWindow, def.VolumeWindow)
	positiveInt(&out.PivotStrength, def.PivotStrength)
	positiveInt(&out.ZoneLookback, def.ZoneLookback)
	positiveInt(&out.HTFEMAPeriod, def.HTFEMAPeriod)
	positiveInt(&out.MaxSymbols, def.MaxSymbols)

	positiveFloat(&out.RSIOverbought, def.RSIOverbought)
	positiveFloat(&out.RSIOversold, def.RSIOversold)
	positiveFloat(&out.VolumeMultiplier, def.VolumeMultiplier)
	positiveFloat(&out.StrongVolumeMultiplier, def.StrongVolumeMultiplier)
	positiveFloat(&out.ZoneBuffer, def.ZoneBuffer)
	positiveFloat(&out.MaxRiskPct, def.MaxRiskPct)
	positiveFloat(&out.TP1RR, def.TP1RR)
	positiveFloat(&out.TP2RR, def.TP2RR)
	positiveFloat(&out.TP3RR, def.TP3RR)

	if out.ImpulseATR < 0 {
		out.ImpulseATR = def.ImpulseATR
	}
	if out.StopBufferATR < 0 {
		out.StopBufferATR = def.StopBufferATR
	}
	if out.MinTargetRR < 0 {
		out.MinTargetRR = def.MinTargetRR
	}
	if out.CooldownBars < 0 {
		out.CooldownBars = 0
	}
	if out.MinBarsMargin < 0 {
		out.MinBarsMargin = 0
	}
	if out.MinQuality < 1 {
		out.MinQuality = 1
	}
	if out.MaxRiskPct >= 100 {
		out.MaxRiskPct = def.MaxRiskPct
	}
	if out.CandleLimit < out.MinBars() {
		out.CandleLimit = out.MinBars()
	}
	return out
}

func positiveInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func positiveFloat(v *float64, def float64) {
	if *v <= 0 {
		*v = def
	}
}
