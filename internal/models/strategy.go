package models

import "time"

// Variant: вариант индикатора.
type Variant string

const (
	VariantClassic Variant = "classic"
	VariantZoneSFP Variant = "zone_sfp"
	VariantSMC     Variant = "smc"
)

func (v Variant) Valid() bool {
	switch v {
	case VariantClassic, VariantZoneSFP, VariantSMC:
		return true
	}
	return false
}

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	// Both: задание сканирует обе стороны одной конфигурацией.
	Both Direction = "BOTH"
)

func (d Direction) Allows(other Direction) bool {
	return d == Both || d == other
}

// TieBreak: политика, когда в одном вызове сработали и LONG, и SHORT.
type TieBreak string

const (
	// TieBreakReference: RSI >= 50 гасит LONG, иначе гасится SHORT.
	TieBreakReference TieBreak = "reference"
	// TieBreakMomentum: RSI >= 50 гасит SHORT, иначе гасится LONG.
	TieBreakMomentum TieBreak = "momentum"
)

type TriggerKind string

const (
	TriggerSFP      TriggerKind = "sfp"
	TriggerBounce   TriggerKind = "bounce"
	TriggerBreakout TriggerKind = "breakout"
	TriggerRetest   TriggerKind = "retest"
)

type ZoneKind string

const (
	ZoneSupport    ZoneKind = "support"
	ZoneResistance ZoneKind = "resistance"
)

// Zone: кластер пивотов. Price: среднее, Low/High: крайние пивоты кластера.
type Zone struct {
	Kind      ZoneKind `json:"kind"`
	Price     float64  `json:"price"`
	Low       float64  `json:"low"`
	High      float64  `json:"high"`
	Hits      int      `json:"hits"`
	LastIndex int      `json:"last_index"`
}

// SignalResult: найденная торговая идея. После создания не меняется.
type SignalResult struct {
	Symbol    string      `json:"symbol"`
	Timeframe string      `json:"timeframe"`
	Direction Direction   `json:"direction"`
	Variant   Variant     `json:"variant"`
	Trigger   TriggerKind `json:"trigger"`

	Entry   float64 `json:"entry"`
	Stop    float64 `json:"stop"`
	TP1     float64 `json:"tp1"`
	TP2     float64 `json:"tp2"`
	TP3     float64 `json:"tp3"`
	RiskPct float64 `json:"risk_pct"`

	Quality int      `json:"quality"`
	Reasons []string `json:"reasons"`

	RSI            float64 `json:"rsi"`
	VolumeRatio    float64 `json:"volume_ratio"`
	Pattern        string  `json:"pattern,omitempty"`
	Structure      string  `json:"structure,omitempty"`
	CounterTrend   bool    `json:"counter_trend"`
	Level          float64 `json:"level"`
	LevelHits      int     `json:"level_hits"`
	DynamicTargets bool    `json:"dynamic_targets"`

	// Market: суточная статистика на момент сигнала, nil если биржа её не отдала.
	Market *Stats24h `json:"market,omitempty"`

	BarTime time.Time `json:"bar_time"`
}
