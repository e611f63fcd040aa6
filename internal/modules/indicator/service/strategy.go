package service

import "market_scanner/internal/models"

// Strategy: вариант индикатора: набор триггеров и правила скоринга.
// Общая часть (серии, зоны, паттерны, фильтры, цены) одна на все варианты.
type Strategy interface {
	Variant() models.Variant
	BaseScore() int
	Triggers() []models.TriggerKind
	// ScoresStructure: пункт чек-листа "подтверждение структурой".
	ScoresStructure() bool
	// ScoresGaps: пункт чек-листа "цена внутри FVG/OB".
	ScoresGaps() bool
	StructureFilter(cfg models.ScanConfig) bool
	DynamicTargets(cfg models.ScanConfig) bool
}

type classicStrategy struct{}

func (classicStrategy) Variant() models.Variant { return models.VariantClassic }
func (classicStrategy) BaseScore() int          { return 1 }
func (classicStrategy) Triggers() []models.TriggerKind {
	return []models.TriggerKind{models.TriggerBreakout, models.TriggerRetest}
}
func (classicStrategy) ScoresStructure() bool                      { return false }
func (classicStrategy) ScoresGaps() bool                           { return false }
func (classicStrategy) StructureFilter(cfg models.ScanConfig) bool { return cfg.UseStructureFilter }
func (classicStrategy) DynamicTargets(cfg models.ScanConfig) bool  { return cfg.DynamicTargets }

type zoneSFPStrategy struct{}

func (zoneSFPStrategy) Variant() models.Variant { return models.VariantZoneSFP }
func (zoneSFPStrategy) BaseScore() int          { return 2 }
func (zoneSFPStrategy) Triggers() []models.TriggerKind {
	return []models.TriggerKind{models.TriggerSFP, models.TriggerBounce, models.TriggerBreakout, models.TriggerRetest}
}
func (zoneSFPStrategy) ScoresStructure() bool                      { return true }
func (zoneSFPStrategy) ScoresGaps() bool                           { return false }
func (zoneSFPStrategy) StructureFilter(cfg models.ScanConfig) bool { return cfg.UseStructureFilter }
func (zoneSFPStrategy) DynamicTargets(cfg models.ScanConfig) bool  { return cfg.DynamicTargets }

// smcStrategy: триггеры zone_sfp плюс SMC-бонусы; фильтр структуры и динамические цели всегда включены.
type smcStrategy struct{ zoneSFPStrategy }

func (smcStrategy) Variant() models.Variant                { return models.VariantSMC }
func (smcStrategy) ScoresGaps() bool                       { return true }
func (smcStrategy) StructureFilter(models.ScanConfig) bool { return true }
func (smcStrategy) DynamicTargets(models.ScanConfig) bool  { return true }

var strategies = map[models.Variant]Strategy{
	models.VariantClassic: classicStrategy{},
	models.VariantZoneSFP: zoneSFPStrategy{},
	models.VariantSMC:     smcStrategy{},
}

// StrategyFor возвращает вариант по имени, неизвестное имя: zone_sfp.
func StrategyFor(v models.Variant) Strategy {
	if s, ok := strategies[v]; ok {
		return s
	}
	return zoneSFPStrategy{}
}
