package service

import "market_scanner/internal/models"

type Bias int

const (
	BiasNone Bias = iota
	BiasBullish
	BiasBearish
)

type Pattern struct {
	Name string
	Bias Bias
}

const (
	pinWickRatio    = 2.0 / 3.0
	pinBodyRatio    = 1.0 / 3.0
	hammerOppWick   = 0.15
	strongBodyRatio = 0.6
)

// detectPattern классифицирует последние две свечи. Порядок проверки:
// поглощение, пин-бар, молот / падающая звезда, сильная свеча.
func detectPattern(prev, last models.Candle) Pattern {
	rng := last.Range()
	if rng <= 0 {
		return Pattern{}
	}
	body := last.Body()

	switch {
	case prev.Bearish() && last.Bullish() &&
		last.Close >= prev.Open && last.Open <= prev.Close && body > prev.Body():
		return Pattern{Name: "bullish_engulfing", Bias: BiasBullish}
	case prev.Bullish() && last.Bearish() &&
		last.Close <= prev.Open && last.Open >= prev.Close && body > prev.Body():
		return Pattern{Name: "bearish_engulfing", Bias: BiasBearish}
	}

	if body <= pinBodyRatio*rng {
		switch {
		case last.LowerWick() >= pinWickRatio*rng:
			return Pattern{Name: "bullish_pin_bar", Bias: BiasBullish}
		case last.UpperWick() >= pinWickRatio*rng:
			return Pattern{Name: "bearish_pin_bar", Bias: BiasBearish}
		}
	}

	if body > 0 {
		switch {
		case last.LowerWick() >= 2*body && last.UpperWick() <= hammerOppWick*rng:
			return Pattern{Name: "hammer", Bias: BiasBullish}
		case last.UpperWick() >= 2*body && last.LowerWick() <= hammerOppWick*rng:
			return Pattern{Name: "shooting_star", Bias: BiasBearish}
		}
	}

	if body >= strongBodyRatio*rng {
		if last.Bullish() {
			return Pattern{Name: "strong_bullish", Bias: BiasBullish}
		}
		return Pattern{Name: "strong_bearish", Bias: BiasBearish}
	}
	return Pattern{}
}

func biasFor(dir models.Direction) Bias {
	if dir == models.Long {
		return BiasBullish
	}
	return BiasBearish
}
