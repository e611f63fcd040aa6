package service

import (
	"fmt"

	"market_scanner/internal/models"
)

const (
	divergenceLookback = 20
	obLookback         = 30
)

// Gap: FVG или order block: диапазон цены и бар, на котором он образовался.
type Gap struct {
	Low   float64
	High  float64
	Index int
	Bias  Bias
}

// Structure: результат SMC-детекторов на последнем баре.
type Structure struct {
	BOS       Bias // пробой последнего подтверждённого пивота
	ChoCH     bool // пробой против локального тренда
	Sweep     Bias
	Diverge   Bias
	InFVG     Bias
	AtOB      Bias
	FVGs      []Gap   // незаполненные
	OBs       []Gap   // неотработанные
	BOSLevel  float64 // пробитый пивот
	SweptZone float64 // цена зоны, с которой сняли ликвидность
}

func (s Structure) Label() string {
	switch {
	case s.BOS != BiasNone && s.ChoCH:
		return "ChoCH"
	case s.BOS != BiasNone:
		return "BOS"
	case s.Sweep != BiasNone:
		return "sweep"
	case s.Diverge != BiasNone:
		return "divergence"
	}
	return ""
}

// Confirms описывает подтверждение структурой в сторону b, "" если его нет.
func (s Structure) Confirms(b Bias) string {
	side := "выше"
	if b == BiasBearish {
		side = "ниже"
	}
	switch {
	case s.BOS == b && s.ChoCH:
		return fmt.Sprintf("ChoCH %s %.6g", side, s.BOSLevel)
	case s.BOS == b:
		return fmt.Sprintf("BOS %s %.6g", side, s.BOSLevel)
	case s.Sweep == b:
		return fmt.Sprintf("снятие ликвидности у %.6g", s.SweptZone)
	case s.Diverge == b && b == BiasBullish:
		return "бычья дивергенция RSI"
	case s.Diverge == b && b == BiasBearish:
		return "медвежья дивергенция RSI"
	}
	return ""
}

// detectStructure гоняет все детекторы по окну [start, n).
func detectStructure(s *snapshot) Structure {
	var st Structure
	st.BOS, st.BOSLevel = breakOfStructure(s)
	if st.BOS != BiasNone {
		st.ChoCH = (st.BOS == BiasBullish && s.trend == TrendBearish) ||
			(st.BOS == BiasBearish && s.trend == TrendBullish)
	}
	st.FVGs = fairValueGaps(s.c, s.start)
	st.OBs = orderBlocks(s)
	st.InFVG = touching(st.FVGs, s.last)
	st.AtOB = nearOB(st.OBs, s.last, s.tol)
	st.Sweep, st.SweptZone = liquiditySweep(s)
	st.Diverge = rsiDivergence(s)
	return st
}

// breakOfStructure: закрытие за последним подтверждённым пивотом.
// Если пробиты обе стороны: берётся более свежий пивот.
func breakOfStructure(s *snapshot) (Bias, float64) {
	var hi, lo *pivot
	if len(s.pivotHighs) > 0 {
		hi = &s.pivotHighs[len(s.pivotHighs)-1]
	}
	if len(s.pivotLows) > 0 {
		lo = &s.pivotLows[len(s.pivotLows)-1]
	}
	up := hi != nil && s.last.Close > hi.price
	down := lo != nil && s.last.Close < lo.price

	switch {
	case up && down:
		if hi.index >= lo.index {
			return BiasBullish, hi.price
		}
		return BiasBearish, lo.price
	case up:
		return BiasBullish, hi.price
	case down:
		return BiasBearish, lo.price
	}
	return BiasNone, 0
}

// fairValueGaps: бычий FVG: high[i-2] < low[i], медвежий: low[i-2] > high[i].
// Гэп считается заполненным, если последующий бар (кроме текущего) прошёл его насквозь.
func fairValueGaps(c []models.Candle, start int) []Gap {
	n := len(c)
	var out []Gap
	for i := max(start+2, 2); i < n-1; i++ {
		a, b := c[i-2], c[i]
		switch {
		case a.High < b.Low:
			g := Gap{Low: a.High, High: b.Low, Index: i, Bias: BiasBullish}
			filled := false
			for j := i + 1; j < n-1; j++ {
				if c[j].Low <= g.Low {
					filled = true
					break
				}
			}
			if !filled {
				out = append(out, g)
			}
		case a.Low > b.High:
			g := Gap{Low: b.High, High: a.Low, Index: i, Bias: BiasBearish}
			filled := false
			for j := i + 1; j < n-1; j++ {
				if c[j].High >= g.High {
					filled = true
					break
				}
			}
			if !filled {
				out = append(out, g)
			}
		}
	}
	return out
}

// orderBlocks: противоположная свеча, за которой идёт импульс (тело >= ImpulseATR*ATR),
// закрывшийся за её экстремумом. Блок отработан, если позже (до текущего бара)
// закрытие ушло за его дальний край: low для бычьего, high для медвежьего.
func orderBlocks(s *snapshot) []Gap {
	c := s.c
	n := len(c)
	from := max(s.start, n-1-obLookback)
	var out []Gap
	for j := from; j < n-2; j++ {
		base, imp := c[j], c[j+1]
		if imp.Body() < s.cfg.ImpulseATR*s.atr[j+1] {
			continue
		}
		var ob Gap
		switch {
		case base.Bearish() && imp.Bullish() && imp.Close > base.High:
			ob = Gap{Low: base.Low, High: base.High, Index: j, Bias: BiasBullish}
		case base.Bullish() && imp.Bearish() && imp.Close < base.Low:
			ob = Gap{Low: base.Low, High: base.High, Index: j, Bias: BiasBearish}
		default:
			continue
		}
		if !mitigated(c, ob) {
			out = append(out, ob)
		}
	}
	return out
}

func mitigated(c []models.Candle, ob Gap) bool {
	for k := ob.Index + 2; k < len(c)-1; k++ {
		if (ob.Bias == BiasBullish && c[k].Close < ob.Low) ||
			(ob.Bias == BiasBearish && c[k].Close > ob.High) {
			return true
		}
	}
	return false
}

// touching: последний бар заходит в незаполненный гэп своей тенью.
func touching(gaps []Gap, last models.Candle) Bias {
	for i := len(gaps) - 1; i >= 0; i-- {
		g := gaps[i]
		switch g.Bias {
		case BiasBullish:
			if last.Low <= g.High && last.Low >= g.Low && last.Close >= g.Low {
				return BiasBullish
			}
		case BiasBearish:
			if last.High >= g.Low && last.High <= g.High && last.Close <= g.High {
				return BiasBearish
			}
		}
	}
	return BiasNone
}

// nearOB: цена вернулась в диапазон блока (с допуском tol).
func nearOB(obs []Gap, last models.Candle, tol float64) Bias {
	for i := len(obs) - 1; i >= 0; i-- {
		ob := obs[i]
		switch ob.Bias {
		case BiasBullish:
			if last.Low <= ob.High+tol && last.Close >= ob.Low-tol {
				return BiasBullish
			}
		case BiasBearish:
			if last.High >= ob.Low-tol && last.Close <= ob.High+tol {
				return BiasBearish
			}
		}
	}
	return BiasNone
}

// liquiditySweep: тень прокалывает зону, закрытие возвращается на исходную сторону.
func liquiditySweep(s *snapshot) (Bias, float64) {
	for _, z := range byProximity(s.supports, s.last.Close) {
		if s.last.Low < z.Low && s.last.Close > z.Price {
			return BiasBullish, z.Price
		}
	}
	for _, z := range byProximity(s.resistances, s.last.Close) {
		if s.last.High > z.High && s.last.Close < z.Price {
			return BiasBearish, z.Price
		}
	}
	return BiasNone, 0
}

// rsiDivergence: новый минимум (максимум) цены за divergenceLookback баров при более
// высоком (низком) RSI, чем на прошлом экстремуме.
func rsiDivergence(s *snapshot) Bias {
	n := len(s.c)
	from := max(s.start, n-1-divergenceLookback)
	if n-1-from < 2 {
		return BiasNone
	}

	lowIdx, highIdx := from, from
	for i := from; i < n-1; i++ {
		if s.c[i].Low < s.c[lowIdx].Low {
			lowIdx = i
		}
		if s.c[i].High > s.c[highIdx].High {
			highIdx = i
		}
	}

	last := n - 1
	if s.c[last].Low < s.c[lowIdx].Low && s.rsi[last] > s.rsi[lowIdx] {
		return BiasBullish
	}
	if s.c[last].High > s.c[highIdx].High && s.rsi[last] < s.rsi[highIdx] {
		return BiasBearish
	}
	return BiasNone
}
