package service

import (
	"math"

	"market_scanner/internal/models"
)

// emaSeries: EMA с alpha = 2/(n+1), затравка: первое значение.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	e := newEMA(period)
	for i, v := range values {
		e.Update(v)
		out[i] = e.Value()
	}
	return out
}

// atrSeries: true range, сглаженный по Уайлдеру.
func atrSeries(c []models.Candle, period int) []float64 {
	out := make([]float64, len(c))
	e := newWilder(period)
	for i := range c {
		tr := c[i].High - c[i].Low
		if i > 0 {
			pc := c[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c[i].High-pc), math.Abs(c[i].Low-pc)))
		}
		e.Update(tr)
		out[i] = e.Value()
	}
	return out
}

// rsiSeries: средние приросты/потери по Уайлдеру, RSI = 100 - 100/(1+RS).
// Без потерь RSI = 100, если нет ни приростов, ни потерь: 50.
func rsiSeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	out[0] = 50

	gain, loss := newWilder(period), newWilder(period)
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain.Update(math.Max(d, 0))
		loss.Update(math.Max(-d, 0))
		out[i] = rsiValue(gain.Value(), loss.Value())
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// volumeMA: средний объём window баров перед баром i (сам бар не входит).
func volumeMA(c []models.Candle, i, window int) float64 {
	from := i - window
	if from < 0 {
		from = 0
	}
	if i-from <= 0 {
		return 0
	}
	var sum float64
	for j := from; j < i; j++ {
		sum += c[j].Volume
	}
	return sum / float64(i-from)
}

func closes(c []models.Candle) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		out[i] = c[i].Close
	}
	return out
}

// validCandles: цены конечны и положительны, high >= low.
func validCandles(c []models.Candle) bool {
	for i := range c {
		k := c[i]
		for _, v := range []float64{k.Open, k.High, k.Low, k.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return false
			}
		}
		if math.IsNaN(k.Volume) || math.IsInf(k.Volume, 0) || k.Volume < 0 || k.High < k.Low {
			return false
		}
	}
	return true
}
