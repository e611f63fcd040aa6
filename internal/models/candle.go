package models

import "time"

// Candle закрытый бар OHLCV.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

func (c Candle) Range() float64 { return c.High - c.Low }

func (c Candle) Bullish() bool { return c.Close > c.Open }
func (c Candle) Bearish() bool { return c.Close < c.Open }

// UpperWick / LowerWick: тени свечи.
func (c Candle) UpperWick() float64 {
	top := c.Open
	if c.Close > top {
		top = c.Close
	}
	return c.High - top
}

func (c Candle) LowerWick() float64 {
	bottom := c.Open
	if c.Close < bottom {
		bottom = c.Close
	}
	return bottom - c.Low
}

// CandleTable: последовательность закрытых свечей по (symbol, timeframe),
// OpenTime строго возрастает, формирующийся бар уже отброшен источником.
type CandleTable struct {
	Symbol    string   `json:"symbol"`
	Timeframe string   `json:"timeframe"`
	Candles   []Candle `json:"candles"`
}

func (t CandleTable) Len() int { return len(t.Candles) }

// Last возвращает последний закрытый бар.
func (t CandleTable) Last() (Candle, bool) {
	if len(t.Candles) == 0 {
		return Candle{}, false
	}
	return t.Candles[len(t.Candles)-1], true
}

// Stats24h: суточная статистика инструмента.
type Stats24h struct {
	Symbol      string  `json:"symbol"`
	ChangePct   float64 `json:"change_pct"`
	Volume      float64 `json:"volume"`
	QuoteVolume float64 `json:"quote_volume"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Last        float64 `json:"last"`
}
