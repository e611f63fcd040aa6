package helper

import (
	"strings"
	"time"
)

// NormTF приводит таймфрейм к виду "1m", "15m", "1h", "4h", "1d".
func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h", "60":
		return "1h"
	case "240m", "4h", "240":
		return "4h"
	case "1440m", "24h", "1d", "d":
		return "1d"
	case "1", "1min":
		return "1m"
	case "5", "5min":
		return "5m"
	case "15", "15min":
		return "15m"
	default:
		return s
	}
}

// TimeframeDuration: длительность бара, 0 для неизвестного таймфрейма.
func TimeframeDuration(tf string) time.Duration {
	switch NormTF(tf) {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "10m":
		return 10 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// NextBarClose: ближайшее закрытие бара по сетке таймфрейма (UTC).
func NextBarClose(now time.Time, tf string) time.Time {
	d := TimeframeDuration(tf)
	if d <= 0 {
		return now
	}
	return now.UTC().Truncate(d).Add(d)
}

const (
	minCacheTTL     = 5 * time.Second
	unknownCacheTTL = time.Minute
)

// CacheTTL: сколько держать таблицу без баров: до ближайшего закрытия по сетке,
// не больше длины бара.
func CacheTTL(now time.Time, tf string) time.Duration {
	d := TimeframeDuration(tf)
	if d <= 0 {
		return unknownCacheTTL
	}
	return min(NextBarClose(now, tf).Sub(now), d)
}

// TableTTL: таблица с последним баром lastOpen живёт до закрытия следующего за ним бара,
// тогда у рынка появляется бар, которого в таблице нет. Считается от данных, а не от
// момента ответа. Если этот момент уже прошёл (ответ опоздал, бар ещё не подтверждён),
// держим minCacheTTL.
func TableTTL(now time.Time, tf string, lastOpen time.Time) time.Duration {
	d := TimeframeDuration(tf)
	if d <= 0 {
		return unknownCacheTTL
	}
	if lastOpen.IsZero() {
		return CacheTTL(now, tf)
	}
	ttl := lastOpen.Add(2 * d).Sub(now)
	if ttl <= 0 {
		return minCacheTTL
	}
	return min(ttl, d)
}
