package service

import (
	"strconv"
	"strings"
	"time"

	"market_scanner/internal/helper"

	"github.com/pkg/errors"
)

func okxBar(tf string) (string, error) {
	switch helper.NormTF(tf) {
	case "1m", "3m", "5m", "15m", "30m":
		return helper.NormTF(tf), nil
	case "1h":
		return "1H", nil
	case "2h":
		return "2H", nil
	case "4h":
		return "4H", nil
	case "6h":
		return "6Hutc", nil
	case "12h":
		return "12Hutc", nil
	case "1d":
		return "1Dutc", nil
	case "1w":
		return "1Wutc", nil
	}
	return "", errors.Wrapf(ErrUnsupported, "okx bar %q", tf)
}

func binanceInterval(tf string) (string, error) {
	switch n := helper.NormTF(tf); n {
	case "1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "12h", "1d", "1w":
		return n, nil
	}
	return "", errors.Wrapf(ErrUnsupported, "binance interval %q", tf)
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return 0
}
