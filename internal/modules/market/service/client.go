package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"market_scanner/internal/models"

	"github.com/pkg/errors"
)

// Client: источник рыночных данных. Все таблицы свечей отдаются без формирующегося бара.
type Client interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (models.CandleTable, error)
	ListSymbols(ctx context.Context, minVolume float64, blacklist []string, maxCount int) ([]string, error)
	Get24hStats(ctx context.Context, symbol string) (models.Stats24h, bool, error)
}

var (
	ErrRateLimited = errors.New("upstream rate limited")
	ErrUnsupported = errors.New("unsupported timeframe")
)

// StatusError: не-2xx ответ апстрима.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("http %d: %s", e.Code, body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.Code == http.StatusTooManyRequests
}

// IsRetryable: 429, 5xx и таймауты.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

func retryAfterOf(err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// blacklisted: точное имя инструмента или базовая монета ("LUNA" для "LUNA-USDT-SWAP").
func blacklisted(symbol string, blacklist []string) bool {
	base := symbol
	if i := strings.IndexByte(symbol, '-'); i > 0 {
		base = symbol[:i]
	} else if strings.HasSuffix(symbol, "USDT") {
		base = strings.TrimSuffix(symbol, "USDT")
	}
	for _, b := range blacklist {
		b = strings.TrimSpace(b)
		if strings.EqualFold(b, symbol) || strings.EqualFold(b, base) {
			return true
		}
	}
	return false
}
