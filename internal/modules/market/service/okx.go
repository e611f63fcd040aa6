package service

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"market_scanner/internal/helper"
	"market_scanner/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

const (
	okxMaxCandles = 300 // строк на один запрос
	okxMaxPages   = 5   // /market/candles хранит около 1440 последних баров
	okxSwapSuffix = "-USDT-SWAP"
)

// OKXClient: публичный REST OKX (USDT perpetual swaps).
type OKXClient struct {
	baseURL string
	http    *http.Client
	guard   *Guard
	stream  *TickerStream
	now     func() time.Time
}

func NewOKXClient(baseURL string, httpClient *http.Client, guard *Guard) *OKXClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &OKXClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		guard:   guard,
		now:     time.Now,
	}
}

// AttachStream: 24h статистика берётся из WS, REST остаётся запасным путём.
func (c *OKXClient) AttachStream(s *TickerStream) { c.stream = s }

type okxEnvelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// CandleRow: OKX data row: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
func (c *OKXClient) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (models.CandleTable, error) {
	if limit <= 0 {
		limit = 100
	}
	bar, err := okxBar(timeframe)
	if err != nil {
		return models.CandleTable{}, err
	}

	// +1 под формирующийся бар, который отбросим. Больше okxMaxCandles: листаем назад через after.
	need := limit + 1
	var rows [][]string
	after := ""
	for page := 0; page < okxMaxPages && len(rows) < need; page++ {
		size := min(need-len(rows), okxMaxCandles)
		q := url.Values{}
		q.Set("instId", symbol)
		q.Set("bar", bar)
		q.Set("limit", strconv.Itoa(size))
		if after != "" {
			q.Set("after", after)
		}

		var r struct {
			okxEnvelope
			Data [][]string `json:"data"`
		}
		if err := c.get(ctx, "candles "+symbol, "/api/v5/market/candles", q, &r); err != nil {
			return models.CandleTable{}, err
		}
		if len(r.Data) == 0 {
			break
		}
		rows = append(rows, r.Data...)
		oldest := r.Data[len(r.Data)-1]
		if len(r.Data) < size || len(oldest) == 0 || oldest[0] == after {
			break
		}
		after = oldest[0]
	}

	candles := c.parseCandles(rows, timeframe)
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return models.CandleTable{
		Symbol:    symbol,
		Timeframe: helper.NormTF(timeframe),
		Candles:   candles,
	}, nil
}

// parseCandles: OKX отдаёт newest-first → разворачиваем, неподтверждённые свечи выкидываем.
func (c *OKXClient) parseCandles(rows [][]string, timeframe string) []models.Candle {
	out := make([]models.Candle, 0, len(rows))
	hasConfirm := false
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			continue
		}
		if len(row) >= 9 {
			hasConfirm = true
			if row[8] != "1" {
				continue
			}
		}

		tsMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		candle := models.Candle{
			OpenTime: time.UnixMilli(tsMs).UTC(),
			Open:     parseFloat(row[1]),
			High:     parseFloat(row[2]),
			Low:      parseFloat(row[3]),
			Close:    parseFloat(row[4]),
			Volume:   parseFloat(row[5]),
		}
		if candle.Close <= 0 || candle.High < candle.Low {
			continue
		}
		if n := len(out); n > 0 && !candle.OpenTime.After(out[n-1].OpenTime) {
			continue
		}
		out = append(out, candle)
	}

	// без флага confirm решаем по времени: бар, который ещё не закрылся, отбрасываем
	if !hasConfirm && len(out) > 0 {
		last := out[len(out)-1]
		if d := helper.TimeframeDuration(timeframe); d > 0 && last.OpenTime.Add(d).After(c.now()) {
			out = out[:len(out)-1]
		}
	}
	return out
}

type okxTicker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	Open24h   string `json:"open24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	Vol24h    string `json:"vol24h"`
	VolCcy24h string `json:"volCcy24h"`
}

func (t okxTicker) stats() models.Stats24h {
	last := parseFloat(t.Last)
	open := parseFloat(t.Open24h)
	volBase := parseFloat(t.VolCcy24h)

	s := models.Stats24h{
		Symbol:      t.InstID,
		Last:        last,
		High:        parseFloat(t.High24h),
		Low:         parseFloat(t.Low24h),
		Volume:      volBase,
		QuoteVolume: volBase * last,
	}
	if open > 0 {
		s.ChangePct = (last - open) / open * 100
	}
	return s
}

// ListSymbols: USDT-perp свопы по убыванию 24h оборота в USDT.
func (c *OKXClient) ListSymbols(ctx context.Context, minVolume float64, blacklist []string, maxCount int) ([]string, error) {
	q := url.Values{}
	q.Set("instType", "SWAP")

	var r struct {
		okxEnvelope
		Data []okxTicker `json:"data"`
	}
	if err := c.get(ctx, "tickers", "/api/v5/market/tickers", q, &r); err != nil {
		return nil, err
	}

	stats := make([]models.Stats24h, 0, len(r.Data))
	for _, t := range r.Data {
		if !strings.HasSuffix(t.InstID, okxSwapSuffix) {
			continue
		}
		s := t.stats()
		if s.Last <= 0 || s.QuoteVolume < minVolume || blacklisted(t.InstID, blacklist) {
			continue
		}
		stats = append(stats, s)
		if c.stream != nil {
			c.stream.put(s)
		}
	}
	return rankByVolume(stats, maxCount), nil
}

func (c *OKXClient) Get24hStats(ctx context.Context, symbol string) (models.Stats24h, bool, error) {
	if c.stream != nil {
		if s, ok := c.stream.Get(symbol); ok {
			return s, true, nil
		}
	}

	q := url.Values{}
	q.Set("instId", symbol)

	var r struct {
		okxEnvelope
		Data []okxTicker `json:"data"`
	}
	if err := c.get(ctx, "ticker "+symbol, "/api/v5/market/ticker", q, &r); err != nil {
		return models.Stats24h{}, false, err
	}
	if len(r.Data) == 0 {
		return models.Stats24h{}, false, nil
	}
	return r.Data[0].stats(), true, nil
}

// get: GET через Guard, разбор ответа в out.
func (c *OKXClient) get(ctx context.Context, op, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	return c.guard.Do(ctx, op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return errors.Wrap(err, "new request")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return errors.Wrap(err, op)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "read body")
		}
		if resp.StatusCode/100 != 2 {
			return &StatusError{
				Code:       resp.StatusCode,
				Body:       string(b),
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}

		if err := sonic.Unmarshal(b, out); err != nil {
			return errors.Wrapf(err, "decode %s", op)
		}
		if env, ok := out.(interface{ envelope() okxEnvelope }); ok {
			e := env.envelope()
			if e.Code != "0" && e.Code != "" {
				// 50011: "Too Many Requests" в теле при 200
				if e.Code == "50011" {
					return errors.Wrapf(ErrRateLimited, "okx code=%s msg=%s", e.Code, e.Msg)
				}
				return errors.Errorf("okx error: code=%s msg=%s", e.Code, e.Msg)
			}
		}
		return nil
	})
}

func (e okxEnvelope) envelope() okxEnvelope { return e }

func rankByVolume(stats []models.Stats24h, maxCount int) []string {
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].QuoteVolume > stats[j].QuoteVolume })
	if maxCount > 0 && len(stats) > maxCount {
		stats = stats[:maxCount]
	}
	out := make([]string, 0, len(stats))
	for _, s := range stats {
		out = append(out, s.Symbol)
	}
	return out
}
