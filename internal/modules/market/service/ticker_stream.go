package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"market_scanner/internal/models"
	"market_scanner/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	tickerMaxAge   = 2 * time.Minute
	wsPingInterval = 20 * time.Second
	wsBatchSize    = 100
)

type tickerEntry struct {
	stats models.Stats24h
	at    time.Time
}

// TickerStream держит свежую 24h статистику по OKX каналу tickers.
type TickerStream struct {
	url    string
	dialer *websocket.Dialer
	now    func() time.Time

	mu    sync.RWMutex
	stats map[string]tickerEntry

	connected atomic.Bool
}

func NewTickerStream(url string) *TickerStream {
	return &TickerStream{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		now:    time.Now,
		stats:  make(map[string]tickerEntry),
	}
}

func (s *TickerStream) Connected() bool { return s.connected.Load() }

// Get: статистика, если она не старше tickerMaxAge.
func (s *TickerStream) Get(symbol string) (models.Stats24h, bool) {
	s.mu.RLock()
	e, ok := s.stats[symbol]
	s.mu.RUnlock()
	if !ok || s.now().Sub(e.at) > tickerMaxAge {
		return models.Stats24h{}, false
	}
	return e.stats, true
}

func (s *TickerStream) put(st models.Stats24h) {
	s.mu.Lock()
	s.stats[st.Symbol] = tickerEntry{stats: st, at: s.now()}
	s.mu.Unlock()
}

// Run: цикл переподключений, возвращается по отмене ctx.
func (s *TickerStream) Run(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}

	args := make([]map[string]string, 0, len(symbols))
	for _, id := range symbols {
		args = append(args, map[string]string{"channel": "tickers", "instId": id})
	}

	for {
		if err := s.session(ctx, args); err != nil && ctx.Err() == nil {
			logger.Warn("[WS] tickers: %v", err)
		}
		s.connected.Store(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *TickerStream) session(ctx context.Context, args []map[string]string) error {
	logger.Info("[WS] tickers connect, symbols=%d", len(args))
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// OKX ограничивает размер одного subscribe: шлём пачками
	for i := 0; i < len(args); i += wsBatchSize {
		end := min(i+wsBatchSize, len(args))
		if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args[i:end]}); err != nil {
			return err
		}
	}
	s.connected.Store(true)

	var writeMu sync.Mutex
	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(wsPingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				writeMu.Lock()
				_ = conn.Close()
				writeMu.Unlock()
				return
			case <-done:
				return
			case <-t.C:
				// keepalive: иначе OKX рвёт соединение с 4004
				writeMu.Lock()
				_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				writeMu.Unlock()
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handle(msg)
	}
}

func (s *TickerStream) handle(msg []byte) {
	if string(msg) == "pong" {
		return
	}
	var frame struct {
		Arg struct {
			Channel string `json:"channel"`
		} `json:"arg"`
		Data []okxTicker `json:"data"`
	}
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		return
	}
	if frame.Arg.Channel != "tickers" {
		return
	}
	for _, t := range frame.Data {
		if t.InstID == "" {
			continue
		}
		s.put(t.stats())
	}
}
