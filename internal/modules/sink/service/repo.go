package service

import (
	"context"
	"fmt"
	"sync"

	"market_scanner/internal/models"
	"market_scanner/pkg/db"

	"github.com/bytedance/sonic"
	goredis "github.com/redis/go-redis/v9"
)

const queryInsertTrade = `INSERT INTO trades (id, chatid, symbol, timeframe, direction, entry, stop, tp1, tp2, tp3, quality, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// PgTrades: сделки в Postgres, полный сигнал в payload JSONB.
type PgTrades struct {
	db db.TxManager
}

func NewPgTrades(tx db.TxManager) *PgTrades {
	return &PgTrades{db: tx}
}

func (r *PgTrades) Insert(ctx context.Context, t models.Trade) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Trades.Insert: %w", err)
		}
	}()

	payload, err := sonic.Marshal(t)
	if err != nil {
		return err
	}
	s := t.Signal
	return r.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, queryInsertTrade,
			t.ID, t.UserID, s.Symbol, s.Timeframe, string(s.Direction),
			s.Entry, s.Stop, s.TP1, s.TP2, s.TP3, s.Quality, payload, t.CreatedAt)
		return err
	})
}

// MemoryTrades: последние сделки в памяти, когда базы нет.
type MemoryTrades struct {
	limit int

	mu     sync.Mutex
	trades []models.Trade
}

func NewMemoryTrades(limit int) *MemoryTrades {
	return &MemoryTrades{limit: limit}
}

func (r *MemoryTrades) Insert(_ context.Context, t models.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trades = append(r.trades, t)
	if r.limit > 0 && len(r.trades) > r.limit {
		r.trades = r.trades[len(r.trades)-r.limit:]
	}
	return nil
}

func (r *MemoryTrades) List() []models.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Trade(nil), r.trades...)
}

// RedisPublisher: fan-out сигналов во внешний канал.
type RedisPublisher struct {
	client *goredis.Client
}

func NewRedisPublisher(client *goredis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}
