package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market_scanner/internal/helper"
	"market_scanner/internal/models"

	"golang.org/x/sync/singleflight"
)

type FetchFunc func(ctx context.Context) (models.CandleTable, error)

// Loader: cache-aside поверх Cache с одной загрузкой на ключ:
// проверка кэша → вход в общий singleflight → повторная проверка → fetch → Set.
type Loader struct {
	cache *Cache
	group singleflight.Group
	ttl   func(now time.Time, timeframe string, t models.CandleTable) time.Duration

	mu     sync.Mutex
	limits map[Key]int // с каким limit загружена таблица, лежащая в кэше
}

func NewLoader(cache *Cache) *Loader {
	return &Loader{cache: cache, ttl: tableTTL, limits: make(map[Key]int)}
}

func tableTTL(now time.Time, timeframe string, t models.CandleTable) time.Duration {
	var last time.Time
	if n := len(t.Candles); n > 0 {
		last = t.Candles[n-1].OpenTime
	}
	return helper.TableTTL(now, timeframe, last)
}

func (l *Loader) Cache() *Cache { return l.cache }

// Load возвращает таблицу не короче limit баров и признак попадания в кэш.
// Короткая запись в кэше считается промахом, если её загружали с меньшим limit:
// если биржа просто отдала меньше, чем просили, перезапрос ничего не даст.
// Ошибка или отмена fetch ничего не кладёт в кэш.
func (l *Loader) Load(ctx context.Context, symbol, timeframe string, limit int, fetch FetchFunc) (models.CandleTable, bool, error) {
	if t, ok := l.cached(symbol, timeframe, limit); ok {
		return t, true, nil
	}

	key := NewKey(symbol, timeframe)
	ch := l.group.DoChan(fmt.Sprintf("%s|%s|%d", key.Symbol, key.Timeframe, limit), func() (any, error) {
		if t, ok := l.cached(symbol, timeframe, limit); ok {
			return t, nil
		}
		t, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.cache.Set(symbol, timeframe, t, l.ttl(l.cache.Now(), key.Timeframe, t))
		l.mu.Lock()
		l.limits[key] = limit
		l.mu.Unlock()
		return t, nil
	})

	select {
	case <-ctx.Done():
		return models.CandleTable{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.CandleTable{}, false, fmt.Errorf("load %s %s: %w", symbol, timeframe, res.Err)
		}
		return res.Val.(models.CandleTable), false, nil
	}
}

func (l *Loader) cached(symbol, timeframe string, limit int) (models.CandleTable, bool) {
	t, ok := l.cache.Get(symbol, timeframe)
	if !ok {
		return models.CandleTable{}, false
	}
	if len(t.Candles) >= limit {
		return t, true
	}
	l.mu.Lock()
	loadedWith := l.limits[NewKey(symbol, timeframe)]
	l.mu.Unlock()
	return t, loadedWith >= limit
}
