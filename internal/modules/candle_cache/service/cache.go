package service

import (
	"container/list"
	"sync"
	"time"

	"market_scanner/internal/helper"
	"market_scanner/internal/models"
)

const DefaultCapacity = 500

type Key struct {
	Symbol    string
	Timeframe string
}

func NewKey(symbol, timeframe string) Key {
	return Key{Symbol: symbol, Timeframe: helper.NormTF(timeframe)}
}

type entry struct {
	key     Key
	table   models.CandleTable
	expires time.Time
}

type Stats struct {
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
}

// Cache: TTL + LRU хранилище таблиц свечей. Сети не касается.
// Таблицы отдаются как есть, вызывающий их не мутирует.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List // front = самый свежий по доступу
	items    map[Key]*list.Element
	now      func() time.Time

	hits   uint64
	misses uint64
}

type Option func(*Cache)

// WithClock: источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[Key]*list.Element, capacity),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) Now() time.Time { return c.now() }

// Get отдаёт таблицу, если она есть и не протухла. Протухшая запись удаляется.
func (c *Cache) Get(symbol, timeframe string) (models.CandleTable, bool) {
	key := NewKey(symbol, timeframe)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return models.CandleTable{}, false
	}
	e := el.Value.(*entry)
	if c.now().After(e.expires) {
		c.removeElement(el)
		c.misses++
		return models.CandleTable{}, false
	}

	c.ll.MoveToFront(el)
	c.hits++
	return e.table, true
}

// Set кладёт таблицу с ttl. Новый ключ при полном кэше вытесняет LRU-запись.
func (c *Cache) Set(symbol, timeframe string, table models.CandleTable, ttl time.Duration) {
	key := NewKey(symbol, timeframe)
	if ttl < 0 {
		ttl = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(ttl)
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.table = table
		e.expires = expires
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.capacity {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.items[key] = c.ll.PushFront(&entry{key: key, table: table, expires: expires})
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		Size:     c.ll.Len(),
		Capacity: c.capacity,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRatio = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
