package service

import (
	"sync"
	"sync/atomic"
	"time"

	"market_scanner/internal/models"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected  func() bool
	lastTickUnix atomic.Int64 // unix seconds

	mu     sync.RWMutex
	report models.CycleReport
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// SetWSSource подключает признак живого WS-потока тикеров.
func (s *State) SetWSSource(fn func() bool) { s.wsConnected = fn }
func (s *State) WSConnected() bool {
	if s.wsConnected == nil {
		return false
	}
	return s.wsConnected()
}

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

// ReportCycle: итог прохода планировщика. Первый проход делает сервис готовым.
func (s *State) ReportCycle(r models.CycleReport) {
	s.mu.Lock()
	s.report = r
	s.mu.Unlock()
	s.TouchTick(r.At)
	s.SetReady(true)
}

func (s *State) LastReport() models.CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
