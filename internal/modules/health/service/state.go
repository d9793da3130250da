package service

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	cycles        atomic.Int64
	lastCycleUnix atomic.Int64 // unix seconds

	mu     sync.RWMutex
	cursor string
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// CycleDone is called by the poller after every completed cycle. The first
// one marks the relay ready.
func (s *State) CycleDone(cursor string, at time.Time) {
	s.mu.Lock()
	s.cursor = cursor
	s.mu.Unlock()
	s.lastCycleUnix.Store(at.Unix())
	s.cycles.Add(1)
	s.ready.Store(true)
}

func (s *State) Cursor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

func (s *State) Cycles() int64 { return s.cycles.Load() }

func (s *State) LastCycle() time.Time {
	u := s.lastCycleUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

// Summary: текст для /status в телеграме.
func (s *State) Summary() string {
	last := "never"
	if t := s.LastCycle(); !t.IsZero() {
		last = t.UTC().Format(time.RFC3339)
	}
	cursor := s.Cursor()
	if cursor == "" {
		cursor = "-"
	}
	return fmt.Sprintf("ready: %t\nuptime: %s\ncycles: %d\nlast cycle: %s\ncursor: %s",
		s.Ready(), s.Uptime().Truncate(time.Second), s.Cycles(), last, cursor)
}
