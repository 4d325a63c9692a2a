package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count       int64
	windowStart time.Time
	tripped     bool
}

// MemoryStore keeps per-key windows in process memory. Entries restart
// when their window expires; the map itself is pruned lazily on access
// so long-idle keys do not accumulate forever.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	lastSweep time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Take(_ context.Context, key string, now time.Time, window time.Duration) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now, window)

	e, ok := s.entries[key]
	if !ok || now.Sub(e.windowStart) > window {
		e = &memoryEntry{count: 0, windowStart: now}
		s.entries[key] = e
	}
	e.count++
	return State{Count: e.count, WindowStart: e.windowStart, Tripped: e.tripped}, nil
}

func (s *MemoryStore) Trip(_ context.Context, key string, now time.Time, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.Sub(e.windowStart) > window {
		return nil
	}
	e.tripped = true
	return nil
}

// sweep drops expired entries at most once per window length.
func (s *MemoryStore) sweep(now time.Time, window time.Duration) {
	if now.Sub(s.lastSweep) < window {
		return
	}
	s.lastSweep = now
	for k, e := range s.entries {
		if now.Sub(e.windowStart) > window {
			delete(s.entries, k)
		}
	}
}
