package app

import (
	"sync"
	"time"
)

type startTimes[K comparable] struct {
	mu sync.Mutex
	m  map[K]time.Time
}

func newStartTimes[K comparable]() *startTimes[K] {
	return &startTimes[K]{m: make(map[K]time.Time)}
}

func (s *startTimes[K]) set(k K, t time.Time) {
	s.mu.Lock()
	s.m[k] = t
	s.mu.Unlock()
}

func (s *startTimes[K]) take(k K) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.m[k]
	delete(s.m, k)
	return t, ok
}
