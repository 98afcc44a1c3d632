package run

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
		now:  time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := normalize(rec, s.now())
	if err != nil {
		return err
	}
	if prev, ok := s.data[n.ID]; ok {
		n.CreatedAt = prev.CreatedAt
	}
	n.Result = append([]byte(nil), n.Result...)
	s.data[n.ID] = n
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	if s == nil {
		return Record{}, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[strings.TrimSpace(id)]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Result = append([]byte(nil), rec.Result...)
	return rec, nil
}

// List returns the newest records first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]Record, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	out := make([]Record, 0, len(s.data))
	for _, rec := range s.data {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
