package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type DiskConfig struct {
	Path       string
	MaxEntries int
	TTL        time.Duration
}

type diskEntry struct {
	Value      string    `json:"value"`
	ExpiresAt  time.Time `json:"expires_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

type diskFile struct {
	Entries map[string]diskEntry `json:"entries"`
}

// DiskStore is a small string cache persisted as one JSON file, with
// per-entry TTL and least-recently-used eviction.
type DiskStore struct {
	mu sync.Mutex

	path       string
	maxEntries int
	ttl        time.Duration
	entries    map[string]diskEntry
	now        func() time.Time
}

func NewDiskStore(cfg DiskConfig) (*DiskStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("cache: path is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 4096
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	s := &DiskStore{
		path:       path,
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		entries:    map[string]diskEntry{},
		now:        time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	return s, s.persistLocked()
}

func (s *DiskStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[key]
	if !ok {
		return "", false
	}
	now := s.now()
	if now.After(ent.ExpiresAt) {
		delete(s.entries, key)
		_ = s.persistLocked()
		return "", false
	}
	// access time is only persisted with the next write
	ent.AccessedAt = now
	s.entries[key] = ent
	return ent.Value, true
}

func (s *DiskStore) Set(key, value string) error {
	return s.SetMany(map[string]string{key: value})
}

// SetMany stores every entry and persists the file once.
func (s *DiskStore) SetMany(entries map[string]string) error {
	for key := range entries {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("cache: key is required")
		}
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range entries {
		s.entries[strings.TrimSpace(key)] = diskEntry{Value: value, ExpiresAt: now.Add(s.ttl), AccessedAt: now}
	}
	s.evictLocked()
	return s.persistLocked()
}

func (s *DiskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *DiskStore) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var f diskFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("cache: read %s: %w", s.path, err)
	}
	if f.Entries != nil {
		s.entries = f.Entries
	}
	return nil
}

func (s *DiskStore) evictLocked() {
	now := s.now()
	for k, ent := range s.entries {
		if now.After(ent.ExpiresAt) {
			delete(s.entries, k)
		}
	}
	if len(s.entries) <= s.maxEntries {
		return
	}
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := s.entries[keys[i]].AccessedAt, s.entries[keys[j]].AccessedAt
		if a.Equal(b) {
			return keys[i] < keys[j]
		}
		return a.Before(b)
	})
	for _, k := range keys[:len(keys)-s.maxEntries] {
		delete(s.entries, k)
	}
}

func (s *DiskStore) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(diskFile{Entries: s.entries}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
