package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one cached value with its bookkeeping.
type Entry struct {
	Key            string        `json:"key"`
	Value          interface{}   `json:"-"`
	InsertedAt     time.Time     `json:"inserted_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	TTL            time.Duration `json:"-"`
	SizeBytes      int64         `json:"approx_size_bytes"`
}

func (e Entry) ExpiresAt() time.Time {
	return e.InsertedAt.Add(e.TTL)
}

func (e Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.ExpiresAt())
}

// Store is the cache backend. Entries returned by Scan may omit Value.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	Touch(ctx context.Context, key string, at time.Time) error
	Delete(ctx context.Context, keys ...string) (int, error)
	Scan(ctx context.Context, prefix string) ([]Entry, error)
	Flush(ctx context.Context) error
	Usage(ctx context.Context) (keys int, bytes int64, err error)
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	bytes   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[entry.Key]; ok {
		s.bytes -= old.SizeBytes
	}
	s.entries[entry.Key] = entry
	s.bytes += entry.SizeBytes
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.LastAccessedAt = at
		s.entries[key] = e
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, key := range keys {
		if e, ok := s.entries[key]; ok {
			s.bytes -= e.SizeBytes
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Scan(_ context.Context, prefix string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for key, e := range s.entries {
		if strings.HasPrefix(key, prefix) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
	s.bytes = 0
	return nil
}

func (s *MemoryStore) Usage(_ context.Context) (int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), s.bytes, nil
}
