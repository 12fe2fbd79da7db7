// Package ratelimit counts hits per key over fixed windows. The counter store
// is injected so one process or a fleet can share it.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store increments a counter that expires window after its first hit.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisStore keeps counters in Redis so every instance sees the same count.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := s.prefix + key
	n, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: incr %s: %w", key, err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, k, window).Err(); err != nil {
			return n, fmt.Errorf("ratelimit: expire %s: %w", key, err)
		}
	}
	return n, nil
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is a single-process Store. Call Close to stop its janitor.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryStore starts a store whose janitor drops expired keys every sweep.
// A non-positive sweep disables the janitor.
func NewMemoryStore(sweep time.Duration) *MemoryStore {
	return newMemoryStore(sweep, time.Now)
}

func newMemoryStore(sweep time.Duration, now func() time.Time) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     now,
		stopCh:  make(chan struct{}),
	}
	if sweep > 0 {
		go s.janitor(sweep)
	}
	return s
}

func (s *MemoryStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		e = &memoryEntry{expiresAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Len returns the number of tracked keys, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

func (s *MemoryStore) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// Close stops the janitor. It is safe to call more than once.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.stopCh) })
}
