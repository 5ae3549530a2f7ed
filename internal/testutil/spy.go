package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/storehaus/internal/cache"
)

// SpyCache wraps a cache.Client and records every call. Errors can be
// injected per operation to exercise failure paths.
type SpyCache struct {
	inner cache.Client

	mu       sync.Mutex
	gets     []string
	hits     int
	misses   int
	sets     []string
	deletes  []string
	patterns []string

	// GetErr, SetErr and DeleteErr are returned instead of calling the
	// wrapped client when non-nil.
	GetErr    error
	SetErr    error
	DeleteErr error
}

var _ cache.Client = (*SpyCache)(nil)

// NewSpyCache wraps inner. A nil inner gets a fresh cache.MemoryClient.
func NewSpyCache(inner cache.Client) *SpyCache {
	if inner == nil {
		inner = cache.NewMemoryClient()
	}
	return &SpyCache{inner: inner}
}

func (s *SpyCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	s.gets = append(s.gets, key)
	injected := s.GetErr
	s.mu.Unlock()
	if injected != nil {
		return nil, false, injected
	}

	b, ok, err := s.inner.Get(ctx, key)
	if err == nil {
		s.mu.Lock()
		if ok {
			s.hits++
		} else {
			s.misses++
		}
		s.mu.Unlock()
	}
	return b, ok, err
}

func (s *SpyCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.sets = append(s.sets, key)
	injected := s.SetErr
	s.mu.Unlock()
	if injected != nil {
		return injected
	}
	return s.inner.SetWithTTL(ctx, key, value, ttl)
}

func (s *SpyCache) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	s.deletes = append(s.deletes, key)
	injected := s.DeleteErr
	s.mu.Unlock()
	if injected != nil {
		return false, injected
	}
	return s.inner.Delete(ctx, key)
}

func (s *SpyCache) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	s.mu.Lock()
	s.patterns = append(s.patterns, pattern)
	injected := s.DeleteErr
	s.mu.Unlock()
	if injected != nil {
		return 0, injected
	}
	return s.inner.DeleteByPattern(ctx, pattern)
}

func (s *SpyCache) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Hits returns the number of successful cache hits.
func (s *SpyCache) Hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

// Misses returns the number of successful lookups that found nothing.
func (s *SpyCache) Misses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.misses
}

// Sets returns the keys written, in order.
func (s *SpyCache) Sets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sets...)
}

// Gets returns the keys read, in order.
func (s *SpyCache) Gets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.gets...)
}

// Deletes returns the keys deleted individually, in order.
func (s *SpyCache) Deletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

// Patterns returns the patterns passed to DeleteByPattern, in order.
func (s *SpyCache) Patterns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.patterns...)
}

// Reset clears the recorded calls. Injected errors are kept.
func (s *SpyCache) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets, s.sets, s.deletes, s.patterns = nil, nil, nil, nil
	s.hits, s.misses = 0, 0
}
