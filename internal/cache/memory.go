package cache

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"
)

// MemoryClient is an in-process Client with TTL expiry. Expired entries
// are dropped lazily on access. Useful for single-process deployments
// and tests.
type MemoryClient struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero: never
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient returns an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (c *MemoryClient) WithClock(now func() time.Time) *MemoryClient {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// live returns the entry under key if present and unexpired.
// Caller holds mu.
func (c *MemoryClient) live(key string) (memoryEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *MemoryClient) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryClient) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.live(key)
	delete(c.entries, key)
	return ok, nil
}

func (c *MemoryClient) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key := range c.entries {
		if ok, _ := path.Match(pattern, key); !ok {
			continue
		}
		if _, live := c.live(key); live {
			n++
		}
		delete(c.entries, key)
	}
	return n, nil
}

func (c *MemoryClient) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of unexpired entries.
func (c *MemoryClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key := range c.entries {
		if _, ok := c.live(key); ok {
			n++
		}
	}
	return n
}
