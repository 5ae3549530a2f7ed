package cache

import (
	"context"
	"fmt"
	"time"
)

// Client is the key/value contract the store engine needs from a cache
// backend. Implementations must be safe for concurrent use.
type Client interface {
	// Get returns the stored bytes and true, or nil and false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// SetWithTTL stores value under key. A zero ttl means no expiry.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteByPattern removes every key matching a glob pattern ("*"
	// wildcard) and returns how many were removed.
	DeleteByPattern(ctx context.Context, pattern string) (int, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// DefaultPrefix is the key namespace used when none is configured.
const DefaultPrefix = "storehaus"

// DefaultTTL is the record TTL used when none is configured.
const DefaultTTL = time.Hour

// RecordKey returns {prefix}:{table}:record:{id}.
func RecordKey(prefix, table string, id any) string {
	return fmt.Sprintf("%s:%s:record:%v", prefix, table, id)
}

// QueryKey returns {prefix}:{table}:query:{hash}.
func QueryKey(prefix, table, hash string) string {
	return fmt.Sprintf("%s:%s:query:%s", prefix, table, hash)
}

// QueryPattern matches every cached query result of a table.
func QueryPattern(prefix, table string) string {
	return fmt.Sprintf("%s:%s:query:*", prefix, table)
}

// RecordPattern matches every cached record of a table.
func RecordPattern(prefix, table string) string {
	return fmt.Sprintf("%s:%s:record:*", prefix, table)
}

// Params configures caching for one store engine.
type Params struct {
	Client Client
	TTL    time.Duration
	Prefix string
}

// NewParams returns Params with the default TTL and prefix filled in.
func NewParams(client Client, ttl time.Duration, prefix string) Params {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Params{Client: client, TTL: ttl, Prefix: prefix}
}

// Enabled reports whether a client is configured.
func (p Params) Enabled() bool {
	return p.Client != nil
}
