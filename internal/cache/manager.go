package cache

import (
	"context"
	"fmt"
	"time"
)

// Manager layers the record/query key scheme and value encoding over a
// Client. It holds no state of its own beyond configuration.
type Manager struct {
	client Client
	prefix string
	ttl    time.Duration
}

// NewManager builds a Manager from Params.
func NewManager(p Params) *Manager {
	p = NewParams(p.Client, p.TTL, p.Prefix)
	return &Manager{client: p.Client, prefix: p.Prefix, ttl: p.TTL}
}

// Client returns the underlying client.
func (m *Manager) Client() Client { return m.client }

// Prefix returns the key namespace.
func (m *Manager) Prefix() string { return m.prefix }

// TTL returns the default entry lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// GetRecord loads the cached record id of table into dst.
func (m *Manager) GetRecord(ctx context.Context, table string, id any, dst any) (bool, error) {
	return m.get(ctx, RecordKey(m.prefix, table, id), dst)
}

// SetRecord caches v as record id of table with the default TTL.
func (m *Manager) SetRecord(ctx context.Context, table string, id any, v any) error {
	return m.SetRecordWithTTL(ctx, table, id, v, m.ttl)
}

// SetRecordWithTTL caches v as record id of table.
func (m *Manager) SetRecordWithTTL(ctx context.Context, table string, id any, v any, ttl time.Duration) error {
	return m.set(ctx, RecordKey(m.prefix, table, id), v, ttl)
}

// GetQuery loads a cached query result into dst.
func (m *Manager) GetQuery(ctx context.Context, table, hash string, dst any) (bool, error) {
	return m.get(ctx, QueryKey(m.prefix, table, hash), dst)
}

// SetQuery caches a query result with the default TTL.
func (m *Manager) SetQuery(ctx context.Context, table, hash string, v any) error {
	return m.set(ctx, QueryKey(m.prefix, table, hash), v, m.ttl)
}

// DeleteRecord drops one cached record.
func (m *Manager) DeleteRecord(ctx context.Context, table string, id any) (bool, error) {
	return m.client.Delete(ctx, RecordKey(m.prefix, table, id))
}

// DeleteRecords drops several cached records and returns how many
// existed. It stops at the first error.
func (m *Manager) DeleteRecords(ctx context.Context, table string, ids []any) (int, error) {
	n := 0
	for _, id := range ids {
		ok, err := m.DeleteRecord(ctx, table, id)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// InvalidateQueries drops every cached query result of table.
func (m *Manager) InvalidateQueries(ctx context.Context, table string) (int, error) {
	return m.client.DeleteByPattern(ctx, QueryPattern(m.prefix, table))
}

// InvalidateTable drops every cached record and query result of table.
func (m *Manager) InvalidateTable(ctx context.Context, table string) (int, error) {
	records, err := m.client.DeleteByPattern(ctx, RecordPattern(m.prefix, table))
	if err != nil {
		return records, err
	}
	queries, err := m.InvalidateQueries(ctx, table)
	return records + queries, err
}

// Ping checks the backend.
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx)
}

func (m *Manager) get(ctx context.Context, key string, dst any) (bool, error) {
	b, ok, err := m.client.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := Decode(b, dst); err != nil {
		return false, fmt.Errorf("key %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := Encode(v)
	if err != nil {
		return fmt.Errorf("key %s: %w", key, err)
	}
	return m.client.SetWithTTL(ctx, key, b, ttl)
}
