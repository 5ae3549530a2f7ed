package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/storehaus/internal/schema"
)

// ListActive returns the records whose soft-delete flag is set, newest
// first.
func (e *Engine[T, K]) ListActive(ctx context.Context) ([]T, error) {
	if err := e.requireSoftDelete("list_active"); err != nil {
		return nil, err
	}
	// ListAllSQL already filters on the flag for soft-delete tables.
	var out []T
	stmt := e.desc.ListAllSQL()
	if err := sqlx.SelectContext(ctx, e.db.x, &out, stmt); err != nil {
		return nil, queryError(e.table, "list_active", stmt, err)
	}
	return out, nil
}

// SetActive sets the soft-delete flag of record id. It reports whether
// the record exists and invalidates its cache entry.
func (e *Engine[T, K]) SetActive(ctx context.Context, id K, active bool) (bool, error) {
	if err := e.requireSoftDelete("set_active"); err != nil {
		return false, err
	}
	if err := e.requirePK("set_active"); err != nil {
		return false, err
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s WHERE %s = %s",
		e.table, e.desc.SoftDeleteField(), e.dialect.Placeholder(1), schema.UpdatedAtColumn, e.dialect.Now(),
		e.pk, e.dialect.Placeholder(2))
	res, err := e.db.x.ExecContext(ctx, stmt, active, id)
	if err != nil {
		return false, queryError(e.table, "set_active", stmt, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, queryError(e.table, "set_active", stmt, err)
	}
	if n == 0 {
		return false, nil
	}
	e.invalidate(ctx, "set_active", []any{id})
	return true, nil
}

// CountActive counts the records whose soft-delete flag is set.
func (e *Engine[T, K]) CountActive(ctx context.Context) (int64, error) {
	if err := e.requireSoftDelete("count_active"); err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = TRUE", e.table, e.desc.SoftDeleteField())

	var n int64
	if err := sqlx.GetContext(ctx, e.db.x, &n, stmt); err != nil {
		return 0, queryError(e.table, "count_active", stmt, err)
	}
	return n, nil
}
