package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/storehaus/internal/cache"
	"github.com/roach88/storehaus/internal/query"
)

func (e *Engine[T, K]) build(op string, q *query.Query) (query.Compiled, error) {
	c, err := query.Build(q, e.dialect)
	if err != nil {
		return query.Compiled{}, validationError(e.table, op, "%v", err)
	}
	return c, nil
}

// selectStatement renders a record-shaped SELECT for q. Joined queries
// without an explicit select list return only this table's columns so
// rows still scan into T.
func (e *Engine[T, K]) selectStatement(q *query.Query, c query.Compiled) string {
	list := ""
	if c.Joins != "" && (q == nil || len(q.Select) == 0) {
		list = e.table + ".*"
	}
	return c.SelectFrom(e.table, list)
}

// Find returns the records matching q. Soft-deleted rows are not
// filtered implicitly; add the flag to q to exclude them.
func (e *Engine[T, K]) Find(ctx context.Context, q *query.Query) ([]T, error) {
	c, err := e.build("find", q)
	if err != nil {
		return nil, err
	}
	stmt := e.selectStatement(q, c)

	var out []T
	if err := sqlx.SelectContext(ctx, e.db.x, &out, stmt, c.Params()...); err != nil {
		return nil, queryError(e.table, "find", stmt, err)
	}
	return out, nil
}

// FindOne is Find limited to one row. It returns nil when nothing
// matches.
func (e *Engine[T, K]) FindOne(ctx context.Context, q *query.Query) (*T, error) {
	if q == nil {
		q = query.New()
	}
	out, err := e.Find(ctx, q.Clone().Take(1))
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return &out[0], nil
}

// CountWhere counts the rows matching q's joins and filters.
func (e *Engine[T, K]) CountWhere(ctx context.Context, q *query.Query) (int64, error) {
	c, err := e.build("count_where", q)
	if err != nil {
		return 0, err
	}
	stmt := c.CountFrom(e.table)

	var n int64
	if err := sqlx.GetContext(ctx, e.db.x, &n, stmt, c.WhereParams...); err != nil {
		return 0, queryError(e.table, "count_where", stmt, err)
	}
	return n, nil
}

// Aggregate runs q with its select list and grouping and returns each
// row as a column-keyed map. Text columns come back as strings.
func (e *Engine[T, K]) Aggregate(ctx context.Context, q *query.Query) ([]map[string]any, error) {
	c, err := e.build("aggregate", q)
	if err != nil {
		return nil, err
	}
	stmt := c.SelectFrom(e.table, "")

	rows, err := e.db.x.QueryxContext(ctx, stmt, c.Params()...)
	if err != nil {
		return nil, queryError(e.table, "aggregate", stmt, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, queryError(e.table, "aggregate", stmt, err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(e.table, "aggregate", stmt, err)
	}
	return out, nil
}

// FindCached is Find with the result cached under the table's query
// namespace, keyed by a hash of the compiled statement and parameters.
// Any mutation through the engine invalidates it. Without a cache it is
// plain Find.
func (e *Engine[T, K]) FindCached(ctx context.Context, q *query.Query) ([]T, error) {
	if e.cache == nil {
		return e.Find(ctx, q)
	}
	c, err := e.build("find_cached", q)
	if err != nil {
		return nil, err
	}
	stmt := e.selectStatement(q, c)
	params := c.Params()

	hash, err := cache.HashQuery(stmt, params)
	if err != nil {
		return nil, serializationError(e.table, "find_cached", err)
	}
	key := cache.QueryKey(e.cache.Prefix(), e.table, hash)

	var out []T
	ok, err := e.cache.GetQuery(ctx, e.table, hash, &out)
	if err != nil {
		return nil, e.cacheFailure("find_cached", key, err)
	}
	if ok {
		return out, nil
	}

	if err := sqlx.SelectContext(ctx, e.db.x, &out, stmt, params...); err != nil {
		return nil, queryError(e.table, "find_cached", stmt, err)
	}
	if err := e.cache.SetQuery(ctx, e.table, hash, out); err != nil {
		return nil, e.cacheFailure("find_cached", key, err)
	}
	return out, nil
}

// where compiles q's filters into a WHERE fragment numbered from $1.
// Bulk statements reject clauses they cannot honor.
func (e *Engine[T, K]) where(op string, q *query.Query) (string, []any, error) {
	if q == nil {
		return "", nil, nil
	}
	if len(q.Joins) > 0 || q.Group != nil || len(q.Select) > 0 {
		return "", nil, validationError(e.table, op, "joins, grouping and select fields are not supported")
	}
	sql, params, err := query.CompileFilters(q.Filters, e.dialect)
	if err != nil {
		return "", nil, validationError(e.table, op, "%v", err)
	}
	if sql == "" {
		return "", nil, nil
	}
	return "WHERE " + sql, params, nil
}

// UpdateWhere applies atomic update operations to every row matching q
// and returns the updated rows. ops may be nil when q carries its own
// update set. Soft-deleted rows are not touched. One aggregated Update
// event is emitted when any row changed.
func (e *Engine[T, K]) UpdateWhere(ctx context.Context, q *query.Query, ops *query.UpdateSet) ([]T, error) {
	out, err := e.UpdateWhereWithExecutor(ctx, e.db.x, q, ops)
	if err != nil {
		return nil, err
	}
	e.PublishUpdate(ctx, out)
	return out, nil
}

// UpdateWhereWithExecutor is UpdateWhere through ex, without events or
// cache invalidation.
func (e *Engine[T, K]) UpdateWhereWithExecutor(ctx context.Context, ex Executor, q *query.Query, ops *query.UpdateSet) ([]T, error) {
	if ops == nil && q != nil {
		ops = q.Updates
	}
	if ops.Len() == 0 {
		return nil, validationError(e.table, "update_where", "no update operations")
	}
	set, setParams, err := ops.Compile(e.dialect)
	if err != nil {
		return nil, validationError(e.table, "update_where", "%v", err)
	}
	return e.updateWhere(ctx, ex, "update_where", q, set, setParams)
}

// OverwriteWhere binds the update fields of rec as the SET clause for
// every row matching q.
func (e *Engine[T, K]) OverwriteWhere(ctx context.Context, q *query.Query, rec T) ([]T, error) {
	out, err := e.OverwriteWhereWithExecutor(ctx, e.db.x, q, rec)
	if err != nil {
		return nil, err
	}
	e.PublishUpdate(ctx, out)
	return out, nil
}

// OverwriteWhereWithExecutor is OverwriteWhere through ex, without
// events or cache invalidation.
func (e *Engine[T, K]) OverwriteWhereWithExecutor(ctx context.Context, ex Executor, q *query.Query, rec T) ([]T, error) {
	fields := e.desc.UpdateFields()
	if len(fields) == 0 {
		return nil, validationError(e.table, "overwrite_where", "table has no update fields")
	}
	ops := query.NewUpdateSet()
	for _, col := range fields {
		ops.Set(col, e.field(&rec, col).Interface())
	}
	set, setParams, err := ops.Compile(e.dialect)
	if err != nil {
		return nil, validationError(e.table, "overwrite_where", "%v", err)
	}
	return e.updateWhere(ctx, ex, "overwrite_where", q, set, setParams)
}

func (e *Engine[T, K]) updateWhere(ctx context.Context, ex Executor, op string, q *query.Query, set string, setParams []any) ([]T, error) {
	where, whereParams, err := e.where(op, q)
	if err != nil {
		return nil, err
	}
	stmt, params := query.UpdateWhere(e.dialect, e.table, set, setParams, where, whereParams, e.desc.SoftDeleteField())
	e.log.Debug().Str("op", op).Str("statement", stmt).Int("params", len(params)).Msg("bulk update")

	var out []T
	if err := sqlx.SelectContext(ctx, ex, &out, stmt, params...); err != nil {
		return nil, queryError(e.table, op, stmt, err)
	}
	return out, nil
}

// DeleteWhere deletes (or soft-deletes) every row matching q and returns
// the affected primary keys. Tables without a primary key are still
// modified but yield no ids and no event.
func (e *Engine[T, K]) DeleteWhere(ctx context.Context, q *query.Query) ([]K, error) {
	ids, err := e.DeleteWhereWithExecutor(ctx, e.db.x, q)
	if err != nil {
		return nil, err
	}
	if e.pk == "" {
		e.invalidate(ctx, "delete_where", nil)
		return ids, nil
	}
	e.PublishDelete(ctx, ids)
	return ids, nil
}

// DeleteWhereWithExecutor is DeleteWhere through ex, without events or
// cache invalidation.
func (e *Engine[T, K]) DeleteWhereWithExecutor(ctx context.Context, ex Executor, q *query.Query) ([]K, error) {
	where, params, err := e.where("delete_where", q)
	if err != nil {
		return nil, err
	}
	return e.deleteWhere(ctx, ex, "delete_where", where, params)
}

func (e *Engine[T, K]) deleteWhere(ctx context.Context, ex Executor, op, where string, params []any) ([]K, error) {
	stmt := query.DeleteWhere(e.dialect, e.table, where, e.pk, e.desc.SoftDeleteField())
	e.log.Debug().Str("op", op).Str("statement", stmt).Int("params", len(params)).Msg("bulk delete")

	if e.pk == "" {
		if _, err := ex.ExecContext(ctx, stmt, params...); err != nil {
			return nil, queryError(e.table, op, stmt, err)
		}
		return []K{}, nil
	}

	ids := []K{}
	if err := sqlx.SelectContext(ctx, ex, &ids, stmt, params...); err != nil {
		return nil, queryError(e.table, op, stmt, err)
	}
	return ids, nil
}
