package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/storehaus/internal/cache"
	"github.com/roach88/storehaus/internal/query"
	"github.com/roach88/storehaus/internal/signal"
)

// Change pairs a record with the primary key it replaces, for
// UpdateMany.
type Change[K comparable, T any] struct {
	ID     K
	Record T

	// Tags are merged into the record's own tags.
	Tags []string
}

// Create inserts rec with the create fields bound in declared order and
// its tags merged with tags. It returns the stored row and emits a
// Create event. The cache is not touched.
func (e *Engine[T, K]) Create(ctx context.Context, rec T, tags ...string) (T, error) {
	var zero T
	e.assignKey(&rec)

	fields := e.desc.CreateFields()
	args := make([]any, 0, len(fields)+1)
	for _, col := range fields {
		args = append(args, e.field(&rec, col).Interface())
	}
	args = append(args, e.tagsOf(&rec).Merge(tags...))

	var out T
	stmt := e.desc.CreateSQL()
	if err := sqlx.GetContext(ctx, e.db.x, &out, stmt, args...); err != nil {
		return zero, queryError(e.table, "create", stmt, err)
	}
	e.log.Debug().Str("op", "create").Msg("record created")

	e.emit(ctx, e.createEvent(&out))
	return out, nil
}

// GetByID returns the record with id, or nil if there is none.
//
// With caching enabled the cache is consulted first and populated after
// a database hit. Cache failures fail the read, including a failure to
// populate after a successful fetch.
func (e *Engine[T, K]) GetByID(ctx context.Context, id K) (*T, error) {
	if err := e.requirePK("get_by_id"); err != nil {
		return nil, err
	}

	if e.cache != nil {
		var cached T
		ok, err := e.cache.GetRecord(ctx, e.table, id, &cached)
		if err != nil {
			return nil, e.cacheFailure("get_by_id", cache.RecordKey(e.cache.Prefix(), e.table, id), err)
		}
		if ok {
			return &cached, nil
		}
	}

	var out T
	stmt := e.desc.GetByIDSQL()
	err := sqlx.GetContext(ctx, e.db.x, &out, stmt, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queryError(e.table, "get_by_id", stmt, err)
	}

	if e.cache != nil {
		if err := e.cache.SetRecord(ctx, e.table, id, out); err != nil {
			return nil, e.cacheFailure("get_by_id", cache.RecordKey(e.cache.Prefix(), e.table, id), err)
		}
	}
	return &out, nil
}

// ListAll returns every record, newest first. Soft-deleted records are
// excluded when the table supports soft deletion.
func (e *Engine[T, K]) ListAll(ctx context.Context) ([]T, error) {
	var out []T
	stmt := e.desc.ListAllSQL()
	if err := sqlx.SelectContext(ctx, e.db.x, &out, stmt); err != nil {
		return nil, queryError(e.table, "list_all", stmt, err)
	}
	return out, nil
}

// Count returns the number of rows, ignoring any soft-delete flag.
func (e *Engine[T, K]) Count(ctx context.Context) (int64, error) {
	var n int64
	stmt := e.desc.CountAllSQL()
	if err := sqlx.GetContext(ctx, e.db.x, &n, stmt); err != nil {
		return 0, queryError(e.table, "count", stmt, err)
	}
	return n, nil
}

// Update overwrites the update fields and tags of record id with those
// of rec (tags merged with tags). It invalidates the cached record and
// the table's cached queries and emits an Update event. The new value is
// not written to the cache.
func (e *Engine[T, K]) Update(ctx context.Context, id K, rec T, tags ...string) (T, error) {
	var zero T
	if err := e.requirePK("update"); err != nil {
		return zero, err
	}

	out, err := e.updateOne(ctx, e.db.x, "update", Change[K, T]{ID: id, Record: rec, Tags: tags})
	if err != nil {
		return zero, err
	}

	e.invalidate(ctx, "update", []any{id})
	e.emit(ctx, e.updateEvent(&out))
	return out, nil
}

func (e *Engine[T, K]) updateOne(ctx context.Context, ex Executor, op string, c Change[K, T]) (T, error) {
	var zero T
	fields := e.desc.UpdateFields()
	args := make([]any, 0, len(fields)+2)
	for _, col := range fields {
		args = append(args, e.field(&c.Record, col).Interface())
	}
	args = append(args, e.tagsOf(&c.Record).Merge(c.Tags...), c.ID)

	var out T
	stmt := e.desc.UpdateSQL()
	err := sqlx.GetContext(ctx, ex, &out, stmt, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, notFoundError(e.table, op, c.ID)
	}
	if err != nil {
		return zero, queryError(e.table, op, stmt, err)
	}
	return out, nil
}

// UpdateMany applies every change in one transaction, in order. Either
// all changes commit or none do. After commit it invalidates the cache
// and emits a single aggregated Update event.
func (e *Engine[T, K]) UpdateMany(ctx context.Context, changes []Change[K, T]) ([]T, error) {
	if err := e.requirePK("update_many"); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}

	var out []T
	err := e.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		out, err = e.UpdateManyWithExecutor(ctx, tx, changes)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug().Str("op", "update_many").Int("count", len(out)).Msg("records updated")
	e.PublishUpdate(ctx, out)
	return out, nil
}

// UpdateManyWithExecutor applies changes through ex, which is usually a
// caller-managed transaction. It emits no events and leaves the cache
// alone; call PublishUpdate after commit.
func (e *Engine[T, K]) UpdateManyWithExecutor(ctx context.Context, ex Executor, changes []Change[K, T]) ([]T, error) {
	if err := e.requirePK("update_many"); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(changes))
	for _, c := range changes {
		rec, err := e.updateOne(ctx, ex, "update_many", c)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes record id, or clears its soft-delete flag when the table
// supports soft deletion. It reports whether a record was affected and,
// if so, invalidates the cache and emits a Delete event.
func (e *Engine[T, K]) Delete(ctx context.Context, id K) (bool, error) {
	if err := e.requirePK("delete"); err != nil {
		return false, err
	}

	var affected bool
	if e.desc.SupportsSoftDelete() {
		ids, err := e.deleteWhere(ctx, e.db.x, "delete", "WHERE "+e.pk+" = "+e.dialect.Placeholder(1), []any{id})
		if err != nil {
			return false, err
		}
		affected = len(ids) > 0
	} else {
		stmt := e.desc.DeleteByIDSQL()
		res, err := e.db.x.ExecContext(ctx, stmt, id)
		if err != nil {
			return false, queryError(e.table, "delete", stmt, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, queryError(e.table, "delete", stmt, err)
		}
		affected = n > 0
	}
	if !affected {
		return false, nil
	}

	e.invalidate(ctx, "delete", []any{id})
	ev := signal.NewEvent(signal.Delete, e.table).WithRecordID(idString(id))
	e.emit(ctx, ev)
	return true, nil
}

// DeleteMany deletes (or soft-deletes) every listed record and returns
// how many were affected. One aggregated Delete event lists the affected
// ids.
func (e *Engine[T, K]) DeleteMany(ctx context.Context, ids []K) (int, error) {
	if err := e.requirePK("delete_many"); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	where, params, err := query.CompileFilters([]query.Filter{query.In(e.pk, anySlice(ids)...)}, e.dialect)
	if err != nil {
		return 0, validationError(e.table, "delete_many", "%v", err)
	}
	deleted, err := e.deleteWhere(ctx, e.db.x, "delete_many", "WHERE "+where, params)
	if err != nil {
		return 0, err
	}

	e.PublishDelete(ctx, deleted)
	return len(deleted), nil
}
