package store

import (
	"context"

	"github.com/roach88/storehaus/internal/signal"
	"github.com/roach88/storehaus/internal/value"
)

// record converts rec into a column-keyed value.Record.
func (e *Engine[T, K]) record(rec *T) value.Record {
	cols := e.desc.Columns()
	out := make(value.Record, len(cols))
	for _, col := range cols {
		out[col] = value.FromGo(e.field(rec, col).Interface())
	}
	return out
}

func (e *Engine[T, K]) emit(ctx context.Context, ev signal.Event) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(context.WithoutCancel(ctx), ev)
}

// invalidate drops the cached records ids and every cached query of the
// table. Failures are logged; the mutation has already committed.
func (e *Engine[T, K]) invalidate(ctx context.Context, op string, ids []any) {
	if e.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if len(ids) > 0 {
		if _, err := e.cache.DeleteRecords(ctx, e.table, ids); err != nil {
			e.log.Warn().Err(err).Str("op", op).Int("ids", len(ids)).Msg("cache record invalidation failed")
		}
	}
	if _, err := e.cache.InvalidateQueries(ctx, e.table); err != nil {
		e.log.Warn().Err(err).Str("op", op).Msg("cache query invalidation failed")
	}
}

func (e *Engine[T, K]) createEvent(rec *T) signal.Event {
	ev := signal.NewEvent(signal.Create, e.table)
	if e.pk != "" {
		ev = ev.WithRecordID(idString(e.idOf(rec)))
	}
	for col, v := range e.record(rec) {
		ev.Set(col, v)
	}
	ev.AddTags(e.tagsOf(rec)...)
	return ev
}

func (e *Engine[T, K]) updateEvent(rec *T) signal.Event {
	ev := e.createEvent(rec)
	ev.Type = signal.Update
	ev.Set(signal.RecordKey, e.record(rec))
	return ev
}

// batchUpdateEvent summarizes a multi-row update in one event.
func (e *Engine[T, K]) batchUpdateEvent(recs []T) signal.Event {
	ev := signal.NewEvent(signal.Update, e.table)
	records := make(value.Array, len(recs))
	ids := make(value.Array, 0, len(recs))
	for i := range recs {
		records[i] = e.record(&recs[i])
		if e.pk != "" {
			ids = append(ids, value.FromGo(e.idOf(&recs[i])))
		}
		ev.AddTags(e.tagsOf(&recs[i])...)
	}
	ev.Set(signal.RecordKey, records)
	ev.Set(signal.IDsKey, ids)
	ev.Set(signal.UpdatedCountKey, value.Int(len(recs)))
	return ev
}

// batchDeleteEvent summarizes deleted ids in one event.
func (e *Engine[T, K]) batchDeleteEvent(ids []K) signal.Event {
	ev := signal.NewEvent(signal.Delete, e.table)
	arr := make(value.Array, len(ids))
	for i, id := range ids {
		arr[i] = value.FromGo(id)
	}
	ev.Set(signal.IDsKey, arr)
	ev.Set(signal.DeletedCountKey, value.Int(len(ids)))
	if e.pk != "" {
		ev.Set("primary_key", value.Text(e.pk))
	}
	return ev
}

func (e *Engine[T, K]) idsOf(recs []T) []any {
	if e.pk == "" {
		return nil
	}
	out := make([]any, len(recs))
	for i := range recs {
		out[i] = e.idOf(&recs[i])
	}
	return out
}

// PublishUpdate invalidates the cache for recs and emits one aggregated
// Update event. Use it after committing a transaction that ran the
// executor variants, which do neither.
func (e *Engine[T, K]) PublishUpdate(ctx context.Context, recs []T) {
	if len(recs) == 0 {
		return
	}
	e.invalidate(ctx, "publish_update", e.idsOf(recs))
	e.emit(ctx, e.batchUpdateEvent(recs))
}

// PublishDelete invalidates the cache for ids and emits one aggregated
// Delete event.
func (e *Engine[T, K]) PublishDelete(ctx context.Context, ids []K) {
	if len(ids) == 0 {
		return
	}
	e.invalidate(ctx, "publish_delete", anySlice(ids))
	e.emit(ctx, e.batchDeleteEvent(ids))
}
