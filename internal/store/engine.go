package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	"github.com/rs/zerolog"

	"github.com/roach88/storehaus/internal/cache"
	"github.com/roach88/storehaus/internal/schema"
	"github.com/roach88/storehaus/internal/signal"
)

// Engine is the data-access layer for one record type T with primary key
// type K. T is a struct whose db tags cover every column of the
// descriptor, usually by embedding schema.Meta.
//
// Engines are safe for concurrent use. They hold no locks of their own;
// the connection pool, cache client and bus synchronize themselves.
type Engine[T any, K comparable] struct {
	db      *DB
	desc    schema.Provider
	table   string
	dialect schema.Dialect
	pk      string
	mapper  *reflectx.Mapper

	// index holds the struct field path of every column of T.
	index map[string][]int

	generateKey bool

	cache *cache.Manager
	bus   *signal.Bus
	log   zerolog.Logger
}

type engineOptions struct {
	cache *cache.Manager
	bus   *signal.Bus
	log   zerolog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

// WithCache enables look-aside caching. Params without a client leave
// caching disabled.
func WithCache(p cache.Params) Option {
	return func(o *engineOptions) {
		if p.Enabled() {
			o.cache = cache.NewManager(p)
		}
	}
}

// WithCacheManager enables caching through an existing manager.
func WithCacheManager(m *cache.Manager) Option {
	return func(o *engineOptions) { o.cache = m }
}

// WithBus publishes mutation events to b.
func WithBus(b *signal.Bus) Option {
	return func(o *engineOptions) { o.bus = b }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *engineOptions) { o.log = l }
}

// keyedProvider is implemented by *schema.Descriptor.
type keyedProvider interface {
	PrimaryKey() *schema.Field
}

var tagsType = reflect.TypeOf(schema.Tags(nil))

// NewEngine binds a record type to its schema provider and database.
// It checks that T maps every provider column and that the primary key
// field has type K.
func NewEngine[T any, K comparable](db *DB, desc schema.Provider, opts ...Option) (*Engine[T, K], error) {
	if db == nil {
		return nil, configurationError("new_engine", "database is nil")
	}
	if desc == nil {
		return nil, configurationError("new_engine", "schema provider is nil")
	}
	if desc.Dialect() != db.Dialect() {
		return nil, configurationError("new_engine", "table %s is described for %s, database is %s",
			desc.TableName(), desc.Dialect(), db.Dialect())
	}

	o := engineOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine[T, K]{
		db:      db,
		desc:    desc,
		table:   desc.TableName(),
		dialect: desc.Dialect(),
		pk:      desc.PrimaryKeyField(),
		mapper:  db.x.Mapper,
		cache:   o.cache,
		bus:     o.bus,
		log:     o.log.With().Str("table", desc.TableName()).Logger(),
	}
	if kp, ok := desc.(keyedProvider); ok && kp.PrimaryKey() != nil {
		e.generateKey = kp.PrimaryKey().GenerateUUID
	}

	if err := e.checkRecordType(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine[T, K]) checkRecordType() error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return configurationError("new_engine", "record type %s is not a struct", t)
	}
	sm := e.mapper.TypeMap(t)
	e.index = make(map[string][]int, len(e.desc.Columns()))
	for _, col := range e.desc.Columns() {
		fi, ok := sm.Names[col]
		if !ok {
			return configurationError("new_engine", "record type %s has no field for column %s.%s", t, e.table, col)
		}
		e.index[col] = fi.Index
	}
	if ft := sm.Names[schema.TagsColumn].Field.Type; ft != tagsType {
		return configurationError("new_engine", "column %s must be schema.Tags, got %s", schema.TagsColumn, ft)
	}
	if e.pk != "" {
		want := reflect.TypeOf((*K)(nil)).Elem()
		if ft := sm.Names[e.pk].Field.Type; ft != want {
			return configurationError("new_engine", "primary key %s.%s has type %s, engine key type is %s",
				e.table, e.pk, ft, want)
		}
	}
	return nil
}

// Table returns the table name.
func (e *Engine[T, K]) Table() string { return e.table }

// Schema returns the schema provider.
func (e *Engine[T, K]) Schema() schema.Provider { return e.desc }

// DB returns the database the engine runs against.
func (e *Engine[T, K]) DB() *DB { return e.db }

// Cache returns the cache manager, or nil when caching is disabled.
func (e *Engine[T, K]) Cache() *cache.Manager { return e.cache }

// Bus returns the event bus, or nil.
func (e *Engine[T, K]) Bus() *signal.Bus { return e.bus }

// field returns the field of rec mapped to col. Nil pointers along the
// path are left nil, so a nil *string binds as NULL.
func (e *Engine[T, K]) field(rec *T, col string) reflect.Value {
	return reflectx.FieldByIndexesReadOnly(reflect.ValueOf(rec).Elem(), e.index[col])
}

func (e *Engine[T, K]) idOf(rec *T) K {
	return e.field(rec, e.pk).Interface().(K)
}

func (e *Engine[T, K]) tagsOf(rec *T) schema.Tags {
	return e.field(rec, schema.TagsColumn).Interface().(schema.Tags)
}

func (e *Engine[T, K]) requirePK(op string) error {
	if e.pk == "" {
		return validationError(e.table, op, "table has no primary key")
	}
	return nil
}

func (e *Engine[T, K]) requireSoftDelete(op string) error {
	if !e.desc.SupportsSoftDelete() {
		return validationError(e.table, op, "table does not support soft deletion")
	}
	return nil
}

// assignKey fills a zero UUID primary key with a fresh UUIDv7.
func (e *Engine[T, K]) assignKey(rec *T) {
	if !e.generateKey {
		return
	}
	fv := e.field(rec, e.pk)
	if !fv.IsZero() {
		return
	}
	id := uuid.Must(uuid.NewV7())
	switch {
	case fv.Kind() == reflect.String:
		fv.SetString(id.String())
	case fv.Type() == reflect.TypeOf(uuid.UUID{}):
		fv.Set(reflect.ValueOf(id))
	}
}

func (e *Engine[T, K]) cacheFailure(op, key string, err error) error {
	if errors.Is(err, cache.ErrCodec) {
		return serializationError(e.table, op, err)
	}
	return cacheError(e.table, op, key, err)
}

// inTx runs fn in a transaction on the engine's database and attributes
// transaction failures to the engine's table.
func (e *Engine[T, K]) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	err := e.db.InTx(ctx, fn)
	var se *StoreError
	if errors.As(err, &se) && se.Table == "" {
		se.Table = e.table
	}
	return err
}

func idString(id any) string {
	return fmt.Sprint(id)
}

func anySlice[K any](ids []K) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
