package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storehaus/internal/cache"
	"github.com/roach88/storehaus/internal/schema"
	"github.com/roach88/storehaus/internal/store"
	"github.com/roach88/storehaus/internal/testutil"
)

type note struct {
	ID   int64  `db:"id" store:"pk"`
	Body string `db:"body" store:"create,update"`
	schema.Meta
}

type label struct {
	ID     string `db:"id" store:"pk,uuid"`
	Name   string `db:"name" store:"create,update"`
	Active bool   `db:"active" store:"softdelete"`
	schema.Meta
}

func openDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(context.Background(), store.DBConfig{
		Dialect: schema.SQLite,
		DSN:     filepath.Join(t.TempDir(), "registry.db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRegisterReturnsTypedHandle(t *testing.T) {
	db := openDB(t)
	r := New(zerolog.Nop())
	ctx := context.Background()

	notes, err := Register[note, int64](ctx, r, "notes", db,
		schema.MustDescribe[note]("notes", schema.SQLite), Options{Migrate: true})
	require.NoError(t, err)

	created, err := notes.Create(ctx, note{Body: "hi"})
	require.NoError(t, err)

	got, err := notes.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Body)

	info, ok := r.Get("notes")
	require.True(t, ok)
	assert.Equal(t, Info{
		Name:       "notes",
		Table:      "notes",
		Dialect:    schema.SQLite,
		PrimaryKey: "id",
		Columns:    notes.Schema().Columns(),
	}, info)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterDuplicate(t *testing.T) {
	db := openDB(t)
	r := New(zerolog.Nop())
	ctx := context.Background()
	desc := schema.MustDescribe[note]("notes", schema.SQLite)

	_, err := Register[note, int64](ctx, r, "notes", db, desc, Options{Migrate: true})
	require.NoError(t, err)
	_, err = Register[note, int64](ctx, r, "notes", db, desc, Options{})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = Register[note, int64](ctx, r, "", db, desc, Options{})
	assert.Error(t, err)
	_, err = Register[note, int64](ctx, r, "x", db, nil, Options{})
	assert.Error(t, err)
}

func TestRegisterPropagatesEngineErrors(t *testing.T) {
	db := openDB(t)
	r := New(zerolog.Nop())

	_, err := Register[note, string](context.Background(), r, "notes", db,
		schema.MustDescribe[note]("notes", schema.SQLite), Options{})
	require.Error(t, err)
	assert.True(t, store.IsConfigurationError(err))
	assert.Zero(t, r.Len())
}

func TestGetNamesUnregister(t *testing.T) {
	db := openDB(t)
	r := New(zerolog.Nop())
	ctx := context.Background()

	_, err := Register[note, int64](ctx, r, "notes", db,
		schema.MustDescribe[note]("notes", schema.SQLite), Options{Migrate: true})
	require.NoError(t, err)
	_, err = Register[label, string](ctx, r, "labels", db,
		schema.MustDescribe[label]("labels", schema.SQLite), Options{
			Migrate: true,
			Engine:  []store.Option{store.WithCache(cache.Params{Client: cache.NewMemoryClient()})},
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"labels", "notes"}, r.Names())

	info, ok := r.Get("labels")
	require.True(t, ok)
	assert.Equal(t, "labels", info.Table)
	assert.Equal(t, "id", info.PrimaryKey)
	assert.Equal(t, schema.SQLite, info.Dialect)
	assert.True(t, info.SoftDelete)
	assert.True(t, info.Cached)
	assert.Contains(t, info.Columns, schema.TagsColumn)

	info.Columns[0] = "mutated"
	again, _ := r.Get("labels")
	assert.NotEqual(t, "mutated", again.Columns[0])

	require.NoError(t, r.Unregister("labels"))
	assert.ErrorIs(t, r.Unregister("labels"), ErrNotFound)
	_, ok = r.Get("labels")
	assert.False(t, ok)
	assert.Equal(t, []string{"notes"}, r.Names())
}

func TestHealthCheck(t *testing.T) {
	db := openDB(t)
	r := New(zerolog.Nop())
	ctx := context.Background()
	spy := testutil.NewSpyCache(nil)

	_, err := Register[note, int64](ctx, r, "notes", db,
		schema.MustDescribe[note]("notes", schema.SQLite), Options{
			Migrate: true,
			Engine:  []store.Option{store.WithCache(cache.Params{Client: spy})},
		})
	require.NoError(t, err)
	_, err = Register[label, string](ctx, r, "labels", db,
		schema.MustDescribe[label]("labels", schema.SQLite), Options{Migrate: true})
	require.NoError(t, err)

	results := r.HealthCheck(ctx)
	require.Len(t, results, 2)
	assert.Equal(t, "labels", results[0].Name)
	for _, h := range results {
		assert.True(t, h.OK(), h.Name)
	}

	require.NoError(t, db.Close())
	results = r.HealthCheck(ctx)
	for _, h := range results {
		assert.Error(t, h.Database)
		assert.False(t, h.OK())
	}
}

func TestHealthCheckCanceled(t *testing.T) {
	r := New(zerolog.Nop())
	db := openDB(t)
	_, err := Register[note, int64](context.Background(), r, "notes", db,
		schema.MustDescribe[note]("notes", schema.SQLite), Options{
			Migrate: true,
			Engine:  []store.Option{store.WithCache(cache.Params{Client: cache.NewMemoryClient()})},
		})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := r.HealthCheck(ctx)
	require.Len(t, results, 1)
	assert.True(t, errors.Is(results[0].Cache, context.Canceled))
}
