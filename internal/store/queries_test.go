package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storehaus/internal/cache"
	"github.com/roach88/storehaus/internal/query"
	"github.com/roach88/storehaus/internal/schema"
	"github.com/roach88/storehaus/internal/signal"
	"github.com/roach88/storehaus/internal/testutil"
	"github.com/roach88/storehaus/internal/value"
)

func seedWallets(t *testing.T, e *Engine[wallet, int64]) []wallet {
	t.Helper()
	ctx := context.Background()
	var out []wallet
	for _, w := range []struct {
		owner   string
		balance int64
		tags    []string
	}{
		{"alice", 100, []string{"vip", "eu"}},
		{"bob", 50, []string{"eu"}},
		{"carol", 0, []string{"vip-gold"}},
		{"dave", 75, nil},
	} {
		created, err := e.Create(ctx, wallet{Owner: w.owner, Balance: w.balance}, w.tags...)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func owners(ws []wallet) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Owner
	}
	return out
}

func TestFind(t *testing.T) {
	db := createTestDB(t)
	e := newWalletEngine(t, db)
	seedWallets(t, e)
	ctx := context.Background()

	tests := []struct {
		name string
		q    *query.Query
		want []string
	}{
		{"all", nil, []string{"alice", "bob", "carol", "dave"}},
		{"gte", query.New().Where(query.Gte("balance", 75)).Order("owner", query.Asc), []string{"alice", "dave"}},
		{"or group", query.New().Where(query.AnyOf(query.Eq("owner", "bob"), query.Eq("owner", "carol"))).Order("owner", query.Asc), []string{"bob", "carol"}},
		{"in", query.New().Where(query.In("owner", "alice", "dave")).Order("owner", query.Desc), []string{"dave", "alice"}},
		{"empty in", query.New().Where(query.In("owner")), []string{}},
		{"empty not in", query.New().Where(query.NotIn("owner")).Order("owner", query.Asc), []string{"alice", "bob", "carol", "dave"}},
		{"ilike", query.New().Where(query.ILike("owner", "AL%")), []string{"alice"}},
		{"limit offset", query.New().Order("owner", query.Asc).Take(2).Skip(1), []string{"bob", "carol"}},
		{"offset only", query.New().Order("owner", query.Asc).Skip(3), []string{"dave"}},
		{"any tag", query.New().Where(query.HasAnyTag("vip", "nope")), []string{"alice"}},
		{"all tags", query.New().Where(query.HasAllTags("vip", "eu")), []string{"alice"}},
		{"all tags no substring match", query.New().Where(query.HasAllTags("vip")), []string{"alice"}},
		{"single tag", query.New().Where(query.HasTag("eu")).Order("owner", query.Asc), []string{"alice", "bob"}},
		{"no tags required", query.New().Where(query.HasAllTags()).Order("owner", query.Asc), []string{"alice", "bob", "carol", "dave"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Find(ctx, tt.q)
			require.NoError(t, err)
			if tt.q == nil {
				assert.ElementsMatch(t, tt.want, owners(got))
				return
			}
			assert.Equal(t, tt.want, owners(got))
		})
	}
}

func TestFindOneAndCountWhere(t *testing.T) {
	db := createTestDB(t)
	e := newWalletEngine(t, db)
	seedWallets(t, e)
	ctx := context.Background()

	w, err := e.FindOne(ctx, query.New().Where(query.Gt("balance", 0)).Order("balance", query.Desc))
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "alice", w.Owner)

	none, err := e.FindOne(ctx, query.New().Where(query.Eq("owner", "zed")))
	require.NoError(t, err)
	assert.Nil(t, none)

	n, err := e.CountWhere(ctx, query.New().Where(query.HasTag("eu")).Take(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "limit does not apply to counts")
}

func TestFindJoined(t *testing.T) {
	db := createTestDB(t)
	wallets := newWalletEngine(t, db)
	users := newUserEngine(t, db)
	seedWallets(t, wallets)
	ctx := context.Background()

	_, err := users.Create(ctx, user{Name: "bob"})
	require.NoError(t, err)

	got, err := wallets.Find(ctx, query.New().
		Join(query.JoinOnFields(query.InnerJoin, "users", "wallets.owner", "users.name")).
		Where(query.Gt("wallets.balance", 10)))
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, owners(got))
}

func TestAggregate(t *testing.T) {
	db := createTestDB(t)
	e := newWalletEngine(t, db)
	seedWallets(t, e)
	ctx := context.Background()

	rows, err := e.Aggregate(ctx, query.New().
		Fields(query.Column("owner"), query.Aggregate(query.Sum, "balance").As("total")).
		GroupBy("owner").
		Having(query.Gt("SUM(balance)", 60)).
		Order("owner", query.Asc))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0]["owner"])
	assert.EqualValues(t, 100, rows[0]["total"])
	assert.Equal(t, "dave", rows[1]["owner"])

	rows, err = e.Aggregate(ctx, query.New().Fields(query.CountAll().As("n")))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 4, rows[0]["n"])
}

func TestFindCached(t *testing.T) {
	db := createTestDB(t)
	spy := testutil.NewSpyCache(nil)
	e := newWalletEngine(t, db, WithCache(cache.Params{Client: spy, Prefix: "t"}))
	seedWallets(t, e)
	ctx := context.Background()

	q := query.New().Where(query.HasTag("eu")).Order("owner", query.Asc)
	first, err := e.FindCached(ctx, q)
	require.NoError(t, err)
	second, err := e.FindCached(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, owners(first))
	assert.Equal(t, owners(first), owners(second))
	assert.Equal(t, 1, spy.Misses())
	assert.Equal(t, 1, spy.Hits())

	_, err = e.UpdateWhere(ctx, query.New().Where(query.Eq("owner", "dave")), query.NewUpdateSet().Set("balance", 1))
	require.NoError(t, err)

	_, err = e.FindCached(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, spy.Misses(), "mutation invalidated the query namespace")
}

func TestUpdateWhereIncrement(t *testing.T) {
	db := createTestDB(t)
	bus, rec := createTestBus(t)
	var logs bytes.Buffer
	log := zerolog.New(&logs).Level(zerolog.DebugLevel)
	e := newWalletEngine(t, db, WithBus(bus), WithLogger(log))
	ws := seedWallets(t, e)
	ctx := context.Background()
	rec.Reset()

	x := ws[1].ID
	q := query.New().Where(query.Eq("id", x))
	out, err := e.UpdateWhere(ctx, q, query.NewUpdateSet().Increment("balance", 100))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(150), out[0].Balance)

	assert.Contains(t, logs.String(), "UPDATE wallets SET balance = balance + $1, __updated_at__ = ")
	assert.Contains(t, logs.String(), "WHERE id = $2 RETURNING *")

	set, setParams, err := query.NewUpdateSet().Increment("balance", 100).Compile(schema.SQLite)
	require.NoError(t, err)
	where, whereParams, err := query.CompileFilters(q.Filters, schema.SQLite)
	require.NoError(t, err)
	_, params := query.UpdateWhere(schema.SQLite, "wallets", set, setParams, "WHERE "+where, whereParams, "")
	assert.Equal(t, []any{100, x}, params)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, signal.Update, events[0].Type)
	assert.Equal(t, value.Int(1), events[0].Payload[signal.UpdatedCountKey])
	assert.Equal(t, value.Array{value.Int(x)}, events[0].Payload[signal.IDsKey])
}

func TestUpdateWhereUsesQueryUpdates(t *testing.T) {
	db := createTestDB(t)
	e := newWalletEngine(t, db)
	seedWallets(t, e)
	ctx := context.Background()

	q := query.New().
		Where(query.HasTag("eu")).
		Update(query.NewUpdateSet().Multiply("balance", 2))
	out, err := e.UpdateWhere(ctx, q, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	total, err := e.Aggregate(ctx, query.New().Fields(query.Aggregate(query.Sum, "balance").As("s")))
	require.NoError(t, err)
	assert.EqualValues(t, 200+100+0+75, total[0]["s"])

	_, err = e.UpdateWhere(ctx, query.New(), nil)
	assert.True(t, IsValidationError(err))

	_, err = e.UpdateWhere(ctx, query.New().GroupBy("owner"), query.NewUpdateSet().Set("balance", 0))
	assert.True(t, IsValidationError(err))
}

func TestUpdateWhereSkipsSoftDeleted(t *testing.T) {
	db := createTestDB(t)
	e := newAccountEngine(t, db)
	ctx := context.Background()

	a, err := e.Create(ctx, account{Owner: "a"})
	require.NoError(t, err)
	_, err = e.Create(ctx, account{Owner: "b"})
	require.NoError(t, err)
	_, err = e.Delete(ctx, a.ID)
	require.NoError(t, err)

	out, err := e.OverwriteWhere(ctx, nil, account{Owner: "renamed"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "renamed", out[0].Owner)

	old, err := e.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", old.Owner)
}

func TestDeleteWhere(t *testing.T) {
	db := createTestDB(t)
	bus, rec := createTestBus(t)
	e := newWalletEngine(t, db, WithBus(bus))
	ws := seedWallets(t, e)
	ctx := context.Background()
	rec.Reset()

	ids, err := e.DeleteWhere(ctx, query.New().Where(query.Lt("balance", 60)))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{ws[1].ID, ws[2].ID}, ids)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, signal.Delete, events[0].Type)
	assert.Equal(t, value.Int(2), events[0].Payload[signal.DeletedCountKey])

	ids, err = e.DeleteWhere(ctx, query.New().Where(query.Eq("owner", "nobody")))
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, rec.Len(), "no event when nothing was deleted")
}

func TestDeleteWhereWithoutPrimaryKey(t *testing.T) {
	db := createTestDB(t)
	desc := schema.MustDescribe[auditEntry]("audit", schema.SQLite)
	require.NoError(t, db.EnsureTables(context.Background(), desc))
	e, err := NewEngine[auditEntry, int64](db, desc)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Create(ctx, auditEntry{Message: "a"})
	require.NoError(t, err)

	ids, err := e.DeleteWhere(ctx, query.New().Where(query.Eq("message", "a")))
	require.NoError(t, err)
	assert.Empty(t, ids)

	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExecutorVariantsDeferEvents(t *testing.T) {
	db := createTestDB(t)
	bus, rec := createTestBus(t)
	spy := testutil.NewSpyCache(nil)
	e := newWalletEngine(t, db, WithBus(bus), WithCache(cache.Params{Client: spy}))
	ws := seedWallets(t, e)
	ctx := context.Background()
	rec.Reset()
	spy.Reset()

	var updated []wallet
	var deleted []int64
	err := db.InTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		updated, err = e.UpdateWhereWithExecutor(ctx, tx,
			query.New().Where(query.Eq("owner", "alice")),
			query.NewUpdateSet().Decrement("balance", 30))
		if err != nil {
			return err
		}
		deleted, err = e.DeleteWhereWithExecutor(ctx, tx, query.New().Where(query.Eq("owner", "dave")))
		if err != nil {
			return err
		}
		_, err = e.UpdateManyWithExecutor(ctx, tx, []Change[int64, wallet]{
			{ID: ws[1].ID, Record: wallet{Owner: "bobby", Balance: 1}},
		})
		return err
	})
	require.NoError(t, err)

	assert.Zero(t, rec.Len(), "executor variants emit nothing")
	assert.Empty(t, spy.Deletes())
	assert.Empty(t, spy.Patterns())

	e.PublishUpdate(ctx, updated)
	e.PublishDelete(ctx, deleted)
	require.Equal(t, 2, rec.Len())
	assert.Equal(t, signal.Update, rec.Events()[0].Type)
	assert.Equal(t, signal.Delete, rec.Events()[1].Type)
	assert.Len(t, spy.Patterns(), 2)

	got, err := e.GetByID(ctx, ws[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(70), got.Balance)
}

func TestExecutorVariantsRollBack(t *testing.T) {
	db := createTestDB(t)
	e := newWalletEngine(t, db)
	ws := seedWallets(t, e)
	ctx := context.Background()

	err := db.InTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := e.DeleteWhereWithExecutor(ctx, tx, query.New().Where(query.Eq("owner", "bob"))); err != nil {
			return err
		}
		_, err := e.UpdateWhereWithExecutor(ctx, tx,
			query.New().Where(query.Eq("id", ws[0].ID)),
			query.NewUpdateSet().Set("balance", -5))
		return err
	})
	require.Error(t, err)

	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
