package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storehaus/internal/schema"
	"github.com/roach88/storehaus/internal/signal"
	"github.com/roach88/storehaus/internal/testutil"
)

type user struct {
	ID    int64   `db:"id" store:"pk"`
	Name  string  `db:"name" store:"create,update"`
	Email *string `db:"email" store:"create,update"`
	schema.Meta
}

type account struct {
	ID     string `db:"id" store:"pk,uuid"`
	Owner  string `db:"owner" store:"create,update"`
	Active bool   `db:"is_active" store:"softdelete"`
	schema.Meta
}

type wallet struct {
	ID      int64  `db:"id" store:"pk"`
	Owner   string `db:"owner" store:"create,update"`
	Balance int64  `db:"balance" store:"create,update"`
	schema.Meta
}

type auditEntry struct {
	Message string `db:"message" store:"create"`
	schema.Meta
}

// walletsDDL adds a CHECK constraint the descriptor cannot express, so
// tests can make a single update fail on the backend.
const walletsDDL = `CREATE TABLE wallets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  owner TEXT NOT NULL,
  balance INTEGER NOT NULL CHECK (balance >= 0),
  __created_at__ TIMESTAMP NOT NULL,
  __updated_at__ TIMESTAMP NOT NULL,
  __tags__ TEXT NOT NULL DEFAULT '[]'
)`

// createTestDB opens a fresh SQLite database in a temp dir.
func createTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(context.Background(), DBConfig{Dialect: schema.SQLite, DSN: path}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestBus returns a bus with a recorder subscribed.
func createTestBus(t *testing.T) (*signal.Bus, *testutil.EventRecorder) {
	t.Helper()
	bus := signal.New(signal.DefaultConfig(), signal.WithIDGenerator(testutil.NewFixedIDGenerator("ev")))
	rec := testutil.NewEventRecorder()
	_, err := bus.Subscribe(rec.Handle)
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	return bus, rec
}

func newUserEngine(t *testing.T, db *DB, opts ...Option) *Engine[user, int64] {
	t.Helper()
	desc := schema.MustDescribe[user]("users", schema.SQLite)
	require.NoError(t, db.EnsureTables(context.Background(), desc))
	e, err := NewEngine[user, int64](db, desc, opts...)
	require.NoError(t, err)
	return e
}

func newAccountEngine(t *testing.T, db *DB, opts ...Option) *Engine[account, string] {
	t.Helper()
	desc := schema.MustDescribe[account]("accounts", schema.SQLite)
	require.NoError(t, db.EnsureTables(context.Background(), desc))
	e, err := NewEngine[account, string](db, desc, opts...)
	require.NoError(t, err)
	return e
}

func newWalletEngine(t *testing.T, db *DB, opts ...Option) *Engine[wallet, int64] {
	t.Helper()
	_, err := db.X().Exec(walletsDDL)
	require.NoError(t, err)
	e, err := NewEngine[wallet, int64](db, schema.MustDescribe[wallet]("wallets", schema.SQLite), opts...)
	require.NoError(t, err)
	return e
}

func strPtr(s string) *string { return &s }
