package store

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/roach88/storehaus/internal/schema"
)

// Executor is anything statements can run against: a *DB's handle or an
// open transaction.
type Executor = sqlx.ExtContext

// DBConfig configures Open.
type DBConfig struct {
	// Dialect picks the driver: SQLite (mattn/go-sqlite3) or Postgres
	// (pgx stdlib).
	Dialect schema.Dialect
	DSN     string

	MaxConnections  int
	MinConnections  int
	ConnectTimeout  time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// DB is a connection pool bound to one dialect. It is shared by every
// engine built on it and safe for concurrent use.
type DB struct {
	x       *sqlx.DB
	dialect schema.Dialect
	log     zerolog.Logger
}

// Open connects to the database described by cfg and verifies the
// connection.
//
// SQLite databases are configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// and a single open connection, since SQLite allows one writer.
func Open(ctx context.Context, cfg DBConfig, log zerolog.Logger) (*DB, error) {
	if cfg.DSN == "" {
		return nil, configurationError("open", "database dsn is required")
	}
	if cfg.Dialect != schema.SQLite && cfg.Dialect != schema.Postgres {
		return nil, configurationError("open", "unsupported dialect %q", cfg.Dialect)
	}

	x, err := sqlx.Open(cfg.Dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, connectionError("open", fmt.Errorf("failed to open database: %w", err))
	}

	if cfg.Dialect == schema.SQLite {
		x.SetMaxOpenConns(1)
		x.SetMaxIdleConns(1)
	} else {
		if cfg.MaxConnections > 0 {
			x.SetMaxOpenConns(cfg.MaxConnections)
		}
		if cfg.MinConnections > 0 {
			x.SetMaxIdleConns(cfg.MinConnections)
		}
	}
	if cfg.ConnMaxIdleTime > 0 {
		x.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		x.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := x.PingContext(pingCtx); err != nil {
		x.Close()
		return nil, connectionError("open", fmt.Errorf("failed to connect to database: %w", err))
	}

	if cfg.Dialect == schema.SQLite {
		if err := applyPragmas(ctx, x); err != nil {
			x.Close()
			return nil, connectionError("open", fmt.Errorf("failed to apply pragmas: %w", err))
		}
	}

	log.Debug().Str("dialect", string(cfg.Dialect)).Msg("database opened")
	return &DB{x: x, dialect: cfg.Dialect, log: log}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, x *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := x.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Dialect returns the SQL dialect of the connection.
func (db *DB) Dialect() schema.Dialect { return db.dialect }

// X returns the underlying sqlx handle.
func (db *DB) X() *sqlx.DB { return db.x }

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.x.PingContext(ctx); err != nil {
		return connectionError("ping", err)
	}
	return nil
}

// Close closes the pool.
func (db *DB) Close() error {
	if db.x == nil {
		return nil
	}
	return db.x.Close()
}

// EnsureTables creates the tables of the given descriptors if they do
// not exist.
func (db *DB) EnsureTables(ctx context.Context, descs ...*schema.Descriptor) error {
	for _, d := range descs {
		if d.Dialect() != db.dialect {
			return configurationError("ensure_tables", "table %s is described for %s, database is %s",
				d.TableName(), d.Dialect(), db.dialect)
		}
		stmt := d.CreateTableSQL()
		if _, err := db.x.ExecContext(ctx, stmt); err != nil {
			return queryError(d.TableName(), "ensure_tables", stmt, err)
		}
	}
	return nil
}

// Begin starts a transaction. The caller must Commit or Rollback it.
func (db *DB) Begin(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := db.x.BeginTxx(ctx, nil)
	if err != nil {
		return nil, transactionError("", "begin", err)
	}
	return tx, nil
}

// InTx runs fn inside a transaction, committing if fn returns nil and
// rolling back otherwise. A panic in fn rolls back and re-panics.
func (db *DB) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.log.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return transactionError("", "commit", err)
	}
	return nil
}
