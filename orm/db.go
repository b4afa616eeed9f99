package orm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is what stores and relation managers run statements on.
// Both *DB and *Tx implement it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	dialect() Dialect
}

// Logger receives every statement sent through a *DB created by Debug
// and through its transactions.
type Logger interface {
	Log(ctx context.Context, query string, args ...any)
}

// runner is the statement surface shared by *sql.DB and *sql.Tx.
type runner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type conn struct {
	run    runner
	d      Dialect
	logger Logger
}

func (c conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.log(ctx, query, args)
	return c.run.QueryContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

func (c conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.log(ctx, query, args)
	return c.run.ExecContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

func (c conn) log(ctx context.Context, query string, args []any) {
	if c.logger != nil {
		c.logger.Log(ctx, query, args...)
	}
}

func (c conn) dialect() Dialect { return c.d }

// DB is a *sql.DB bound to a Dialect.
type DB struct {
	conn
	raw *sql.DB
}

// New binds db to the given Dialect.
func New(db *sql.DB, d Dialect) *DB {
	return &DB{conn: conn{run: db, d: d}, raw: db}
}

// Debug returns a copy of db that passes every statement to l.
func (db *DB) Debug(l Logger) *DB {
	c := *db
	c.logger = l
	return &c
}

// Begin starts a transaction that logs like db does.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.raw.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("orm: begin: %w", err)
	}
	return &Tx{conn: conn{run: tx, d: db.d, logger: db.logger}, raw: tx}, nil
}

// Transaction runs fn in a transaction. It commits when fn returns nil and
// rolls back when fn fails or panics.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
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
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("orm: rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("orm: commit: %w", err)
	}
	return nil
}

// Close closes the underlying *sql.DB.
func (db *DB) Close() error { return db.raw.Close() } //nolint:wrapcheck // thin wrapper

// Tx is a *sql.Tx bound to a Dialect.
type Tx struct {
	conn
	raw *sql.Tx
}

func (tx *Tx) Commit() error { return tx.raw.Commit() } //nolint:wrapcheck // thin wrapper

func (tx *Tx) Rollback() error { return tx.raw.Rollback() } //nolint:wrapcheck // thin wrapper

// DialectOf returns the Dialect q speaks.
func DialectOf(q Querier) Dialect { return q.dialect() }

// Atomic runs fn inside a transaction when q is a *DB. Any other Querier
// is handed to fn unchanged, leaving an open transaction in charge.
func Atomic(ctx context.Context, q Querier, fn func(q Querier) error) error {
	db, ok := q.(*DB)
	if !ok {
		return fn(q)
	}
	return db.Transaction(ctx, func(tx *Tx) error { return fn(tx) })
}

// Exec rebinds ? placeholders for q's dialect and executes the statement.
func Exec(ctx context.Context, q Querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, rebind(q.dialect(), query), args...) //nolint:wrapcheck // pass through
}
