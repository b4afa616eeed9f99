package orm

import (
	"context"
	"database/sql"
	"errors"
)

var errNoRows = errors.New("orm test: querier returns no rows")

// TestQuerier records statements instead of running them. Reads fail
// with errNoRows and writes report zero rows affected.
type TestQuerier struct {
	D       Dialect
	Queries []TestQuery
}

// TestQuery is one recorded statement.
type TestQuery struct {
	SQL  string
	Args []any
}

func NewTestQuerier(d Dialect) *TestQuerier { return &TestQuerier{D: d} }

func (tq *TestQuerier) QueryContext(_ context.Context, query string, args ...any) (*sql.Rows, error) {
	tq.record(query, args)
	return nil, errNoRows
}

func (tq *TestQuerier) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	tq.record(query, args)
	return driverResult(0), nil
}

// LastQuery panics when nothing was recorded.
func (tq *TestQuerier) LastQuery() TestQuery { return tq.Queries[len(tq.Queries)-1] }

func (tq *TestQuerier) record(query string, args []any) {
	tq.Queries = append(tq.Queries, TestQuery{SQL: query, Args: args})
}

func (tq *TestQuerier) dialect() Dialect { return tq.D }

type driverResult int64

func (r driverResult) LastInsertId() (int64, error) { return int64(r), nil }
func (r driverResult) RowsAffected() (int64, error) { return int64(r), nil }
