package orm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mickamy/ormfields/scope"
)

// ScanFunc scans a single row into T.
type ScanFunc[T any] func(rows *sql.Rows) (T, error)

// ColumnValueFunc extracts column names and their values from a *T.
// When includesPK is false the primary key column is excluded (for INSERT
// with auto-increment).
type ColumnValueFunc[T any] func(t *T, includesPK bool) (columns []string, values []any)

// SetPKFunc sets the auto-generated primary key on *T after INSERT.
// May be nil when the primary key is not auto-generated.
type SetPKFunc[T any] func(t *T, id int64)

// PreloaderFunc executes a preload query and assigns results to the parent slice.
type PreloaderFunc[T any] func(ctx context.Context, db Querier, results []T) error

// JoinConfig holds the metadata needed to build a JOIN clause at runtime.
// When Alias is set the target table is joined under that alias and the ON
// clause refers to it; SourceTable may itself be an alias.
type JoinConfig struct {
	TargetTable  string
	TargetColumn string
	SourceTable  string
	SourceColumn string
	Alias        string
}

// Query represents a pending query against a single table.
// All builder methods return a new Query; the receiver is never modified.
type Query[T any] struct {
	db          Querier
	table       string
	alias       string
	columns     []string
	pk          string
	scan        ScanFunc[T]
	colValPairs ColumnValueFunc[T]
	setPK       SetPKFunc[T]

	wheres   []whereClause
	orderBys []string
	joins    []string
	limit    *int

	joinDefs   map[string]JoinConfig
	preloaders map[string]PreloaderFunc[T]
	preloads   []string
}

type whereClause struct {
	clause string
	args   []any
}

// NewQuery builds a Query for table. colValPairs and setPK may be nil for
// read-only queries.
func NewQuery[T any](
	db Querier,
	table string,
	columns []string,
	pk string,
	scan ScanFunc[T],
	colValPairs ColumnValueFunc[T],
	setPK SetPKFunc[T],
) *Query[T] {
	return &Query[T]{
		db:          db,
		table:       table,
		columns:     columns,
		pk:          pk,
		scan:        scan,
		colValPairs: colValPairs,
		setPK:       setPK,
	}
}

// RegisterJoin registers a named join definition for use with LeftJoin.
func (q *Query[T]) RegisterJoin(name string, cfg JoinConfig) {
	if q.joinDefs == nil {
		q.joinDefs = make(map[string]JoinConfig)
	}
	q.joinDefs[name] = cfg
}

// RegisterPreloader registers a named preloader for use with Preload.
func (q *Query[T]) RegisterPreloader(name string, fn PreloaderFunc[T]) {
	if q.preloaders == nil {
		q.preloaders = make(map[string]PreloaderFunc[T])
	}
	q.preloaders[name] = fn
}

// clone returns a shallow copy with slices copied to avoid aliasing.
func (q *Query[T]) clone() *Query[T] {
	q2 := *q
	q2.wheres = append([]whereClause(nil), q.wheres...)
	q2.orderBys = append([]string(nil), q.orderBys...)
	q2.joins = append([]string(nil), q.joins...)
	q2.preloads = append([]string(nil), q.preloads...)
	return &q2
}

// As names the base table in SELECT and COUNT statements. Selected columns
// are qualified with the alias so that joined tables cannot shadow them.
func (q *Query[T]) As(alias string) *Query[T] {
	q2 := q.clone()
	q2.alias = alias
	return q2
}

// WithDB returns a copy of the query that runs on db, typically a *Tx.
func (q *Query[T]) WithDB(db Querier) *Query[T] {
	q2 := q.clone()
	q2.db = db
	return q2
}

func (q *Query[T]) Where(clause string, args ...any) *Query[T] {
	q2 := q.clone()
	q2.wheres = append(q2.wheres, whereClause{clause, args})
	return q2
}

func (q *Query[T]) OrderBy(clause string) *Query[T] {
	q2 := q.clone()
	q2.orderBys = append(q2.orderBys, clause)
	return q2
}

func (q *Query[T]) Limit(n int) *Query[T] {
	q2 := q.clone()
	q2.limit = &n
	return q2
}

// LeftJoin adds a LEFT JOIN for the relation registered as name. Unknown
// names and joins already present are ignored. Rows without a match keep
// NULL in the joined columns, which is what lookups through a missing
// parent compare against.
func (q *Query[T]) LeftJoin(name string) *Query[T] {
	cfg, ok := q.joinDefs[name]
	if !ok {
		return q
	}
	ref, target := cfg.TargetTable, q.qi(cfg.TargetTable)
	if cfg.Alias != "" {
		ref = cfg.Alias
		target += " AS " + q.qi(cfg.Alias)
	}
	clause := "LEFT JOIN " + target + " ON " +
		q.qi(ref) + "." + q.qi(cfg.TargetColumn) + " = " +
		q.qi(cfg.SourceTable) + "." + q.qi(cfg.SourceColumn)
	if slices.Contains(q.joins, clause) {
		return q
	}
	q2 := q.clone()
	q2.joins = append(q2.joins, clause)
	return q2
}

// Preload registers a relation to be eagerly loaded after the main query.
func (q *Query[T]) Preload(name string) *Query[T] {
	q2 := q.clone()
	q2.preloads = append(q2.preloads, name)
	return q2
}

// Scopes applies the given scope.Scope values to the query.
func (q *Query[T]) Scopes(scopes ...scope.Scope) *Query[T] {
	q2 := q.clone()
	for _, s := range scopes {
		s.Apply(q2)
	}
	return q2
}

func (q *Query[T]) ApplyWhere(clause string, args []any) {
	q.wheres = append(q.wheres, whereClause{clause, args})
}

func (q *Query[T]) ApplyOrderBy(clause string) {
	q.orderBys = append(q.orderBys, clause)
}

func (q *Query[T]) ApplyLimit(n int) { q.limit = &n }

var _ scope.Applier = (*Query[any])(nil)

// All executes a SELECT and returns all matching rows.
func (q *Query[T]) All(ctx context.Context) ([]T, error) {
	query, args := q.buildSelect()
	query = rebind(q.db.dialect(), query)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var result []T
	for rows.Next() {
		item, err := q.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}

	for _, name := range q.preloads {
		fn, ok := q.preloaders[name]
		if !ok {
			return nil, fmt.Errorf("orm: unknown preload %q", name)
		}
		if err := fn(ctx, q.db, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// First executes a SELECT with LIMIT 1 and returns the first row.
// Returns ErrNotFound if no rows match.
func (q *Query[T]) First(ctx context.Context) (T, error) {
	q2 := q.Limit(1)
	items, err := q2.All(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if len(items) == 0 {
		var zero T
		return zero, ErrNotFound
	}
	return items[0], nil
}

// Count returns the number of rows matching the current query conditions.
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	query, args := q.buildCount()
	query = rebind(q.db.dialect(), query)

	var count int64
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return 0, errors.New("orm: COUNT returned no rows")
	}
	if err := rows.Scan(&count); err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return count, rows.Err() //nolint:wrapcheck // pass through
}

// Exists returns true if at least one row matches the current query conditions.
func (q *Query[T]) Exists(ctx context.Context) (bool, error) {
	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a new row. If setPK is set, the primary key is populated
// via RETURNING (PostgreSQL, SQLite) or LastInsertId (MySQL).
func (q *Query[T]) Create(ctx context.Context, t *T) error {
	return q.insert(ctx, []*T{t})
}

// CreateAll inserts items with a single multi-row INSERT. Without RETURNING
// and with generated keys the rows are inserted one at a time, since
// LastInsertId only reports one of them.
func (q *Query[T]) CreateAll(ctx context.Context, items []*T) error {
	if len(items) == 0 {
		return nil
	}
	if q.setPK != nil && !q.db.dialect().UseReturning() {
		for _, item := range items {
			if err := q.insert(ctx, []*T{item}); err != nil {
				return err
			}
		}
		return nil
	}
	return q.insert(ctx, items)
}

func (q *Query[T]) insert(ctx context.Context, items []*T) error {
	generated := q.setPK != nil
	columns, _ := q.colValPairs(items[0], !generated)
	var values []any
	for _, item := range items {
		_, vals := q.colValPairs(item, !generated)
		values = append(values, vals...)
	}

	d := q.db.dialect()
	query := rebind(d, q.buildInsert(columns, len(items)))
	if !generated {
		_, err := q.db.ExecContext(ctx, query, values...)
		return err //nolint:wrapcheck // pass through
	}

	if d.UseReturning() {
		rows, err := q.db.QueryContext(ctx, query+d.ReturningClause(q.pk), values...)
		if err != nil {
			return err //nolint:wrapcheck // pass through
		}
		defer func() { _ = rows.Close() }()
		n := 0
		for ; rows.Next() && n < len(items); n++ {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err //nolint:wrapcheck // pass through
			}
			q.setPK(items[n], id)
		}
		if err := rows.Err(); err != nil {
			return err //nolint:wrapcheck // pass through
		}
		if n != len(items) {
			return fmt.Errorf("orm: INSERT RETURNING returned %d of %d keys", n, len(items))
		}
		return nil
	}

	result, err := q.db.ExecContext(ctx, query, values...)
	if err != nil {
		return err //nolint:wrapcheck // pass through
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err //nolint:wrapcheck // pass through
	}
	q.setPK(items[0], id)
	return nil
}

// Update updates the row identified by the primary key of t.
// All non-PK columns are SET.
func (q *Query[T]) Update(ctx context.Context, t *T) error {
	allCols, allVals := q.colValPairs(t, true)

	var setCols []string
	var setVals []any
	var pkVal any
	for i, col := range allCols {
		if col == q.pk {
			pkVal = allVals[i]
		} else {
			setCols = append(setCols, col)
			setVals = append(setVals, allVals[i])
		}
	}
	if pkVal == nil {
		return errors.New("orm: primary key value is required for Update")
	}
	if len(setCols) == 0 {
		return nil
	}

	setVals = append(setVals, pkVal)
	query := rebind(q.db.dialect(), q.buildUpdate(setCols))

	_, err := q.db.ExecContext(ctx, query, setVals...)
	return err //nolint:wrapcheck // pass through
}

// UpdateColumns sets only the given columns on rows matching the accumulated
// WHERE clauses.
func (q *Query[T]) UpdateColumns(ctx context.Context, columns []string, values []any) error {
	if len(q.wheres) == 0 {
		return errors.New("orm: UpdateColumns without WHERE clause is not allowed")
	}
	sets := make([]string, len(columns))
	for i, col := range columns {
		sets[i] = q.qi(col) + " = ?"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s", q.qi(q.table), strings.Join(sets, ", "))
	args := append(append([]any(nil), values...), q.appendWhere(&b)...)

	_, err := q.db.ExecContext(ctx, rebind(q.db.dialect(), b.String()), args...)
	return err //nolint:wrapcheck // pass through
}

// Delete deletes rows matching the accumulated WHERE clauses.
// Returns ErrNoWhere if no WHERE clauses are set (safety guard).
func (q *Query[T]) Delete(ctx context.Context) error {
	if len(q.wheres) == 0 {
		return ErrNoWhere
	}
	query, args := q.buildDelete()
	query = rebind(q.db.dialect(), query)

	_, err := q.db.ExecContext(ctx, query, args...)
	return err //nolint:wrapcheck // pass through
}

// ToSQL returns the SELECT statement the query would run, with ?
// placeholders, and its arguments.
func (q *Query[T]) ToSQL() (string, []any) {
	return q.buildSelect()
}

// qi quotes an identifier (table/column name) using the dialect.
func (q *Query[T]) qi(name string) string {
	return q.db.dialect().QuoteIdent(name)
}

// quoteColumns joins column names with dialect-aware quoting.
func (q *Query[T]) quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = q.qi(c)
	}
	return strings.Join(quoted, ", ")
}

// from renders the FROM target, with alias when set.
func (q *Query[T]) from() string {
	if q.alias == "" {
		return q.qi(q.table)
	}
	return q.qi(q.table) + " AS " + q.qi(q.alias)
}

func (q *Query[T]) buildSelect() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")

	if q.alias == "" {
		b.WriteString(q.quoteColumns(q.columns))
	} else {
		quoted := make([]string, len(q.columns))
		for i, c := range q.columns {
			quoted[i] = q.qi(q.alias) + "." + q.qi(c)
		}
		b.WriteString(strings.Join(quoted, ", "))
	}

	b.WriteString(" FROM ")
	b.WriteString(q.from())

	for _, j := range q.joins {
		b.WriteByte(' ')
		b.WriteString(j)
	}

	args := q.appendWhere(&b)

	if len(q.orderBys) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.orderBys, ", "))
	}

	if q.limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *q.limit)
	}

	return b.String(), args
}

func (q *Query[T]) buildCount() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(q.from())

	for _, j := range q.joins {
		b.WriteByte(' ')
		b.WriteString(j)
	}

	args := q.appendWhere(&b)
	return b.String(), args
}

// buildInsert renders an INSERT of n rows. A model whose only column is
// the generated key inserts defaults.
func (q *Query[T]) buildInsert(columns []string, n int) string {
	if len(columns) == 0 {
		if q.db.dialect().Name() == "mysql" {
			return "INSERT INTO " + q.qi(q.table) + " () VALUES ()"
		}
		return "INSERT INTO " + q.qi(q.table) + " DEFAULT VALUES"
	}
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		q.qi(q.table),
		q.quoteColumns(columns),
		strings.TrimSuffix(strings.Repeat(row+", ", n), ", "),
	)
}

func (q *Query[T]) buildUpdate(setCols []string) string {
	sets := make([]string, len(setCols))
	for i, col := range setCols {
		sets[i] = q.qi(col) + " = ?"
	}
	return fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = ?",
		q.qi(q.table),
		strings.Join(sets, ", "),
		q.qi(q.pk),
	)
}

func (q *Query[T]) buildDelete() (string, []any) {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(q.qi(q.table))
	args := q.appendWhere(&b)
	return b.String(), args
}

func (q *Query[T]) appendWhere(b *strings.Builder) []any {
	if len(q.wheres) == 0 {
		return nil
	}

	var args []any
	b.WriteString(" WHERE ")
	for i, w := range q.wheres {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(w.clause)
		args = append(args, w.args...)
	}
	return args
}
