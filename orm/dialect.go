package orm

import (
	"fmt"
	"strings"
)

// ColumnType is the storage class of a column, independent of the engine.
type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnInt
	ColumnBool
	ColumnFloat
)

// Dialect abstracts SQL differences between database engines.
type Dialect interface {
	// Name returns the short dialect name ("mysql", "postgres", "sqlite").
	Name() string

	// Placeholder returns the bind parameter placeholder for the given
	// 1-based index. MySQL and SQLite return "?" regardless of index;
	// PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteIdent quotes an identifier (table name, column name) to safely
	// handle SQL reserved words. MySQL uses backticks; the others use
	// double quotes.
	QuoteIdent(name string) string

	// UseReturning reports whether INSERT should use a RETURNING clause
	// to retrieve the auto-generated primary key rather than relying on
	// LastInsertId.
	UseReturning() bool

	// ReturningClause returns the RETURNING clause appended to INSERT
	// statements. Returns an empty string for dialects that do not
	// support RETURNING (MySQL).
	ReturningClause(pk string) string

	// ColumnDef returns the column type used in CREATE TABLE statements.
	// size is honoured for text columns when positive.
	ColumnDef(t ColumnType, size int) string

	// PrimaryKeyDef returns the full definition of an auto-generated
	// integer primary key column, without the column name.
	PrimaryKeyDef() string
}

// MySQL is the Dialect for MySQL / MariaDB.
var MySQL Dialect = mysqlDialect{}

// PostgreSQL is the Dialect for PostgreSQL.
var PostgreSQL Dialect = postgresDialect{}

// SQLite is the Dialect for SQLite (modernc.org/sqlite, mattn/go-sqlite3).
var SQLite Dialect = sqliteDialect{}

// DialectByName returns the Dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return PostgreSQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("orm: unknown dialect %q", name)
	}
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string                    { return "mysql" }
func (mysqlDialect) Placeholder(_ int) string        { return "?" }
func (mysqlDialect) QuoteIdent(name string) string   { return "`" + name + "`" }
func (mysqlDialect) UseReturning() bool              { return false }
func (mysqlDialect) ReturningClause(_ string) string { return "" }
func (mysqlDialect) PrimaryKeyDef() string           { return "BIGINT AUTO_INCREMENT PRIMARY KEY" }

func (mysqlDialect) ColumnDef(t ColumnType, size int) string {
	switch t {
	case ColumnInt:
		return "BIGINT"
	case ColumnBool:
		return "BOOLEAN"
	case ColumnFloat:
		return "DOUBLE"
	default:
		if size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", size)
		}
		return "LONGTEXT"
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string                     { return "postgres" }
func (postgresDialect) Placeholder(index int) string     { return fmt.Sprintf("$%d", index) }
func (postgresDialect) QuoteIdent(name string) string    { return `"` + name + `"` }
func (postgresDialect) UseReturning() bool               { return true }
func (postgresDialect) ReturningClause(pk string) string { return ` RETURNING "` + pk + `"` }
func (postgresDialect) PrimaryKeyDef() string            { return "BIGSERIAL PRIMARY KEY" }

func (postgresDialect) ColumnDef(t ColumnType, size int) string {
	switch t {
	case ColumnInt:
		return "BIGINT"
	case ColumnBool:
		return "BOOLEAN"
	case ColumnFloat:
		return "DOUBLE PRECISION"
	default:
		if size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", size)
		}
		return "TEXT"
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string                     { return "sqlite" }
func (sqliteDialect) Placeholder(_ int) string         { return "?" }
func (sqliteDialect) QuoteIdent(name string) string    { return `"` + name + `"` }
func (sqliteDialect) UseReturning() bool               { return true }
func (sqliteDialect) ReturningClause(pk string) string { return ` RETURNING "` + pk + `"` }
func (sqliteDialect) PrimaryKeyDef() string            { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (sqliteDialect) ColumnDef(t ColumnType, _ int) string {
	switch t {
	case ColumnInt, ColumnBool:
		return "INTEGER"
	case ColumnFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// rebind converts ? placeholders to dialect-specific placeholders.
// Dialects whose placeholder is already "?" are returned unchanged.
func rebind(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query))
	idx := 1
	for i := range len(query) {
		if query[i] == '?' {
			b.WriteString(d.Placeholder(idx))
			idx++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
