package schema

import (
	"fmt"
	"strings"

	"github.com/mickamy/ormfields/orm"
)

// DDL returns the CREATE TABLE statements for every model and join table
// in the registry. Tables are created without foreign key constraints, so
// the statements may run in any order.
func (r *Registry) DDL(d orm.Dialect) []string {
	var stmts []string
	for _, m := range r.order {
		stmts = append(stmts, createTable(d, m))
		for _, f := range m.ManyToMany() {
			stmts = append(stmts, createJoinTable(d, f.Through))
		}
	}
	return stmts
}

func createTable(d orm.Dialect, m *Model) string {
	qi := d.QuoteIdent
	defs := make([]string, 0, len(m.fields))
	for _, f := range m.Columns() {
		if f.Primary {
			defs = append(defs, qi(f.Column)+" "+d.PrimaryKeyDef())
			continue
		}
		def := qi(f.Column) + " " + d.ColumnDef(f.ColumnType(), f.Size)
		if !f.Null {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", qi(m.Table), strings.Join(defs, ",\n    "))
}

func createJoinTable(d orm.Dialect, jt orm.JoinTable) string {
	qi := d.QuoteIdent
	key := d.ColumnDef(orm.ColumnInt, 0) + " NOT NULL"
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n    %s %s,\n    %s %s,\n    PRIMARY KEY (%s, %s)\n)",
		qi(jt.Table),
		qi(jt.SourceColumn), key,
		qi(jt.TargetColumn), key,
		qi(jt.SourceColumn), qi(jt.TargetColumn),
	)
}
