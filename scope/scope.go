package scope

import "strings"

// Applier is implemented by query builders to receive scope fragments.
// This interface lives in the scope package so that orm can import scope
// without creating circular dependencies.
type Applier interface {
	ApplyWhere(clause string, args []any)
	ApplyOrderBy(clause string)
	ApplyLimit(n int)
}

type scopeKind int

const (
	kindWhere scopeKind = iota
	kindOrderBy
	kindLimit
)

// Scope represents a single query condition fragment.
// Scopes are immutable and safe to reuse across queries.
type Scope struct {
	kind   scopeKind
	clause string
	args   []any
	n      int
}

// Apply dispatches this Scope to the given Applier.
func (s Scope) Apply(a Applier) {
	switch s.kind {
	case kindWhere:
		a.ApplyWhere(s.clause, s.args)
	case kindOrderBy:
		a.ApplyOrderBy(s.clause)
	case kindLimit:
		a.ApplyLimit(s.n)
	}
}

// Where returns a Scope that adds a WHERE clause fragment.
//
//	scope.Where(`"t0"."is_foo_inherited" = ?`, false)
func Where(clause string, args ...any) Scope {
	return Scope{kind: kindWhere, clause: clause, args: args}
}

// OrderBy returns a Scope that sets the ORDER BY clause.
//
//	scope.OrderBy(`"t0"."id" DESC`)
func OrderBy(clause string) Scope {
	return Scope{kind: kindOrderBy, clause: clause}
}

// Limit returns a Scope that sets the LIMIT.
func Limit(n int) Scope {
	return Scope{kind: kindLimit, n: n}
}

// In returns a WHERE scope with an IN clause, expanding the slice into
// individual placeholders. An empty slice matches nothing.
//
//	scope.In(`"tag_id"`, []int64{1, 2, 3}) // → "tag_id" IN (?, ?, ?)
func In[T any](column string, values []T) Scope {
	if len(values) == 0 {
		return Where("1 = 0")
	}
	placeholders := repeatJoin("?", len(values))
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return Where(column+" IN ("+placeholders+")", args...)
}

// Or returns a WHERE scope joining the WHERE clauses of the given scopes
// with OR. Non-WHERE scopes are ignored. With no clauses the result
// matches nothing.
//
//	scope.Or(scope.Where("a = ?", 1), scope.Where("b = ?", 2)) // (a = ?) OR (b = ?)
func Or(scopes ...Scope) Scope {
	return combine(" OR ", "1 = 0", scopes)
}

// And returns a WHERE scope joining the WHERE clauses of the given scopes
// with AND. With no clauses the result matches everything.
func And(scopes ...Scope) Scope {
	return combine(" AND ", "1 = 1", scopes)
}

func combine(sep, empty string, scopes []Scope) Scope {
	var clauses []string
	var args []any
	for _, s := range scopes {
		if s.kind != kindWhere {
			continue
		}
		clauses = append(clauses, s.clause)
		args = append(args, s.args...)
	}
	switch len(clauses) {
	case 0:
		return Where(empty)
	case 1:
		return Where(clauses[0], args...)
	}
	return Where("("+strings.Join(clauses, ")"+sep+"(")+")", args...)
}

// Clause returns the SQL fragment and arguments of a WHERE scope.
func (s Scope) Clause() (string, []any) {
	return s.clause, s.args
}

func repeatJoin(s string, count int) string {
	if count <= 0 {
		return ""
	}
	parts := make([]string, count)
	for i := range parts {
		parts[i] = s
	}
	return strings.Join(parts, ", ")
}
