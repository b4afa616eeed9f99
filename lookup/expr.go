package lookup

import (
	"maps"
	"slices"
)

// Expr is a filter predicate: a Cond, or an Or/And of predicates.
type Expr interface {
	isExpr()
}

// Cond is a keyword condition: the value at Key compared with Value.
type Cond struct {
	Key   string
	Value any
}

// C returns the condition key = value.
func C(key string, value any) Cond { return Cond{Key: key, Value: value} }

// Or matches when any of its predicates match. An empty Or matches nothing.
type Or []Expr

// And matches when all of its predicates match. An empty And matches
// everything.
type And []Expr

func (Cond) isExpr() {}
func (Or) isExpr()   {}
func (And) isExpr()  {}

// Kw turns keyword arguments into conditions, ordered by key.
func Kw(kw map[string]any) []Expr {
	keys := slices.Sorted(maps.Keys(kw))
	out := make([]Expr, len(keys))
	for i, k := range keys {
		out[i] = Cond{Key: k, Value: kw[k]}
	}
	return out
}
