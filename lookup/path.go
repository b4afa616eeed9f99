// Package lookup parses keyword filter paths such as "parent__bar__icontains"
// and compiles predicate trees built from them into SQL.
package lookup

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Sep separates the parts of a filter path.
const Sep = "__"

// Operators lists the comparison suffixes a path may end with.
var Operators = []string{
	"exact", "iexact",
	"contains", "icontains",
	"gt", "gte", "lt", "lte",
	"in",
	"startswith", "istartswith",
	"endswith", "iendswith",
	"isnull", "range",
}

// ErrEmptyPath is returned by Parse for paths with an empty part.
var ErrEmptyPath = errors.New("lookup: empty path segment")

// Path is a parsed filter path: the relations to traverse, the field
// compared at the end, and the comparison operator.
type Path struct {
	Steps []string
	Field string
	// Op is empty when the path carried no operator suffix, which
	// compares like "exact".
	Op string
}

// IsOperator reports whether s is a known comparison suffix.
func IsOperator(s string) bool {
	return slices.Contains(Operators, s)
}

// Parse splits a filter path into steps, field and operator.
//
//	Parse("parent__bar__icontains") // {Steps: [parent], Field: bar, Op: icontains}
//	Parse("bar")                    // {Field: bar}
func Parse(s string) (Path, error) {
	parts := strings.Split(s, Sep)
	for _, p := range parts {
		if p == "" {
			return Path{}, fmt.Errorf("%w in %q", ErrEmptyPath, s)
		}
	}
	var p Path
	if len(parts) > 1 && IsOperator(parts[len(parts)-1]) {
		p.Op = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}
	p.Field = parts[len(parts)-1]
	p.Steps = slices.Clone(parts[:len(parts)-1])
	return p, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Operator returns Op, defaulting to "exact".
func (p Path) Operator() string {
	if p.Op == "" {
		return "exact"
	}
	return p.Op
}

// String renders the path back to its keyword form.
func (p Path) String() string {
	parts := append(slices.Clone(p.Steps), p.Field)
	if p.Op != "" {
		parts = append(parts, p.Op)
	}
	return strings.Join(parts, Sep)
}

// WithField returns a copy of p comparing field instead of p.Field.
func (p Path) WithField(field string) Path {
	return Path{Steps: slices.Clone(p.Steps), Field: field, Op: p.Op}
}

// Through returns a copy of p that first follows the given relations and
// then compares field.
func (p Path) Through(field string, relations ...string) Path {
	steps := append(slices.Clone(p.Steps), relations...)
	return Path{Steps: steps, Field: field, Op: p.Op}
}
