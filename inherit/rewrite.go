package inherit

import (
	"errors"
	"slices"

	"github.com/spf13/cast"

	"github.com/mickamy/ormfields/lookup"
	"github.com/mickamy/ormfields/schema"
)

// ErrExpressionFilter is returned when Or/And expressions are passed to
// a filter on a model with inherited fields. Only keyword conditions can
// be rewritten.
var ErrExpressionFilter = errors.New("inherit: only keyword conditions can filter a model with inherited fields")

// Rewrite rewrites keyword conditions on m for inherited fields and fails
// with ErrExpressionFilter if any argument is not a lookup.Cond.
func Rewrite(reg *schema.Registry, m *schema.Model, exprs ...lookup.Expr) ([]lookup.Expr, error) {
	for _, e := range exprs {
		if _, ok := e.(lookup.Cond); !ok {
			return nil, ErrExpressionFilter
		}
	}
	return RewriteTree(reg, m, exprs...)
}

// RewriteTree rewrites every keyword condition found in exprs, descending
// into Or and And.
func RewriteTree(reg *schema.Registry, m *schema.Model, exprs ...lookup.Expr) ([]lookup.Expr, error) {
	out := make([]lookup.Expr, len(exprs))
	for i, e := range exprs {
		r, err := rewriteExpr(reg, m, e)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func rewriteExpr(reg *schema.Registry, m *schema.Model, e lookup.Expr) (lookup.Expr, error) {
	switch x := e.(type) {
	case lookup.Cond:
		return RewriteCond(reg, m, x)
	case lookup.Or:
		parts, err := RewriteTree(reg, m, x...)
		return lookup.Or(parts), err
	case lookup.And:
		parts, err := RewriteTree(reg, m, x...)
		return lookup.And(parts), err
	}
	return e, nil
}

// RewriteCond returns c unchanged unless its path ends at an inherited
// field. In that case the result matches exactly the records whose read
// value matches: the local value when the field is overridden or the
// parent is missing, the parent's value otherwise.
//
//	Or{
//		And{Or{C("is_f_inherited", false), C("rel__id__isnull", true)}, C("f_value__op", v)},
//		And{C("is_f_inherited", true), C("rel__id__isnull", false), C("rel__target__op", v)},
//	}
//
// The parent branch is rewritten again when the target is itself
// inherited. Inherit-only fields have no local value and read nil without
// a parent.
func RewriteCond(reg *schema.Registry, m *schema.Model, c lookup.Cond) (lookup.Expr, error) {
	p, err := lookup.Parse(c.Key)
	if err != nil {
		return nil, err
	}
	owner, err := reg.Walk(m, p.Steps)
	if err != nil {
		// Left for the compiler to report.
		return c, nil //nolint:nilerr // not ours to reject
	}
	f, ok := owner.Inherited(p.Field)
	if !ok {
		return c, nil
	}
	return rewriteInherited(reg, owner, p, f, c.Value), nil
}

func rewriteInherited(reg *schema.Registry, owner *schema.Model, p lookup.Path, f *schema.InheritedField, v any) lookup.Expr {
	if !f.Resolved() {
		if f.InheritOnly {
			if nilMatches(p, v) {
				return lookup.And{}
			}
			return lookup.Or{}
		}
		return lookup.C(p.WithField(f.Value.Name).String(), v)
	}

	parent, _ := reg.Walk(owner, []string{f.Relation})
	parentPath := p.Through(f.Target, f.Relation)
	parentBranch := lookup.Expr(lookup.C(parentPath.String(), v))
	if pf, ok := parent.Inherited(f.Target); ok {
		parentBranch = rewriteInherited(reg, parent, parentPath, pf, v)
	}
	missing := lookup.Path{
		Steps: append(slices.Clone(p.Steps), f.Relation),
		Field: parent.PrimaryKey().Name,
		Op:    "isnull",
	}.String()

	if f.InheritOnly {
		viaParent := lookup.And{lookup.C(missing, false), parentBranch}
		if nilMatches(p, v) {
			return lookup.Or{viaParent, lookup.C(missing, true)}
		}
		return viaParent
	}

	flag := lookup.Path{Steps: p.Steps, Field: f.Flag.Name}.String()
	return lookup.Or{
		lookup.And{
			lookup.Or{lookup.C(flag, false), lookup.C(missing, true)},
			lookup.C(p.WithField(f.Value.Name).String(), v),
		},
		lookup.And{lookup.C(flag, true), lookup.C(missing, false), parentBranch},
	}
}

// nilMatches reports whether a nil read value satisfies the operator of p.
func nilMatches(p lookup.Path, v any) bool {
	switch p.Operator() {
	case "isnull":
		isNull, err := cast.ToBoolE(v)
		return err == nil && isNull
	case "exact":
		return v == nil
	}
	return false
}
