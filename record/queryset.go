package record

import (
	"context"
	"fmt"
	"strings"

	"github.com/mickamy/ormfields/inherit"
	"github.com/mickamy/ormfields/lookup"
	"github.com/mickamy/ormfields/orm"
	"github.com/mickamy/ormfields/schema"
	"github.com/mickamy/ormfields/scope"
)

// parentsPreload names the preloader that links inherited parents.
const parentsPreload = "inherited_parents"

// QuerySet is an immutable query over the records of one model. Errors
// raised while building it are reported by the terminal methods.
type QuerySet struct {
	store *Store
	model *schema.Model
	exprs []lookup.Expr
	order []string
	limit *int
	err   error
}

func (qs *QuerySet) clone() *QuerySet {
	c := *qs
	c.exprs = append([]lookup.Expr(nil), qs.exprs...)
	c.order = append([]string(nil), qs.order...)
	return &c
}

// Filter narrows the set to records matching every expression. Conditions
// on inherited fields match records that override the field locally as
// well as records that inherit a matching parent value.
//
// On models that declare inherited fields only keyword conditions
// (lookup.Cond, lookup.Kw) are accepted; expression trees fail with
// inherit.ErrExpressionFilter.
func (qs *QuerySet) Filter(exprs ...lookup.Expr) *QuerySet {
	c := qs.clone()
	if c.err != nil {
		return c
	}
	rewrite := inherit.RewriteTree
	if c.model.HasInherited() {
		rewrite = inherit.Rewrite
	}
	out, err := rewrite(c.store.reg, c.model, exprs...)
	if err != nil {
		c.err = fmt.Errorf("record: filter %s: %w", c.model.Name, err)
		return c
	}
	c.exprs = append(c.exprs, out...)
	return c
}

// OrderBy sorts by the given paths; a leading "-" sorts descending.
// Paths may follow foreign keys ("parent__bar").
func (qs *QuerySet) OrderBy(paths ...string) *QuerySet {
	c := qs.clone()
	c.order = append(c.order, paths...)
	return c
}

// Limit caps the number of records returned.
func (qs *QuerySet) Limit(n int) *QuerySet {
	c := qs.clone()
	c.limit = &n
	return c
}

// All returns every matching record with its inherited parents linked.
func (qs *QuerySet) All(ctx context.Context) ([]*Record, error) {
	q, err := qs.build()
	if err != nil {
		return nil, err
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("record: query %s: %w", qs.model.Name, err)
	}
	out := make([]*Record, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// First returns the first matching record, or an error wrapping
// orm.ErrNotFound.
func (qs *QuerySet) First(ctx context.Context) (*Record, error) {
	rows, err := qs.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("record: query %s: %w", qs.model.Name, orm.ErrNotFound)
	}
	return rows[0], nil
}

// Count returns the number of matching records.
func (qs *QuerySet) Count(ctx context.Context) (int64, error) {
	q, err := qs.build()
	if err != nil {
		return 0, err
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("record: count %s: %w", qs.model.Name, err)
	}
	return n, nil
}

// Exists reports whether any record matches.
func (qs *QuerySet) Exists(ctx context.Context) (bool, error) {
	n, err := qs.Count(ctx)
	return n > 0, err
}

// SQL returns the SELECT statement and arguments the set would run, with
// ? placeholders.
func (qs *QuerySet) SQL() (string, []any, error) {
	q, err := qs.build()
	if err != nil {
		return "", nil, err
	}
	query, args := q.ToSQL()
	return query, args, nil
}

func (qs *QuerySet) build() (*orm.Query[Record], error) {
	if qs.err != nil {
		return nil, qs.err
	}
	s, m := qs.store, qs.model
	d := orm.DialectOf(s.db)
	c := lookup.NewCompiler(s.reg, m, d)

	var where *scope.Scope
	if len(qs.exprs) > 0 {
		sc, err := c.Compile(qs.exprs...)
		if err != nil {
			return nil, fmt.Errorf("record: filter %s: %w", m.Name, err)
		}
		where = &sc
	}
	var order []string
	for _, o := range qs.order {
		clause, err := orderClause(c, d, o)
		if err != nil {
			return nil, fmt.Errorf("record: order %s: %w", m.Name, err)
		}
		order = append(order, clause)
	}

	q := s.table(m)
	joins := c.Joins()
	for _, j := range joins {
		q.RegisterJoin(j.Name, j.Config)
	}
	prefetch := len(m.PrefetchPaths()) > 0
	if prefetch {
		q.RegisterPreloader(parentsPreload, s.prefetcher(m))
	}

	q = q.As(lookup.BaseAlias)
	for _, j := range joins {
		q = q.LeftJoin(j.Name)
	}
	if where != nil {
		q = q.Scopes(*where)
	}
	for _, o := range order {
		q = q.OrderBy(o)
	}
	if qs.limit != nil {
		q = q.Limit(*qs.limit)
	}
	if prefetch {
		q = q.Preload(parentsPreload)
	}
	return q, nil
}

func orderClause(c *lookup.Compiler, d orm.Dialect, path string) (string, error) {
	dir := ""
	if rest, ok := strings.CutPrefix(path, "-"); ok {
		path, dir = rest, " DESC"
	}
	p, err := lookup.Parse(path)
	if err != nil {
		return "", err
	}
	if p.Op != "" {
		return "", fmt.Errorf("%w: cannot order by %q", lookup.ErrNotComparable, path)
	}
	f, alias, err := c.Resolve(p)
	if err != nil {
		return "", err
	}
	if !f.Stored() || !f.Queryable() {
		return "", fmt.Errorf("%w: cannot order by %q", lookup.ErrNotComparable, path)
	}
	return d.QuoteIdent(alias) + "." + d.QuoteIdent(f.Column) + dir, nil
}
