package lookup

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cast"

	"github.com/mickamy/ormfields/orm"
	"github.com/mickamy/ormfields/schema"
	"github.com/mickamy/ormfields/scope"
	"github.com/mickamy/ormfields/setfield"
)

// BaseAlias is the alias of the queried model's table in compiled SQL.
const BaseAlias = "t0"

var (
	ErrUnknownField  = errors.New("lookup: unknown field")
	ErrNotComparable = errors.New("lookup: field cannot be compared")
	ErrBadValue      = errors.New("lookup: bad value")
)

// FieldError reports a path that does not resolve to a comparable column.
type FieldError struct {
	Err   error
	Model string
	Path  string
	Part  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: cannot resolve %q in %q on %s", e.Err, e.Part, e.Path, e.Model)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Join is a LEFT JOIN a compiled predicate depends on, named by the
// relation path it follows.
type Join struct {
	Name   string
	Config orm.JoinConfig
}

// Compiler turns predicates over one model into WHERE scopes. Relations
// traversed by the predicates are joined once each, under the aliases
// t1, t2, ... in order of first use.
type Compiler struct {
	reg     *schema.Registry
	model   *schema.Model
	d       orm.Dialect
	aliases map[string]string
	joins   []Join
}

// NewCompiler returns a Compiler for predicates over model.
func NewCompiler(reg *schema.Registry, model *schema.Model, d orm.Dialect) *Compiler {
	return &Compiler{
		reg:     reg,
		model:   model,
		d:       d,
		aliases: map[string]string{"": BaseAlias},
	}
}

// Joins returns the joins required by everything compiled so far.
func (c *Compiler) Joins() []Join {
	return append([]Join(nil), c.joins...)
}

// Compile returns a WHERE scope matching rows that satisfy every expr.
func (c *Compiler) Compile(exprs ...Expr) (scope.Scope, error) {
	return c.compile(And(exprs))
}

func (c *Compiler) compile(e Expr) (scope.Scope, error) {
	switch x := e.(type) {
	case Cond:
		return c.cond(x)
	case Or:
		parts, err := c.each(x)
		if err != nil {
			return scope.Scope{}, err
		}
		return scope.Or(parts...), nil
	case And:
		parts, err := c.each(x)
		if err != nil {
			return scope.Scope{}, err
		}
		return scope.And(parts...), nil
	case nil:
		return scope.Scope{}, errors.New("lookup: nil expression")
	default:
		return scope.Scope{}, fmt.Errorf("lookup: unsupported expression %T", e)
	}
}

func (c *Compiler) each(exprs []Expr) ([]scope.Scope, error) {
	out := make([]scope.Scope, len(exprs))
	for i, e := range exprs {
		s, err := c.compile(e)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Resolve follows the steps of p and returns the field compared at the end
// together with the alias of the table holding it.
func (c *Compiler) Resolve(p Path) (*schema.Field, string, error) {
	cur, alias := c.model, BaseAlias
	for i, step := range p.Steps {
		f, ok := cur.Field(step)
		if !ok {
			return nil, "", c.fieldError(ErrUnknownField, p, step)
		}
		if f.Kind != schema.KindForeignKey {
			return nil, "", c.fieldError(ErrNotComparable, p, step)
		}
		target, _ := c.reg.Target(f)
		alias = c.join(strings.Join(p.Steps[:i+1], Sep), alias, f, target)
		cur = target
	}
	f, ok := cur.Field(p.Field)
	if !ok {
		if _, inh := cur.Inherited(p.Field); inh {
			return nil, "", c.fieldError(fmt.Errorf("%w: inherited fields must be rewritten first", ErrNotComparable), p, p.Field)
		}
		return nil, "", c.fieldError(ErrUnknownField, p, p.Field)
	}
	return f, alias, nil
}

func (c *Compiler) join(name, source string, fk *schema.Field, target *schema.Model) string {
	if a, ok := c.aliases[name]; ok {
		return a
	}
	alias := fmt.Sprintf("t%d", len(c.joins)+1)
	c.aliases[name] = alias
	c.joins = append(c.joins, Join{
		Name: name,
		Config: orm.JoinConfig{
			TargetTable:  target.Table,
			TargetColumn: target.PrimaryKey().Column,
			SourceTable:  source,
			SourceColumn: fk.Column,
			Alias:        alias,
		},
	})
	return alias
}

func (c *Compiler) fieldError(err error, p Path, part string) error {
	return &FieldError{Err: err, Model: c.model.Name, Path: p.String(), Part: part}
}

func (c *Compiler) cond(cd Cond) (scope.Scope, error) {
	p, err := Parse(cd.Key)
	if err != nil {
		return scope.Scope{}, err
	}
	f, alias, err := c.Resolve(p)
	if err != nil {
		return scope.Scope{}, err
	}
	switch f.Kind {
	case schema.KindSet:
		return scope.Scope{}, setfield.Lookup(f.Name, p.Operator())
	case schema.KindManyToMany:
		return scope.Scope{}, c.fieldError(ErrNotComparable, p, p.Field)
	}
	col := c.d.QuoteIdent(alias) + "." + c.d.QuoteIdent(f.Column)
	return predicate(f, col, p.Operator(), cd.Value)
}

// keyer is satisfied by records; comparing against one compares its key.
type keyer interface{ PK() any }

func predicate(f *schema.Field, col, op string, v any) (scope.Scope, error) {
	if k, ok := v.(keyer); ok {
		v = k.PK()
	}
	switch op {
	case "exact":
		if v == nil {
			return scope.Where(col + " IS NULL"), nil
		}
		nv, err := f.Normalize(v)
		if err != nil {
			return scope.Scope{}, badValue(op, err)
		}
		return scope.Where(col+" = ?", nv), nil
	case "iexact":
		s, err := cast.ToStringE(v)
		if err != nil {
			return scope.Scope{}, badValue(op, err)
		}
		return scope.Where("LOWER("+col+") = LOWER(?)", s), nil
	case "gt", "gte", "lt", "lte":
		nv, err := f.Normalize(v)
		if err != nil {
			return scope.Scope{}, badValue(op, err)
		}
		return scope.Where(col+" "+comparisons[op]+" ?", nv), nil
	case "contains", "startswith", "endswith":
		pattern, err := likePattern(op, v)
		if err != nil {
			return scope.Scope{}, err
		}
		return scope.Where(col+" LIKE ? ESCAPE '!'", pattern), nil
	case "icontains", "istartswith", "iendswith":
		pattern, err := likePattern(op[1:], v)
		if err != nil {
			return scope.Scope{}, err
		}
		return scope.Where("LOWER("+col+") LIKE LOWER(?) ESCAPE '!'", pattern), nil
	case "isnull":
		isNull, err := cast.ToBoolE(v)
		if err != nil {
			return scope.Scope{}, badValue(op, err)
		}
		if isNull {
			return scope.Where(col + " IS NULL"), nil
		}
		return scope.Where(col + " IS NOT NULL"), nil
	case "in":
		vals, err := normalizeAll(f, op, v)
		if err != nil {
			return scope.Scope{}, err
		}
		if len(vals) == 0 {
			return scope.Where("1 = 0"), nil
		}
		ph := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
		return scope.Where(col+" IN ("+ph+")", vals...), nil
	case "range":
		vals, err := normalizeAll(f, op, v)
		if err != nil {
			return scope.Scope{}, err
		}
		if len(vals) != 2 {
			return scope.Scope{}, fmt.Errorf("%w: range needs exactly two bounds, got %d", ErrBadValue, len(vals))
		}
		return scope.Where(col+" BETWEEN ? AND ?", vals...), nil
	}
	return scope.Scope{}, fmt.Errorf("lookup: unknown operator %q", op)
}

var comparisons = map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func likePattern(op string, v any) (string, error) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", badValue(op, err)
	}
	s = likeEscaper.Replace(s)
	switch op {
	case "startswith":
		return s + "%", nil
	case "endswith":
		return "%" + s, nil
	default:
		return "%" + s + "%", nil
	}
}

func normalizeAll(f *schema.Field, op string, v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("%w: %s needs a slice, got %T", ErrBadValue, op, v)
	}
	out := make([]any, rv.Len())
	for i := range rv.Len() {
		nv, err := f.Normalize(rv.Index(i).Interface())
		if err != nil {
			return nil, badValue(op, err)
		}
		out[i] = nv
	}
	return out, nil
}

func badValue(op string, err error) error {
	return fmt.Errorf("%w for %s: %w", ErrBadValue, op, err)
}
