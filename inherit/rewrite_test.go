package inherit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/ormfields/inherit"
	"github.com/mickamy/ormfields/internal/testmodels"
	"github.com/mickamy/ormfields/lookup"
	"github.com/mickamy/ormfields/orm"
	"github.com/mickamy/ormfields/schema"
)

// overridable is the rewrite of an inherited field that has a local value:
// the local branch applies to overrides and orphans, the parent branch to
// records that inherit from an existing parent.
func overridable(prefix, field, op, relation string, parent lookup.Expr, v any) lookup.Expr {
	flag := prefix + "is_" + field + "_inherited"
	missing := prefix + relation + "__id__isnull"
	return lookup.Or{
		lookup.And{
			lookup.Or{lookup.C(flag, false), lookup.C(missing, true)},
			lookup.C(prefix+field+"_value"+op, v),
		},
		lookup.And{lookup.C(flag, true), lookup.C(missing, false), parent},
	}
}

func TestRewriteCond(t *testing.T) {
	t.Parallel()

	reg := testmodels.MustBuild()

	tests := []struct {
		name  string
		model string
		cond  lookup.Cond
		want  lookup.Expr
	}{
		{
			name:  "plain field passes through",
			model: "TestModel2",
			cond:  lookup.C("bar__icontains", "x"),
			want:  lookup.C("bar__icontains", "x"),
		},
		{
			name:  "inherited field",
			model: "TestModel2",
			cond:  lookup.C("foo", "x"),
			want:  overridable("", "foo", "", "parent", lookup.C("parent__bar", "x"), "x"),
		},
		{
			name:  "operator is kept on both branches",
			model: "TestModel2",
			cond:  lookup.C("foo__startswith", "x"),
			want:  overridable("", "foo", "__startswith", "parent", lookup.C("parent__bar__startswith", "x"), "x"),
		},
		{
			name:  "inherit-only field needs a parent",
			model: "TestModel2",
			cond:  lookup.C("ifoo", "x"),
			want:  lookup.And{lookup.C("parent__id__isnull", false), lookup.C("parent__bar", "x")},
		},
		{
			name:  "inherit-only field reads nil without a parent",
			model: "TestModel2",
			cond:  lookup.C("ifoo__isnull", true),
			want: lookup.Or{
				lookup.And{lookup.C("parent__id__isnull", false), lookup.C("parent__bar__isnull", true)},
				lookup.C("parent__id__isnull", true),
			},
		},
		{
			name:  "chain guards every level",
			model: "TestModel8",
			cond:  lookup.C("goo", "x"),
			want: overridable("", "goo", "", "parent_for_8",
				overridable("parent_for_8__", "boo", "", "parent_for_7",
					overridable("parent_for_8__parent_for_7__", "foo", "", "parent_for_6",
						lookup.C("parent_for_8__parent_for_7__parent_for_6__bar", "x"), "x"),
					"x"),
				"x"),
		},
		{
			name:  "through a relation",
			model: "TestModel7",
			cond:  lookup.C("parent_for_7__foo__in", []string{"x"}),
			want: overridable("parent_for_7__", "foo", "__in", "parent_for_6",
				lookup.C("parent_for_7__parent_for_6__bar__in", []string{"x"}), []string{"x"}),
		},
		{
			name:  "unknown path is left for the compiler",
			model: "TestModel2",
			cond:  lookup.C("nope__foo", "x"),
			want:  lookup.C("nope__foo", "x"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := inherit.RewriteCond(reg, reg.MustModel(tt.model), tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRewriteRejectsExpressions(t *testing.T) {
	t.Parallel()

	reg := testmodels.MustBuild()
	m := reg.MustModel("TestModel2")

	_, err := inherit.Rewrite(reg, m, lookup.C("bar", "x"), lookup.Or{lookup.C("foo", "x")})
	assert.ErrorIs(t, err, inherit.ErrExpressionFilter)

	got, err := inherit.RewriteTree(reg, m, lookup.Or{lookup.C("ifoo", "x"), lookup.C("bar", "y")})
	require.NoError(t, err)
	assert.Equal(t, []lookup.Expr{lookup.Or{
		lookup.And{lookup.C("parent__id__isnull", false), lookup.C("parent__bar", "x")},
		lookup.C("bar", "y"),
	}}, got)
}

func TestRewriteUnresolved(t *testing.T) {
	t.Parallel()

	b := schema.NewBuilder()
	_, err := b.Model("Parent", schema.Text("bar"))
	require.NoError(t, err)
	_, err = b.Model("Loose",
		schema.ForeignKey("parent", "Parent"),
		schema.Inherited("foo", "parent", schema.From("no_bar"), schema.NoValidate()),
		schema.Inherited("ibar", "parent", schema.From("no_bar"), schema.NoValidate(), schema.InheritOnly()),
	)
	require.NoError(t, err)
	reg, err := b.Build()
	require.NoError(t, err)

	m := reg.MustModel("Loose")
	got, err := inherit.RewriteCond(reg, m, lookup.C("foo", 1))
	require.NoError(t, err)
	assert.Equal(t, lookup.C("foo_value", 1), got)

	got, err = inherit.RewriteCond(reg, m, lookup.C("ibar", 1))
	require.NoError(t, err)
	assert.Equal(t, lookup.Or{}, got)

	got, err = inherit.RewriteCond(reg, m, lookup.C("ibar__isnull", true))
	require.NoError(t, err)
	assert.Equal(t, lookup.And{}, got)
}

func TestRewrittenFilterCompiles(t *testing.T) {
	t.Parallel()

	reg := testmodels.MustBuild()
	m := reg.MustModel("TestModel2")

	exprs, err := inherit.Rewrite(reg, m, lookup.C("foo", "x"))
	require.NoError(t, err)

	c := lookup.NewCompiler(reg, m, orm.PostgreSQL)
	s, err := c.Compile(exprs...)
	require.NoError(t, err)

	clause, args := s.Clause()
	assert.Equal(t,
		`((("t0"."is_foo_inherited" = ?) OR ("t1"."id" IS NULL)) AND ("t0"."foo_value" = ?)) OR `+
			`(("t0"."is_foo_inherited" = ?) AND ("t1"."id" IS NOT NULL) AND ("t1"."bar" = ?))`,
		clause)
	assert.Equal(t, []any{false, "x", true, "x"}, args)
	require.Len(t, c.Joins(), 1)
	assert.Equal(t, "parent", c.Joins()[0].Name)
}
