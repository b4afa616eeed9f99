package scope_test

import (
	"reflect"
	"testing"

	"github.com/mickamy/ormfields/scope"
)

type recorder struct {
	wheres []string
	args   []any
	orders []string
	limit  *int
}

func (r *recorder) ApplyWhere(clause string, args []any) {
	r.wheres = append(r.wheres, clause)
	r.args = append(r.args, args...)
}
func (r *recorder) ApplyOrderBy(clause string) { r.orders = append(r.orders, clause) }
func (r *recorder) ApplyLimit(n int)           { r.limit = &n }

func TestApply(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	for _, s := range []scope.Scope{
		scope.Where(`"is_foo_inherited" = ?`, false),
		scope.OrderBy(`"id" DESC`),
		scope.Limit(3),
	} {
		s.Apply(r)
	}

	if want := []string{`"is_foo_inherited" = ?`}; !reflect.DeepEqual(r.wheres, want) {
		t.Errorf("wheres = %v, want %v", r.wheres, want)
	}
	if want := []any{false}; !reflect.DeepEqual(r.args, want) {
		t.Errorf("args = %v, want %v", r.args, want)
	}
	if want := []string{`"id" DESC`}; !reflect.DeepEqual(r.orders, want) {
		t.Errorf("orders = %v, want %v", r.orders, want)
	}
	if r.limit == nil || *r.limit != 3 {
		t.Errorf("limit = %v, want 3", r.limit)
	}
}

func TestIn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		s          scope.Scope
		wantClause string
		wantArgs   []any
	}{
		{"ints", scope.In("tag_id", []int64{3, 1, 2}), "tag_id IN (?, ?, ?)", []any{int64(3), int64(1), int64(2)}},
		{"single", scope.In("id", []any{"a"}), "id IN (?)", []any{"a"}},
		{"empty", scope.In("id", []int64{}), "1 = 0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clause, args := tt.s.Clause()
			if clause != tt.wantClause {
				t.Errorf("clause = %q, want %q", clause, tt.wantClause)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestOrAnd(t *testing.T) {
	t.Parallel()

	local := scope.And(
		scope.Where(`"t0"."is_foo_inherited" = ?`, false),
		scope.Where(`"t0"."foo_value" = ?`, "123"),
	)
	parent := scope.Where(`"t1"."bar" = ?`, "123")

	tests := []struct {
		name       string
		s          scope.Scope
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "nested",
			s:          scope.Or(local, parent),
			wantClause: `(("t0"."is_foo_inherited" = ?) AND ("t0"."foo_value" = ?)) OR ("t1"."bar" = ?)`,
			wantArgs:   []any{false, "123", "123"},
		},
		{
			name:       "single clause is unwrapped",
			s:          scope.Or(parent),
			wantClause: `"t1"."bar" = ?`,
			wantArgs:   []any{"123"},
		},
		{
			name:       "non-where scopes are ignored",
			s:          scope.And(scope.Limit(1), parent, scope.OrderBy("id")),
			wantClause: `"t1"."bar" = ?`,
			wantArgs:   []any{"123"},
		},
		{name: "empty or", s: scope.Or(), wantClause: "1 = 0"},
		{name: "empty and", s: scope.And(), wantClause: "1 = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clause, args := tt.s.Clause()
			if clause != tt.wantClause {
				t.Errorf("clause = %q, want %q", clause, tt.wantClause)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestScopeIsReusable(t *testing.T) {
	t.Parallel()

	s := scope.Where("a = ?", 1)
	r1, r2 := &recorder{}, &recorder{}
	s.Apply(r1)
	s.Apply(r2)
	if !reflect.DeepEqual(r1, r2) {
		t.Errorf("r1 = %+v, r2 = %+v", r1, r2)
	}
}
