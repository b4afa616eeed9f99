package inherit_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/ormfields/inherit"
	"github.com/mickamy/ormfields/internal/testmodels"
	"github.com/mickamy/ormfields/schema"
)

type entity struct {
	name      string
	model     *schema.Model
	values    map[string]any
	parents   map[string]*entity
	parentErr error
}

func newEntity(m *schema.Model, id int) *entity {
	e := &entity{
		name:    fmt.Sprintf("%s object (%d)", m.Name, id),
		model:   m,
		values:  make(map[string]any),
		parents: make(map[string]*entity),
	}
	for _, f := range m.Fields() {
		e.values[f.Name] = f.Zero()
	}
	e.values["id"] = int64(id)
	return e
}

func (e *entity) String() string               { return e.name }
func (e *entity) Stored(name string) any       { return e.values[name] }
func (e *entity) SetStored(name string, v any) { e.values[name] = v }

func (e *entity) Get(name string) (any, error) {
	if f, ok := e.model.Inherited(name); ok {
		return inherit.Get(e, f)
	}
	return e.values[name], nil
}

func (e *entity) Parent(relation string) (inherit.Entity, error) {
	if e.parentErr != nil {
		return nil, e.parentErr
	}
	p := e.parents[relation]
	if p == nil {
		return nil, nil
	}
	return p, nil
}

func (e *entity) set(t *testing.T, name string, v any) {
	t.Helper()

	f, ok := e.model.Inherited(name)
	require.True(t, ok)
	require.NoError(t, inherit.Set(e, f, v))
}

func (e *entity) get(t *testing.T, name string) any {
	t.Helper()

	v, err := e.Get(name)
	require.NoError(t, err)
	return v
}

func (e *entity) display(t *testing.T, name string) string {
	t.Helper()

	f, ok := e.model.Inherited(name)
	require.True(t, ok)
	s, err := inherit.Display(e, f)
	require.NoError(t, err)
	return s
}

func TestSimpleInheritance(t *testing.T) {
	t.Parallel()

	reg := testmodels.MustBuild()
	a := newEntity(reg.MustModel("TestModel1"), 1)
	a.values["bar"] = "123"
	b := newEntity(reg.MustModel("TestModel2"), 1)
	b.parents["parent"] = a

	assert.Equal(t, "123", b.get(t, "foo"))
	assert.Equal(t, true, b.Stored("is_foo_inherited"))

	b.set(t, "foo", "abc")
	assert.Equal(t, "123", a.get(t, "bar"))
	assert.Equal(t, "abc", b.get(t, "foo"))
	assert.Equal(t, "abc", b.Stored("foo_value"))
	assert.Equal(t, false, b.Stored("is_foo_inherited"))

	assert.Equal(t, "123", b.get(t, "ifoo"))
	a.values["bar"] = "qwe"
	assert.Equal(t, "qwe", b.get(t, "ifoo"))
	assert.Equal(t, "abc", b.get(t, "foo"), "an override is not affected by the parent")

	ifoo, _ := b.model.Inherited("ifoo")
	err := inherit.Set(b, ifoo, "fail")
	require.Error(t, err)
	assert.ErrorIs(t, err, inherit.ErrInheritOnly)
	assert.EqualError(t, err,
		"can't set value for field ifoo on TestModel2 object (1) (field is inherit-only); try to set it on parent.bar")
}

func TestSetToParentValueReinherits(t *testing.T) {
	t.Parallel()

	reg := testmodels.MustBuild()
	a := newEntity(reg.MustModel("TestModel1"), 1)
	a.values["bar"] = "123"
	b := newEntity(reg.MustModel("TestModel2"), 2)
	b.parents["parent"] = a

	b.set(t, "foo", "other")
	assert.Equal(t, false, b.Stored("is_foo_inherited"))

	b.set(t, "foo", "123")
	assert.Equal(t, true, b.Stored("is_foo_inherited"))
	assert.Equal(t, "123", b.Stored("foo_value"), "the local slot is always written")

	a.values["bar"] = "456"
	assert.Equal(t, "456", b.get(t, "foo"))
}

func TestBrokenParent(t *testing.T) {
	t.Parallel()

	reg := testmodels.MustBuild()

	b := newEntity(reg.MustModel("TestModel2"), 1)
	b.set(t, "foo", "abc")
	assert.Equal(t, "abc", b.get(t, "foo"))
	assert.Equal(t, "abc", b.Stored("foo_value"))
	assert.Equal(t, false, b.Stored("is_foo_inherited"))

	dangling := newEntity(reg.MustModel("TestModel2"), 2)
	dangling.parentErr = fmt.Errorf("parent 99999: %w", inherit.ErrParentMissing)
	assert.Equal(t, nil, dangling.get(t, "foo"), "falls back to the empty local value")
	assert.Equal(t, nil, dangling.get(t, "ifoo"))
	dangling.set(t, "foo", "abc")
	assert.Equal(t, "abc", dangling.get(t, "foo"))
	assert.Equal(t, false, dangling.Stored("is_foo_inherited"))
}

func TestFailedParentLookupLeavesRecordUntouched(t *testing.T) {
	t.Parallel()

	reg := testmodels.MustBuild()
	m := reg.MustModel("TestModel2")
	b := newEntity(m, 1)
	boom := errors.New("connection reset")
	b.parentErr = boom

	foo, _ := m.Inherited("foo")
	err := inherit.Set(b, foo, "abc")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, true, b.Stored("is_foo_inherited"))
	assert.Nil(t, b.Stored("foo_value"))

	_, err = b.Get("foo")
	assert.ErrorIs(t, err, boom)
}

func TestSetNormalizesBeforeWriting(t *testing.T) {
	t.Parallel()

	reg := testmodels.MustBuild()
	cat := newEntity(reg.MustModel("Category"), 1)
	cat.values["rank"] = int64(3)
	p := newEntity(reg.MustModel("Product"), 1)
	p.parents["category"] = cat

	p.set(t, "rank", "3")
	assert.Equal(t, int64(3), p.Stored("rank_value"))
	assert.Equal(t, true, p.Stored("is_rank_inherited"))

	rank, _ := p.model.Inherited("rank")
	err := inherit.Set(p, rank, "three")
	require.Error(t, err)
	assert.Equal(t, int64(3), p.Stored("rank_value"))
}

func TestDoubleInheritance(t *testing.T) {
	t.Parallel()

	reg := testmodels.MustBuild()
	a := newEntity(reg.MustModel("TestModel1"), 1)
	a.values["bar"] = "123"
	b := newEntity(reg.MustModel("TestModel6"), 1)
	b.parents["parent_for_6"] = a
	c := newEntity(reg.MustModel("TestModel7"), 1)
	c.parents["parent_for_7"] = b
	d := newEntity(reg.MustModel("TestModel8"), 1)
	d.parents["parent_for_8"] = c

	assert.Equal(t, "123", b.get(t, "foo"))
	assert.Equal(t, "123", d.get(t, "goo"))
	assert.Equal(t, true, b.Stored("is_foo_inherited"))
	assert.Equal(t, true, d.Stored("is_goo_inherited"))

	c.set(t, "boo", "abc")
	assert.Equal(t, "abc", c.get(t, "boo"))
	assert.Equal(t, false, c.Stored("is_boo_inherited"))
	assert.Equal(t, "abc", c.display(t, "boo"))
	assert.Equal(t, "abc", d.get(t, "goo"))
	assert.Equal(t, true, d.Stored("is_goo_inherited"))
	assert.Equal(t, "abc *Inherited", d.display(t, "goo"))
	assert.Equal(t, "123 *Inherited", b.display(t, "foo"))
}

func TestDisplayUsesChoices(t *testing.T) {
	t.Parallel()

	reg := testmodels.MustBuild()
	cat := newEntity(reg.MustModel("Category"), 1)
	cat.values["color"] = "r"
	p := newEntity(reg.MustModel("Product"), 1)
	p.parents["category"] = cat

	assert.Equal(t, "Red *Inherited", p.display(t, "color"))

	p.set(t, "color", "g")
	assert.Equal(t, "Green", p.display(t, "color"))

	orphan := newEntity(reg.MustModel("Product"), 2)
	assert.Equal(t, "", orphan.display(t, "color"))
}

func TestUnresolvedFieldIsNeverInherited(t *testing.T) {
	t.Parallel()

	b := schema.NewBuilder()
	_, err := b.Model("Parent", schema.Text("bar"))
	require.NoError(t, err)
	_, err = b.Model("Loose",
		schema.ForeignKey("parent", "Parent"),
		schema.Inherited("foo", "parent", schema.From("no_bar"), schema.NoValidate()),
	)
	require.NoError(t, err)
	reg, err := b.Build()
	require.NoError(t, err)

	parent := newEntity(reg.MustModel("Parent"), 1)
	e := newEntity(reg.MustModel("Loose"), 1)
	e.parents["parent"] = parent

	assert.Nil(t, e.get(t, "foo"))
	e.set(t, "foo", 42)
	assert.Equal(t, 42, e.get(t, "foo"))
	assert.Equal(t, false, e.Stored("is_foo_inherited"))
}
