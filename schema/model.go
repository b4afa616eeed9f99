package schema

import (
	"maps"
	"slices"
	"strings"

	"github.com/mickamy/ormfields/internal/naming"
	"github.com/mickamy/ormfields/orm"
)

// PathSeparator joins the steps of a relation path ("parent__parent__bar").
const PathSeparator = "__"

// Link is one entry of a model's inheritance map: the relation followed to
// reach the parent and the name of the field read on the parent.
type Link struct {
	Relation string
	Target   string
}

// InheritedField describes a field whose value comes from a parent record
// unless it is overridden locally.
type InheritedField struct {
	Name        string
	Relation    string
	Target      string
	InheritOnly bool
	Validate    bool

	// Flag and Value are the companion fields; both are nil for
	// inherit-only fields.
	Flag  *Field
	Value *Field

	// Source is the concrete field at the end of the inheritance chain,
	// nil when it could not be resolved (only possible without validation).
	Source *Field
	// Chain lists the relations followed from the owner to Source's model.
	Chain []string
}

// Resolved reports whether the inheritance chain reached a concrete field.
func (i *InheritedField) Resolved() bool { return i.Source != nil }

// Model is the schema of one table.
type Model struct {
	Name  string
	Table string

	fields    []*Field
	byName    map[string]*Field
	inherited []*InheritedField
	inhByName map[string]*InheritedField

	inheritance map[string]Link
	prefetch    [][]string
}

func newModel(name string) *Model {
	m := &Model{
		Name:        name,
		Table:       naming.TableName(name),
		byName:      make(map[string]*Field),
		inhByName:   make(map[string]*InheritedField),
		inheritance: make(map[string]Link),
	}
	m.fields = []*Field{{Name: "id", Column: "id", Kind: KindInt, Primary: true, Editable: true}}
	m.byName["id"] = m.fields[0]
	return m
}

// PrimaryKey returns the auto-generated integer key field.
func (m *Model) PrimaryKey() *Field { return m.fields[0] }

// Field returns the concrete field called name, companions included.
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// Fields returns every concrete field in declaration order.
func (m *Model) Fields() []*Field {
	return slices.Clone(m.fields)
}

// Columns returns the fields stored in the model's own table, primary key first.
func (m *Model) Columns() []*Field {
	out := make([]*Field, 0, len(m.fields))
	for _, f := range m.fields {
		if f.Stored() {
			out = append(out, f)
		}
	}
	return out
}

// ColumnNames returns the column names of Columns.
func (m *Model) ColumnNames() []string {
	cols := m.Columns()
	out := make([]string, len(cols))
	for i, f := range cols {
		out[i] = f.Column
	}
	return out
}

// ManyToMany returns the many-to-many relations of the model.
func (m *Model) ManyToMany() []*Field {
	var out []*Field
	for _, f := range m.fields {
		if f.Kind == KindManyToMany {
			out = append(out, f)
		}
	}
	return out
}

// Inherited returns the inherited field called name.
func (m *Model) Inherited(name string) (*InheritedField, bool) {
	i, ok := m.inhByName[name]
	return i, ok
}

// InheritedFields returns the inherited fields in declaration order.
func (m *Model) InheritedFields() []*InheritedField {
	return slices.Clone(m.inherited)
}

// HasInherited reports whether the model declares any inherited field.
func (m *Model) HasInherited() bool { return len(m.inherited) > 0 }

// Inheritance returns a copy of the inheritance map.
func (m *Model) Inheritance() map[string]Link {
	return maps.Clone(m.inheritance)
}

// Prefetch returns the relation paths a query must follow to resolve every
// inherited field without further lookups, sorted, joined with "__".
func (m *Model) Prefetch() []string {
	out := make([]string, len(m.prefetch))
	for i, p := range m.prefetch {
		out[i] = strings.Join(p, PathSeparator)
	}
	return out
}

// PrefetchPaths is Prefetch with each path split into relation names.
func (m *Model) PrefetchPaths() [][]string {
	out := make([][]string, len(m.prefetch))
	for i, p := range m.prefetch {
		out[i] = slices.Clone(p)
	}
	return out
}

func (m *Model) String() string { return m.Name }

func (m *Model) add(f *Field) error {
	if _, ok := m.byName[f.Name]; ok {
		return &DuplicateFieldError{Model: m.Name, Field: f.Name}
	}
	if _, ok := m.inhByName[f.Name]; ok {
		return &DuplicateFieldError{Model: m.Name, Field: f.Name}
	}
	m.fields = append(m.fields, f)
	m.byName[f.Name] = f
	return nil
}

// insertAfter places f directly behind the field called after.
func (m *Model) insertAfter(after string, f *Field) error {
	if err := m.add(f); err != nil {
		return err
	}
	m.fields = m.fields[:len(m.fields)-1]
	idx := slices.IndexFunc(m.fields, func(x *Field) bool { return x.Name == after })
	m.fields = slices.Insert(m.fields, idx+1, f)
	return nil
}

func joinTable(owner *Model, field, to string) orm.JoinTable {
	src, dst := naming.JoinColumn(owner.Name), naming.JoinColumn(to)
	if owner.Name == to {
		src, dst = "from_"+src, "to_"+dst
	}
	return orm.JoinTable{
		Table:        naming.JoinTable(owner.Table, field),
		SourceColumn: src,
		TargetColumn: dst,
	}
}
