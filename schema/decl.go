package schema

import (
	"github.com/mickamy/ormfields/internal/naming"
	"github.com/mickamy/ormfields/orm"
)

// Decl is one entry of a model declaration passed to Builder.Model.
type Decl interface {
	stage() int
	contribute(m *Model) error
}

const (
	stageOptions = iota
	stageFields
	stageInherited
)

// FieldOption configures a concrete field.
type FieldOption func(*Field)

// Size sets the maximum length of a text column.
func Size(n int) FieldOption { return func(f *Field) { f.Size = n } }

// Null allows NULL in the column.
func Null() FieldOption { return func(f *Field) { f.Null = true } }

// Default sets the value new records start with.
func Default(v any) FieldOption { return func(f *Field) { f.Default = v } }

// Choices restricts the display of the field to labelled values.
func Choices(cs ...Choice) FieldOption {
	return func(f *Field) { f.Choices = append(f.Choices, cs...) }
}

// Column overrides the column name.
func Column(name string) FieldOption { return func(f *Field) { f.Column = name } }

// Through overrides the join table of a many-to-many relation.
func Through(jt orm.JoinTable) FieldOption { return func(f *Field) { f.Through = jt } }

type fieldDecl struct {
	field *Field
	opts  []FieldOption
}

func (fieldDecl) stage() int { return stageFields }

func (d fieldDecl) contribute(m *Model) error {
	f := *d.field
	if f.Kind == KindManyToMany {
		f.Through = joinTable(m, f.Name, f.To)
	}
	for _, o := range d.opts {
		o(&f)
	}
	if err := m.add(&f); err != nil {
		return err
	}
	if f.CacheField == "" {
		return nil
	}
	return m.add(&Field{
		Name:   f.CacheField,
		Column: f.CacheField,
		Kind:   KindSet,
		Null:   true,
	})
}

func concrete(name string, kind Kind, opts []FieldOption) Decl {
	return fieldDecl{
		field: &Field{Name: name, Column: name, Kind: kind, Editable: true},
		opts:  opts,
	}
}

// Text declares a string column.
func Text(name string, opts ...FieldOption) Decl { return concrete(name, KindText, opts) }

// Int declares an integer column.
func Int(name string, opts ...FieldOption) Decl { return concrete(name, KindInt, opts) }

// Bool declares a boolean column.
func Bool(name string, opts ...FieldOption) Decl { return concrete(name, KindBool, opts) }

// Float declares a floating point column.
func Float(name string, opts ...FieldOption) Decl { return concrete(name, KindFloat, opts) }

// ForeignKey declares a to-one relation to the model called to, stored in
// the column <name>_id. Foreign keys are always nullable.
func ForeignKey(name, to string, opts ...FieldOption) Decl {
	return fieldDecl{
		field: &Field{
			Name:     name,
			Column:   naming.ForeignKeyColumn(name),
			Kind:     KindForeignKey,
			Null:     true,
			Editable: true,
			To:       to,
		},
		opts: opts,
	}
}

// ManyToMany declares a relation to the model called to, stored in the
// join table <owner_table>_<name>.
func ManyToMany(name, to string, opts ...FieldOption) Decl {
	return fieldDecl{
		field: &Field{Name: name, Kind: KindManyToMany, Editable: true, To: to},
		opts:  opts,
	}
}

// CachedManyToMany declares a many-to-many relation together with the
// hidden set column <name>_cache mirroring the related primary keys.
func CachedManyToMany(name, to string, opts ...FieldOption) Decl {
	return fieldDecl{
		field: &Field{
			Name:       name,
			Kind:       KindManyToMany,
			Editable:   true,
			To:         to,
			CacheField: naming.CacheField(name),
		},
		opts: opts,
	}
}

// InheritOption configures an inherited field.
type InheritOption func(*InheritedField)

// From names the field read on the parent. It defaults to the inherited
// field's own name.
func From(target string) InheritOption {
	return func(i *InheritedField) { i.Target = target }
}

// InheritOnly makes the field read-only: no flag or local value is stored
// and every write fails.
func InheritOnly() InheritOption {
	return func(i *InheritedField) { i.InheritOnly = true }
}

// NoValidate turns off every declaration-time check for the field.
// Unresolvable fields then read as not inherited.
func NoValidate() InheritOption {
	return func(i *InheritedField) { i.Validate = false }
}

type inheritedDecl struct {
	field InheritedField
}

func (inheritedDecl) stage() int { return stageInherited }

func (d inheritedDecl) contribute(m *Model) error {
	inh := d.field
	if _, ok := m.byName[inh.Name]; ok {
		return &DuplicateFieldError{Model: m.Name, Field: inh.Name}
	}
	if _, ok := m.inhByName[inh.Name]; ok {
		return &DuplicateFieldError{Model: m.Name, Field: inh.Name}
	}
	if inh.Validate {
		if err := checkRelation(m, &inh); err != nil {
			return err
		}
	}
	if !inh.InheritOnly {
		inh.Flag = &Field{
			Name:     naming.InheritFlag(inh.Name),
			Column:   naming.InheritFlag(inh.Name),
			Kind:     KindBool,
			Default:  true,
			Editable: true,
		}
		if err := m.add(inh.Flag); err != nil {
			return err
		}
	}
	m.inherited = append(m.inherited, &inh)
	m.inhByName[inh.Name] = &inh
	m.inheritance[inh.Name] = Link{Relation: inh.Relation, Target: inh.Target}
	return nil
}

// Inherited declares a field whose value is read from the field of the same
// name (or the one given with From) on the record referenced by the foreign
// key relation. Unless InheritOnly is set, the companion columns
// is_<name>_inherited and <name>_value are added to the model.
func Inherited(name, relation string, opts ...InheritOption) Decl {
	inh := InheritedField{Name: name, Relation: relation, Target: name, Validate: true}
	for _, o := range opts {
		o(&inh)
	}
	return inheritedDecl{field: inh}
}

type tableDecl string

func (tableDecl) stage() int { return stageOptions }

func (d tableDecl) contribute(m *Model) error {
	m.Table = string(d)
	return nil
}

// Table overrides the table name, which defaults to the pluralized snake
// case model name.
func Table(name string) Decl { return tableDecl(name) }

// checkRelation runs the owner-local part of inherited field validation.
func checkRelation(m *Model, inh *InheritedField) error {
	rel, ok := m.byName[inh.Relation]
	if !ok {
		return &ValidationError{
			Err:      ErrMissingRelation,
			Owner:    m.Name,
			Field:    inh.Name,
			Model:    m.Name,
			Relation: inh.Relation,
			Target:   inh.Target,
		}
	}
	if rel.Kind != KindForeignKey {
		return &ValidationError{
			Err:      ErrNotRelation,
			Owner:    m.Name,
			Field:    inh.Name,
			Model:    m.Name,
			Relation: inh.Relation,
			Target:   inh.Target,
			Kind:     rel.Kind,
		}
	}
	return nil
}
