package schema

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"

	"github.com/mickamy/ormfields/internal/naming"
	"github.com/mickamy/ormfields/orm"
	"github.com/mickamy/ormfields/setfield"
)

// Kind is the storage kind of a field.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindBool
	KindFloat
	// KindSet is a serialized setfield.Set column.
	KindSet
	// KindForeignKey is a to-one relation stored as <name>_id.
	KindForeignKey
	// KindManyToMany is a relation stored in a join table.
	KindManyToMany
	// KindAny holds the value slot of an inherited field whose source
	// could not be resolved.
	KindAny
)

var kindNames = map[Kind]string{
	KindText:       "text",
	KindInt:        "int",
	KindBool:       "bool",
	KindFloat:      "float",
	KindSet:        "set",
	KindForeignKey: "foreign key",
	KindManyToMany: "many-to-many",
	KindAny:        "any",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Choice is one allowed value of a field together with its display label.
type Choice struct {
	Value any
	Label string
}

// Field is a stored column or a relation of a model.
type Field struct {
	Name    string
	Column  string
	Kind    Kind
	Size    int
	Null    bool
	Default any
	Choices []Choice

	// Editable is false for companion columns maintained by the field
	// machinery (cache sets).
	Editable bool
	Primary  bool

	// To is the target model name of a relation.
	To string
	// Through is the join table of a many-to-many relation.
	Through orm.JoinTable
	// CacheField names the companion set field of a cached many-to-many.
	CacheField string
}

// IsRelation reports whether the field points at another model.
func (f *Field) IsRelation() bool {
	return f.Kind == KindForeignKey || f.Kind == KindManyToMany
}

// Stored reports whether the field is a column of the model's own table.
func (f *Field) Stored() bool {
	return f.Kind != KindManyToMany
}

// Queryable reports whether lookups may target the field.
func (f *Field) Queryable() bool {
	return f.Kind != KindSet
}

// ColumnType maps the field to a dialect-independent column type.
func (f *Field) ColumnType() orm.ColumnType {
	switch f.Kind {
	case KindInt, KindForeignKey:
		return orm.ColumnInt
	case KindBool:
		return orm.ColumnBool
	case KindFloat:
		return orm.ColumnFloat
	default:
		return orm.ColumnText
	}
}

// Zero returns the value a fresh record holds for the field. The primary
// key stays nil until the record is saved.
func (f *Field) Zero() any {
	if f.Primary {
		return nil
	}
	if f.Default != nil {
		if v, err := f.Normalize(f.Default); err == nil {
			return v
		}
	}
	switch f.Kind {
	case KindSet:
		return setfield.Set{}
	case KindForeignKey, KindAny, KindManyToMany:
		return nil
	}
	if f.Null {
		return nil
	}
	switch f.Kind {
	case KindInt:
		return int64(0)
	case KindBool:
		return false
	case KindFloat:
		return float64(0)
	default:
		return ""
	}
}

// Normalize coerces v into the canonical Go representation of the field:
// string, int64, bool, float64 or setfield.Set. nil stays nil.
func (f *Field) Normalize(v any) (any, error) {
	if v == nil {
		if f.Kind == KindSet {
			return setfield.Set{}, nil
		}
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		// drivers hand back text protocol columns as bytes
		v = string(b)
	}
	var (
		out any
		err error
	)
	switch f.Kind {
	case KindText:
		out, err = cast.ToStringE(v)
	case KindInt, KindForeignKey:
		out, err = cast.ToInt64E(v)
	case KindBool:
		out, err = cast.ToBoolE(v)
	case KindFloat:
		out, err = cast.ToFloat64E(v)
	case KindSet:
		return normalizeSet(v)
	case KindManyToMany:
		return nil, fmt.Errorf("schema: %s is a many-to-many relation and holds no value", f.Name)
	default:
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schema: field %s: %w", f.Name, err)
	}
	return out, nil
}

func normalizeSet(v any) (any, error) {
	switch x := v.(type) {
	case setfield.Set:
		return x.Clone(), nil
	case string:
		return setfield.Decode(x)
	case []byte:
		return setfield.Decode(string(x))
	default:
		return nil, fmt.Errorf("schema: cannot use %T as a set", v)
	}
}

// Display renders v for humans, preferring the label of a matching choice.
func (f *Field) Display(v any) string {
	for _, c := range f.Choices {
		cv, err := f.Normalize(c.Value)
		if err == nil && reflect.DeepEqual(cv, v) {
			return c.Label
		}
	}
	if v == nil {
		return ""
	}
	if s, ok := v.(setfield.Set); ok {
		return s.String()
	}
	return cast.ToString(v)
}

// clone returns a structural copy of f renamed to name, always nullable.
func (f *Field) clone(name string, owner *Model) *Field {
	c := *f
	c.Name = name
	c.Null = true
	c.Default = nil
	c.Primary = false
	c.Editable = true
	c.Choices = append([]Choice(nil), f.Choices...)
	c.CacheField = ""
	switch f.Kind {
	case KindForeignKey:
		c.Column = naming.ForeignKeyColumn(name)
	case KindManyToMany:
		c.Column = ""
		c.Through = joinTable(owner, name, f.To)
	default:
		c.Column = name
	}
	return &c
}
