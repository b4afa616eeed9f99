// Package record provides a dynamic entity for models declared with the
// schema package, a Store that persists it, and query sets whose filters
// understand inherited fields.
package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/mickamy/ormfields/inherit"
	"github.com/mickamy/ormfields/orm"
	"github.com/mickamy/ormfields/schema"
)

// Record is one row of a model. Values are keyed by field name; a foreign
// key holds the primary key of the referenced record.
//
// A Record is not safe for concurrent use.
type Record struct {
	model  *schema.Model
	values map[string]any

	// parents caches records reached through foreign keys; missing holds
	// keys known to refer to nothing.
	parents map[string]*Record
	missing map[string]any

	store     *Store
	persisted bool
}

// New returns an unsaved record of m holding the default of every field.
// Inherited fields start out inherited.
func New(m *schema.Model) *Record {
	r := blank(m)
	for _, f := range m.Columns() {
		r.values[f.Name] = f.Zero()
	}
	return r
}

func blank(m *schema.Model) *Record {
	return &Record{
		model:   m,
		values:  make(map[string]any),
		parents: make(map[string]*Record),
		missing: make(map[string]any),
	}
}

// Model returns the model of the record.
func (r *Record) Model() *schema.Model { return r.model }

// PK returns the primary key, nil until the record is saved.
func (r *Record) PK() any { return r.values[r.model.PrimaryKey().Name] }

// ID returns the primary key as an integer and whether it is set.
func (r *Record) ID() (int64, bool) {
	id, ok := r.PK().(int64)
	return id, ok
}

// Persisted reports whether the record was loaded from or saved to a store.
func (r *Record) Persisted() bool { return r.persisted }

func (r *Record) String() string {
	if pk := r.PK(); pk != nil {
		return fmt.Sprintf("%s object (%v)", r.model.Name, pk)
	}
	return fmt.Sprintf("%s object (unsaved)", r.model.Name)
}

// Get returns the observed value of a field. Inherited fields are resolved
// through their parents.
func (r *Record) Get(name string) (any, error) {
	if f, ok := r.model.Inherited(name); ok {
		return inherit.Get(r, f)
	}
	f, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if f.Kind == schema.KindManyToMany {
		return nil, fmt.Errorf("%w: %s.%s", ErrManyToMany, r.model.Name, name)
	}
	return r.values[name], nil
}

// MustGet is like Get but panics on error.
func (r *Record) MustGet(name string) any {
	v, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Set assigns a field. Values are coerced to the field's kind. A foreign
// key accepts a *Record, which is linked, or a primary key.
func (r *Record) Set(name string, v any) error {
	if f, ok := r.model.Inherited(name); ok {
		return inherit.Set(r, f, v)
	}
	f, err := r.field(name)
	if err != nil {
		return err
	}
	switch {
	case f.Kind == schema.KindManyToMany:
		return fmt.Errorf("%w: %s.%s", ErrManyToMany, r.model.Name, name)
	case !f.Editable:
		return fmt.Errorf("%w: %s.%s", ErrNotEditable, r.model.Name, name)
	case f.Kind == schema.KindForeignKey:
		if p, ok := v.(*Record); ok {
			return r.SetRelated(name, p)
		}
	}
	nv, err := f.Normalize(v)
	if err != nil {
		return err
	}
	r.values[name] = nv
	if f.Kind == schema.KindForeignKey {
		r.unlink(name, nv)
	}
	return nil
}

// Stored returns the raw value of a concrete field.
func (r *Record) Stored(name string) any { return r.values[name] }

// SetStored replaces the raw value of a concrete field without coercion.
func (r *Record) SetStored(name string, v any) { r.values[name] = v }

// Display renders a field for humans. Inherited values carry
// inherit.Marker.
func (r *Record) Display(name string) (string, error) {
	if f, ok := r.model.Inherited(name); ok {
		return inherit.Display(r, f)
	}
	f, err := r.field(name)
	if err != nil {
		return "", err
	}
	return f.Display(r.values[name]), nil
}

// Inherited reports whether an inherited field currently reads its parent.
func (r *Record) Inherited(name string) (bool, error) {
	f, ok := r.model.Inherited(name)
	if !ok {
		return false, fmt.Errorf("%w: %s.%s is not inherited", ErrUnknownField, r.model.Name, name)
	}
	return inherit.Inherited(r, f), nil
}

// SetRelated points the foreign key name at p and keeps p linked so that
// reads through the relation need no lookup. A nil p clears the key.
// An unsaved p is allowed; its key is copied when the record is saved.
func (r *Record) SetRelated(name string, p *Record) error {
	f, err := r.fk(name)
	if err != nil {
		return err
	}
	delete(r.missing, name)
	if p == nil {
		r.values[name] = nil
		delete(r.parents, name)
		return nil
	}
	if p.model.Name != f.To {
		return fmt.Errorf("%w: %s.%s expects %s, got %s", ErrWrongModel, r.model.Name, name, f.To, p.model.Name)
	}
	r.values[name] = p.PK()
	r.parents[name] = p
	return nil
}

// Related returns the record referenced by the foreign key name, or nil
// when the key is empty. Linked and prefetched records are returned
// directly; otherwise the record is loaded through its store. A key that
// refers to no record yields an error wrapping inherit.ErrParentMissing.
func (r *Record) Related(name string) (*Record, error) {
	return r.related(context.Background(), name)
}

func (r *Record) related(ctx context.Context, name string) (*Record, error) {
	f, err := r.fk(name)
	if err != nil {
		return nil, err
	}
	id := r.values[name]
	// A parent linked before it had a key stays linked until the record
	// itself is saved and picks the key up.
	if p, ok := r.parents[name]; ok && (id == nil || p.PK() == nil || p.PK() == id) {
		return p, nil
	}
	if id == nil {
		return nil, nil
	}
	if gone, ok := r.missing[name]; ok && gone == id {
		return nil, r.dangling(f, id)
	}
	if r.store == nil {
		return nil, fmt.Errorf("record: %s.%s (%v) is not loaded: %w", r.model.Name, name, id, inherit.ErrParentMissing)
	}
	target, ok := r.store.reg.Model(f.To)
	if !ok {
		return nil, fmt.Errorf("record: unknown model %s", f.To)
	}
	p, err := r.store.Get(ctx, target, id)
	if errors.Is(err, orm.ErrNotFound) {
		r.missing[name] = id
		return nil, r.dangling(f, id)
	}
	if err != nil {
		return nil, err
	}
	r.parents[name] = p
	return p, nil
}

// Parent implements inherit.Entity.
func (r *Record) Parent(relation string) (inherit.Entity, error) {
	p, err := r.Related(relation)
	if err != nil || p == nil {
		return nil, err
	}
	return p, nil
}

func (r *Record) dangling(f *schema.Field, id any) error {
	return fmt.Errorf("record: %s.%s refers to %s %v: %w", r.model.Name, f.Name, f.To, id, inherit.ErrParentMissing)
}

// unlink forgets a linked parent whose key no longer matches id. A nil id
// always clears the link.
func (r *Record) unlink(name string, id any) {
	if p, ok := r.parents[name]; ok && (id == nil || p.PK() != id) {
		delete(r.parents, name)
	}
	delete(r.missing, name)
}

func (r *Record) field(name string) (*schema.Field, error) {
	f, ok := r.model.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, r.model.Name, name)
	}
	return f, nil
}

func (r *Record) fk(name string) (*schema.Field, error) {
	f, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if f.Kind != schema.KindForeignKey {
		return nil, fmt.Errorf("%w: %s.%s is a %s", ErrNotRelation, r.model.Name, name, f.Kind)
	}
	return f, nil
}

// link records p as the parent reached through name, or marks the key as
// dangling when p is nil.
func (r *Record) link(name string, p *Record) {
	if p == nil {
		r.missing[name] = r.values[name]
		return
	}
	r.parents[name] = p
}

// syncKeys copies the keys of linked parents into their foreign keys.
func (r *Record) syncKeys() error {
	for name, p := range r.parents {
		pk := p.PK()
		if pk == nil {
			return fmt.Errorf("%w: %s.%s points at an unsaved %s", ErrUnsaved, r.model.Name, name, p.model.Name)
		}
		r.values[name] = pk
	}
	return nil
}
