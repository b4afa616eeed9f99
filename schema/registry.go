package schema

import (
	"fmt"
	"slices"
)

// Registry holds the resolved models. It is read-only and safe for
// concurrent use.
type Registry struct {
	models map[string]*Model
	order  []*Model
}

// Model returns the model called name.
func (r *Registry) Model(name string) (*Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// MustModel is like Model but panics when the model is unknown.
func (r *Registry) MustModel(name string) *Model {
	m, ok := r.models[name]
	if !ok {
		panic(fmt.Sprintf("schema: unknown model %q", name))
	}
	return m
}

// Models returns every model in declaration order.
func (r *Registry) Models() []*Model {
	return slices.Clone(r.order)
}

// Target returns the model a relation field points at.
func (r *Registry) Target(f *Field) (*Model, bool) {
	if !f.IsRelation() {
		return nil, false
	}
	return r.Model(f.To)
}

// Walk follows the foreign keys named by steps starting at m and returns
// the model reached.
func (r *Registry) Walk(m *Model, steps []string) (*Model, error) {
	cur := m
	for _, s := range steps {
		f, ok := cur.Field(s)
		if !ok {
			return nil, fmt.Errorf("schema: %s has no field %s", cur.Name, s)
		}
		if f.Kind != KindForeignKey {
			return nil, fmt.Errorf("schema: %s.%s is a %s, not a foreign key", cur.Name, s, f.Kind)
		}
		cur = r.models[f.To]
	}
	return cur, nil
}
