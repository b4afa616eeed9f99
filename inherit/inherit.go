// Package inherit implements reading, writing and displaying inherited
// fields, and the rewrite that makes filters on them match both local
// overrides and values inherited from the parent.
package inherit

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/spf13/cast"

	"github.com/mickamy/ormfields/schema"
	"github.com/mickamy/ormfields/setfield"
)

// Marker is appended to the display of an inherited value.
const Marker = " *Inherited"

var (
	// ErrParentMissing is returned by Entity.Parent when the relation
	// refers to a record that does not exist. Reads and writes treat it as
	// "not inherited".
	ErrParentMissing = errors.New("inherit: parent does not exist")
	// ErrInheritOnly is matched by every InheritOnlyError.
	ErrInheritOnly = errors.New("inherit: field is inherit-only")
)

// InheritOnlyError is returned when writing an inherit-only field.
type InheritOnlyError struct {
	Field    string
	Instance string
	Relation string
	Target   string
}

func (e *InheritOnlyError) Error() string {
	return fmt.Sprintf("can't set value for field %s on %s (field is inherit-only); try to set it on %s.%s",
		e.Field, e.Instance, e.Relation, e.Target)
}

func (e *InheritOnlyError) Unwrap() error { return ErrInheritOnly }

// Entity is a record that owns inherited fields.
type Entity interface {
	fmt.Stringer
	// Get returns the observed value of a field, inherited fields included.
	Get(name string) (any, error)
	// Stored returns the value held in a concrete field.
	Stored(name string) any
	// SetStored replaces the value held in a concrete field.
	SetStored(name string, v any)
	// Parent returns the record referenced by a foreign key, or nil when
	// the key is empty. A key referring to a missing record yields an
	// error wrapping ErrParentMissing.
	Parent(relation string) (Entity, error)
}

// Inherited reports whether e currently takes the value of f from its
// parent rather than from its local slot.
func Inherited(e Entity, f *schema.InheritedField) bool {
	if !f.Resolved() {
		return false
	}
	if f.InheritOnly {
		return true
	}
	return cast.ToBool(e.Stored(f.Flag.Name))
}

// Get returns the observed value of f on e: the parent's value when the
// field is inherited and the parent exists, the local value otherwise.
// Inherit-only fields without a parent read as nil.
func Get(e Entity, f *schema.InheritedField) (any, error) {
	if Inherited(e, f) {
		p, err := e.Parent(f.Relation)
		switch {
		case err != nil && !errors.Is(err, ErrParentMissing):
			return nil, err
		case err == nil && p != nil:
			return p.Get(f.Target)
		}
	}
	if f.InheritOnly {
		return nil, nil
	}
	return e.Stored(f.Value.Name), nil
}

// Set stores v as the local value of f on e and marks the field inherited
// when v equals the value currently read from the parent. Nothing is
// modified when an error is returned.
func Set(e Entity, f *schema.InheritedField, v any) error {
	if f.InheritOnly {
		return &InheritOnlyError{
			Field:    f.Name,
			Instance: e.String(),
			Relation: f.Relation,
			Target:   f.Target,
		}
	}
	nv, err := f.Value.Normalize(v)
	if err != nil {
		return err
	}
	inherited, err := matchesParent(e, f, nv)
	if err != nil {
		return err
	}
	e.SetStored(f.Flag.Name, inherited)
	e.SetStored(f.Value.Name, nv)
	return nil
}

func matchesParent(e Entity, f *schema.InheritedField, v any) (bool, error) {
	if !f.Resolved() {
		return false, nil
	}
	p, err := e.Parent(f.Relation)
	switch {
	case errors.Is(err, ErrParentMissing):
		return false, nil
	case err != nil:
		return false, err
	case p == nil:
		return false, nil
	}
	pv, err := p.Get(f.Target)
	if errors.Is(err, ErrParentMissing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return equal(v, pv), nil
}

func equal(a, b any) bool {
	as, aok := a.(setfield.Set)
	bs, bok := b.(setfield.Set)
	if aok && bok {
		return as.Equal(bs)
	}
	return reflect.DeepEqual(a, b)
}

// Display renders f for humans. An inherited value is rendered like the
// field it comes from, followed by Marker; a local value is rendered
// without annotation.
func Display(e Entity, f *schema.InheritedField) (string, error) {
	if Inherited(e, f) {
		p, err := e.Parent(f.Relation)
		switch {
		case err != nil && !errors.Is(err, ErrParentMissing):
			return "", err
		case err == nil && p != nil:
			pv, err := p.Get(f.Target)
			if err != nil {
				return "", err
			}
			return f.Source.Display(pv) + Marker, nil
		}
	}
	if f.InheritOnly {
		return "", nil
	}
	return f.Value.Display(e.Stored(f.Value.Name)), nil
}
