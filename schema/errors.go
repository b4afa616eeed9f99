package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingRelation is wrapped by a ValidationError when the parent
	// relation of an inherited field is not declared on the owning model.
	ErrMissingRelation = errors.New("schema: missing relation")
	// ErrMissingTarget is wrapped when the inherited target does not exist
	// on the parent model or any of its ancestors.
	ErrMissingTarget = errors.New("schema: missing target field")
	// ErrNotRelation is wrapped when the parent attribute exists but is not
	// a foreign key.
	ErrNotRelation = errors.New("schema: not a relation")
	// ErrCyclicInheritance is wrapped when following inherited targets
	// leads back to a field already on the chain.
	ErrCyclicInheritance = errors.New("schema: cyclic inheritance")

	ErrDuplicateField = errors.New("schema: duplicate field")
	ErrDuplicateModel = errors.New("schema: duplicate model")
	ErrUnknownModel   = errors.New("schema: unknown model")
	ErrAlreadyBuilt   = errors.New("schema: builder already built")
)

// ValidationError reports an inherited field whose declaration cannot be
// resolved. Model names the model the failing lookup ran against, which is
// the parent model for a missing target.
type ValidationError struct {
	Err      error
	Owner    string
	Field    string
	Model    string
	Relation string
	Target   string
	Kind     Kind
	Chain    []string
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Err, ErrMissingRelation):
		return fmt.Sprintf("inherited field: %s does not exist on %s", e.Relation, e.Model)
	case errors.Is(e.Err, ErrMissingTarget):
		return fmt.Sprintf("inherited field: %s does not exist in %s", e.Target, e.Model)
	case errors.Is(e.Err, ErrNotRelation):
		return fmt.Sprintf("inherited field: %s is a %s instead of a relation", e.Relation, e.Kind)
	case errors.Is(e.Err, ErrCyclicInheritance):
		return fmt.Sprintf("inherited field: %s.%s inherits from itself through %s",
			e.Owner, e.Field, strings.Join(e.Chain, PathSeparator))
	}
	return fmt.Sprintf("inherited field: %s.%s: %v", e.Owner, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DuplicateFieldError reports two declarations sharing a name on one model.
type DuplicateFieldError struct {
	Model string
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("schema: field %s declared twice on %s", e.Field, e.Model)
}

func (e *DuplicateFieldError) Unwrap() error { return ErrDuplicateField }

// UnknownModelError reports a relation whose target model was never declared.
type UnknownModelError struct {
	Model string
	Field string
	To    string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("schema: %s.%s refers to undeclared model %s", e.Model, e.Field, e.To)
}

func (e *UnknownModelError) Unwrap() error { return ErrUnknownModel }
