package setfield

import (
	"errors"
	"fmt"
)

// ErrUnsupportedLookup is matched by every LookupError.
var ErrUnsupportedLookup = errors.New("setfield: unsupported lookup")

// LookupError is returned for any comparison against a set column.
type LookupError struct {
	Field string
	Op    string
}

func (e *LookupError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("lookup type %s not supported", e.Op)
	}
	return fmt.Sprintf("lookup type %s not supported on %s", e.Op, e.Field)
}

func (e *LookupError) Unwrap() error { return ErrUnsupportedLookup }

// Lookup always fails: set columns are opaque to the query engine.
func Lookup(field, op string) error {
	return &LookupError{Field: field, Op: op}
}
