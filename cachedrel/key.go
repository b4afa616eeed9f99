package cachedrel

import (
	"errors"
	"fmt"

	"github.com/spf13/cast"
)

var (
	// ErrUnsavedOwner is returned when mutating the relation of a record
	// that has no primary key yet.
	ErrUnsavedOwner = errors.New("cachedrel: owner must be saved before using its relation")
	// ErrUnsavedRelated is returned when adding or removing a record that
	// has no primary key yet.
	ErrUnsavedRelated = errors.New("cachedrel: related object has no primary key")
)

// Keyer is implemented by records. PK returns nil for unsaved records.
type Keyer interface {
	PK() any
}

// KeyFunc extracts the value stored in the cache for a related object.
type KeyFunc func(obj any) (any, error)

// DefaultKey returns the primary key of a Keyer, or the object itself when
// it is already an identifier: any integer, or a string holding one.
// Identifiers are returned as int64.
func DefaultKey(obj any) (any, error) {
	return primaryKey(obj)
}

func primaryKey(obj any) (int64, error) {
	v := obj
	if k, ok := obj.(Keyer); ok {
		v = k.PK()
		if v == nil {
			return 0, ErrUnsavedRelated
		}
	}
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, string, []byte:
	default:
		return 0, fmt.Errorf("cachedrel: cannot use %T as a related key", obj)
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	id, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("cachedrel: cannot use %v as a related key: %w", obj, err)
	}
	return id, nil
}
