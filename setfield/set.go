// Package setfield implements a set of primitive identifiers persisted as
// a single text column.
//
// The column is an internal cache: it is neither editable nor queryable,
// and its format is only guaranteed to be stable within one release.
package setfield

import (
	"cmp"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/goccy/go-json"
)

// ErrUnhashable is returned when a value cannot be a Set member.
var ErrUnhashable = errors.New("setfield: unhashable member")

// Set is a set of int64, string, float64 and bool members.
// Other integer and float widths are normalized on insertion.
type Set map[any]struct{}

// Of builds a Set from the given members.
func Of(members ...any) (Set, error) {
	s := make(Set, len(members))
	if err := s.Add(members...); err != nil {
		return nil, err
	}
	return s, nil
}

// MustOf is like Of but panics on an unhashable member.
func MustOf(members ...any) Set {
	s, err := Of(members...)
	if err != nil {
		panic(err)
	}
	return s
}

// Normalize converts v into the canonical member representation.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case int64, string, bool:
		return x, nil
	case float64:
		return finite(x)
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnhashable, x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnhashable, x)
		}
		return int64(x), nil
	case float32:
		return finite(float64(x))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnhashable, v)
	}
}

// finite rejects NaN, which never equals itself, and the infinities, which
// have no JSON encoding.
func finite(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrUnhashable, f)
	}
	return f, nil
}

// Add inserts members. Nothing is inserted if any member is unhashable.
func (s Set) Add(members ...any) error {
	norm := make([]any, len(members))
	for i, m := range members {
		n, err := Normalize(m)
		if err != nil {
			return err
		}
		norm[i] = n
	}
	for _, n := range norm {
		s[n] = struct{}{}
	}
	return nil
}

// Discard removes members; absent or unhashable members are ignored.
func (s Set) Discard(members ...any) {
	for _, m := range members {
		if n, err := Normalize(m); err == nil {
			delete(s, n)
		}
	}
}

// Has reports whether m is a member.
func (s Set) Has(m any) bool {
	n, err := Normalize(m)
	if err != nil {
		return false
	}
	_, ok := s[n]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int { return len(s) }

// Clear removes every member.
func (s Set) Clear() { clear(s) }

// Clone returns an independent copy; a nil Set clones to an empty one.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for m := range s {
		c[m] = struct{}{}
	}
	return c
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for m := range s {
		if _, ok := o[m]; !ok {
			return false
		}
	}
	return true
}

// Members returns the members in a deterministic order: bools, integers,
// floats, then strings, each ascending.
func (s Set) Members() []any {
	w := s.wire()
	out := make([]any, 0, len(s))
	for _, v := range w.Bools {
		out = append(out, v)
	}
	for _, v := range w.Ints {
		out = append(out, v)
	}
	for _, v := range w.Floats {
		out = append(out, v)
	}
	for _, v := range w.Strings {
		out = append(out, v)
	}
	return out
}

func (s Set) String() string {
	return fmt.Sprint(s.Members())
}

// wire is the storage layout: one sorted array per member type.
type wire struct {
	Bools   []bool    `json:"b,omitempty"`
	Ints    []int64   `json:"i,omitempty"`
	Floats  []float64 `json:"f,omitempty"`
	Strings []string  `json:"s,omitempty"`
}

func (s Set) wire() wire {
	var w wire
	for m := range s {
		switch x := m.(type) {
		case bool:
			w.Bools = append(w.Bools, x)
		case int64:
			w.Ints = append(w.Ints, x)
		case float64:
			w.Floats = append(w.Floats, x)
		case string:
			w.Strings = append(w.Strings, x)
		}
	}
	slices.SortFunc(w.Bools, func(a, b bool) int {
		switch {
		case a == b:
			return 0
		case !a:
			return -1
		default:
			return 1
		}
	})
	slices.Sort(w.Ints)
	slices.SortFunc(w.Floats, cmp.Compare[float64])
	slices.Sort(w.Strings)
	return w
}

// Encode renders s in its storage form. The output for equal sets is
// byte-identical.
func Encode(s Set) (string, error) {
	b, err := json.Marshal(s.wire())
	if err != nil {
		return "", fmt.Errorf("setfield: encode: %w", err)
	}
	return string(b), nil
}

// Decode parses the storage form. Empty input yields an empty, non-nil Set.
func Decode(raw string) (Set, error) {
	s := make(Set)
	if raw == "" {
		return s, nil
	}
	var w wire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("setfield: decode: %w", err)
	}
	for _, v := range w.Bools {
		s[v] = struct{}{}
	}
	for _, v := range w.Ints {
		s[v] = struct{}{}
	}
	for _, v := range w.Floats {
		s[v] = struct{}{}
	}
	for _, v := range w.Strings {
		s[v] = struct{}{}
	}
	return s, nil
}

// Value implements driver.Valuer.
func (s Set) Value() (driver.Value, error) {
	return Encode(s)
}

// Scan implements sql.Scanner. NULL scans to an empty Set.
func (s *Set) Scan(src any) error {
	var raw string
	switch x := src.(type) {
	case nil:
	case string:
		raw = x
	case []byte:
		raw = string(x)
	default:
		return fmt.Errorf("setfield: cannot scan %T", src)
	}
	decoded, err := Decode(raw)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
