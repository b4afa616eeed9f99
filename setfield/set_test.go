package setfield_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/ormfields/setfield"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	cases := map[string]setfield.Set{
		"empty":    setfield.MustOf(),
		"ints":     setfield.MustOf(3, 1, 2),
		"strings":  setfield.MustOf("b", "a"),
		"mixed":    setfield.MustOf(int64(7), "7", 1.5, true, false),
		"negative": setfield.MustOf(-1, 0, int32(42)),
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			raw, err := setfield.Encode(s)
			require.NoError(t, err)
			got, err := setfield.Decode(raw)
			require.NoError(t, err)
			assert.True(t, s.Equal(got), "Decode(Encode(%v)) = %v", s, got)
		})
	}
}

func TestDecodeEmptyIsNotNil(t *testing.T) {
	t.Parallel()

	got, err := setfield.Decode("")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.Len())

	var scanned setfield.Set
	require.NoError(t, scanned.Scan(nil))
	require.NotNil(t, scanned)
	assert.Equal(t, 0, scanned.Len())
}

func TestEncodeIsStable(t *testing.T) {
	t.Parallel()

	a, err := setfield.Encode(setfield.MustOf(5, 3, 9, "x"))
	require.NoError(t, err)
	b, err := setfield.Encode(setfield.MustOf("x", 9, 5, 3))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, `{"i":[3,5,9],"s":["x"]}`, a)
}

func TestNormalizeIntegerWidths(t *testing.T) {
	t.Parallel()

	s := setfield.MustOf(int8(1), uint16(2), 3)
	assert.True(t, s.Has(int64(1)))
	assert.True(t, s.Has(2))
	assert.True(t, s.Has(uint64(3)))
	assert.False(t, s.Has("1"))
}

func TestAddRejectsUnhashable(t *testing.T) {
	t.Parallel()

	s := setfield.MustOf(1)
	err := s.Add(2, []int{3})
	require.ErrorIs(t, err, setfield.ErrUnhashable)
	assert.Equal(t, 1, s.Len(), "no member is added when one is rejected")
}

func TestAddRejectsNonFiniteFloats(t *testing.T) {
	t.Parallel()

	for _, f := range []any{math.NaN(), math.Inf(1), math.Inf(-1), float32(math.Inf(1))} {
		s := setfield.MustOf(1, 2.5)
		require.ErrorIs(t, s.Add(f), setfield.ErrUnhashable, "%v", f)
		assert.Equal(t, 2, s.Len())

		raw, err := setfield.Encode(s)
		require.NoError(t, err)
		back, err := setfield.Decode(raw)
		require.NoError(t, err)
		assert.True(t, s.Equal(back))
	}
	_, err := setfield.Of(math.NaN())
	require.ErrorIs(t, err, setfield.ErrUnhashable)
}

func TestValueAndScan(t *testing.T) {
	t.Parallel()

	s := setfield.MustOf(10, 20)
	v, err := s.Value()
	require.NoError(t, err)

	var got setfield.Set
	require.NoError(t, got.Scan([]byte(v.(string))))
	assert.True(t, s.Equal(got))

	require.Error(t, got.Scan(42))
	require.Error(t, got.Scan("not json"))
}

func TestDiscardAndClear(t *testing.T) {
	t.Parallel()

	s := setfield.MustOf(1, 2, 3)
	s.Discard(2, 99, []int{})
	assert.Equal(t, []any{int64(1), int64(3)}, s.Members())

	c := s.Clone()
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 2, c.Len())
}

func TestLookupAlwaysFails(t *testing.T) {
	t.Parallel()

	for _, op := range []string{"exact", "in", "contains", "isnull"} {
		err := setfield.Lookup("cmtm_a_cache", op)
		require.Error(t, err)
		assert.True(t, errors.Is(err, setfield.ErrUnsupportedLookup))

		var le *setfield.LookupError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, op, le.Op)
		assert.Equal(t, "lookup type "+op+" not supported on cmtm_a_cache", err.Error())
	}
}
