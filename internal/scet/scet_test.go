package scet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareAgreesWithFloat(t *testing.T) {
	stamps := []SCET{
		{},
		{Coarse: 0, Fine: 1},
		{Coarse: 0, Fine: 65535},
		{Coarse: 1, Fine: 0},
		{Coarse: 1, Fine: 1},
		{Coarse: 100, Fine: 32768},
		{Coarse: 4294967295, Fine: 65535},
	}
	for i := range stamps {
		for j := range stamps {
			want := 0
			switch {
			case stamps[i].AsFloat() < stamps[j].AsFloat():
				want = -1
			case stamps[i].AsFloat() > stamps[j].AsFloat():
				want = 1
			}
			assert.Equal(t, want, stamps[i].Compare(stamps[j]),
				"%v vs %v", stamps[i], stamps[j])
		}
	}
}

func TestBeforeAfter(t *testing.T) {
	a := SCET{Coarse: 10, Fine: 0}
	b := SCET{Coarse: 10, Fine: 1}
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.Before(a))
	assert.False(t, a.After(a))
}

func TestAsFloat(t *testing.T) {
	assert.Equal(t, 0.0, SCET{}.AsFloat())
	assert.Equal(t, 1.5, SCET{Coarse: 1, Fine: 32768}.AsFloat())
	assert.InDelta(t, 100.25, SCET{Coarse: 100, Fine: 16384}.AsFloat(), 1e-12)
}

func TestFromFloatRoundTrip(t *testing.T) {
	for _, f := range []float64{0, 0.5, 1.25, 661111085.8125} {
		got := FromFloat(f)
		assert.InDelta(t, f, got.AsFloat(), 1.0/65536, "f=%v", f)
	}
	assert.Equal(t, SCET{}, FromFloat(-3))
	// Rounding at the top of a second carries into coarse.
	assert.Equal(t, SCET{Coarse: 2, Fine: 0}, FromFloat(1.9999999))
}

func TestParseString(t *testing.T) {
	s := SCET{Coarse: 661111085, Fine: 4660}
	parsed, err := Parse(s.String())
	require.NoError(t, err)
	assert.Equal(t, s, parsed)

	for _, bad := range []string{"", "12", "a:b", "1:70000", "-1:0", "1:2:3"} {
		_, err := Parse(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestUTCOrdering(t *testing.T) {
	a := SCET{Coarse: 661111085, Fine: 0}
	b := SCET{Coarse: 661111086, Fine: 0}
	require.True(t, a.UTC().Before(b.UTC()))
}

func TestIsZero(t *testing.T) {
	assert.True(t, SCET{}.IsZero())
	assert.False(t, SCET{Fine: 1}.IsZero())
}
