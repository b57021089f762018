package sweep

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/banshee-data/glitch.report/internal/errors"
)

func TestAxisCardinality(t *testing.T) {
	tests := []struct {
		axis Axis
		want int
	}{
		{Axis{Name: "width", Low: 0, High: 20, Step: 8}, 3},
		{Axis{Name: "offset", Low: 0, High: 10, Step: 1}, 11},
		{Axis{Name: "a", Low: 5, High: 5, Step: 1}, 1},
		{Axis{Name: "b", Low: 0, High: 0.3, Step: 0.1}, 4},
		{Axis{Name: "c", Low: -10, High: 10, Step: 0.4}, 51},
		{Axis{Name: "d", Low: 0, High: 0.99, Step: 0.5}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.axis.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.axis.Cardinality())
		})
	}
}

func TestScenarioSpace(t *testing.T) {
	s, err := NewSpace(0,
		Axis{Name: "width", Low: 0, High: 20, Step: 8},
		Axis{Name: "offset", Low: 0, High: 10, Step: 1},
	)
	require.NoError(t, err)
	assert.Equal(t, 33, s.Count())

	var got [][]float64
	for st := range s.All() {
		got = append(got, st.Values())
	}
	require.Len(t, got, 33)
	assert.Equal(t, []float64{0, 0}, got[0])
	assert.Equal(t, []float64{0, 10}, got[10])
	assert.Equal(t, []float64{8, 0}, got[11])
	assert.Equal(t, []float64{16, 10}, got[32])
}

func TestGlobalStep(t *testing.T) {
	s, err := NewSpace(0.4,
		Axis{Name: "width", Low: 0, High: 4},
		Axis{Name: "offset", Low: -4, High: 4.4},
		Axis{Name: "ext_offset", Low: 0, High: 2, Step: 1},
	)
	require.NoError(t, err)
	assert.Equal(t, 11*22*3, s.Count())
	assert.Equal(t, 0.4, s.Axes()[1].Step)
}

func TestSpaceBoundsAndDistinct(t *testing.T) {
	s, err := NewSpace(0,
		Axis{Name: "width", Low: -1.5, High: 1.5, Step: 0.3},
		Axis{Name: "offset", Low: 2, High: 3.9, Step: 0.7},
		Axis{Name: "repeat", Low: 1, High: 3, Step: 1},
	)
	require.NoError(t, err)
	axes := s.Axes()

	seen := make(map[string]bool)
	n := 0
	for st := range s.All() {
		for i, v := range st.Values() {
			assert.GreaterOrEqual(t, v, axes[i].Low, st.String())
			assert.LessOrEqual(t, v, axes[i].High, st.String())
		}
		assert.False(t, seen[st.String()], "duplicate %s", st)
		seen[st.String()] = true
		assert.Equal(t, n, st.Index())
		n++
	}
	assert.Equal(t, 11*3*3, n)
	assert.Equal(t, s.Count(), n)
}

func TestIteratorRestart(t *testing.T) {
	s, err := NewSpace(1, Axis{Name: "a", Low: 0, High: 2}, Axis{Name: "b", Low: 0, High: 3})
	require.NoError(t, err)

	drain := func(it *Iterator) []string {
		var out []string
		for st, ok := it.Next(); ok; st, ok = it.Next() {
			out = append(out, st.String())
		}
		return out
	}

	it := s.Iter()
	first := drain(it)
	assert.Equal(t, 0, it.Remaining())
	_, ok := it.Next()
	assert.False(t, ok)

	it.Reset()
	assert.Equal(t, 12, it.Remaining())
	second := drain(it)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("restarted sequence differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, "a=0 b=0", first[0])
	assert.Equal(t, "a=0 b=1", first[1])

	// A second space built from the same axes yields the same sequence.
	again, err := NewSpace(1, Axis{Name: "a", Low: 0, High: 2}, Axis{Name: "b", Low: 0, High: 3})
	require.NoError(t, err)
	assert.Equal(t, first, drain(again.Iter()))
}

func TestReorder(t *testing.T) {
	s, err := NewSpace(1, Axis{Name: "a", Low: 0, High: 1}, Axis{Name: "b", Low: 0, High: 2})
	require.NoError(t, err)

	r, err := s.Reorder("b", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, r.Names())
	assert.Equal(t, "b=0 a=1", r.At(1).String())

	_, err = s.Reorder("a")
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
	_, err = s.Reorder("a", "a")
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
}

func TestNewSpaceRejects(t *testing.T) {
	tests := []struct {
		name string
		step float64
		axes []Axis
	}{
		{name: "no axes"},
		{name: "no step", axes: []Axis{{Name: "a", Low: 0, High: 1}}},
		{name: "negative step", axes: []Axis{{Name: "a", Low: 0, High: 1, Step: -1}}},
		{name: "inverted", step: 1, axes: []Axis{{Name: "a", Low: 2, High: 1}}},
		{name: "unnamed", step: 1, axes: []Axis{{Low: 0, High: 1}}},
		{name: "duplicate", step: 1, axes: []Axis{{Name: "a", High: 1}, {Name: "a", High: 1}}},
		{name: "too large", step: 1e-6, axes: []Axis{{Name: "a", High: 100}}},
		{name: "beyond int range", axes: []Axis{{Name: "ext_offset", Low: 0, High: 1e20, Step: 1}}},
		{name: "tiny step", axes: []Axis{{Name: "a", Low: 0, High: 1, Step: 1e-300}}},
		{name: "infinite bound", axes: []Axis{{Name: "a", Low: 0, High: math.Inf(1), Step: 1}}},
		{name: "product too large", axes: []Axis{{Name: "a", High: 9999, Step: 1}, {Name: "b", High: 9999, Step: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSpace(tt.step, tt.axes...)
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
			assert.Nil(t, s)
		})
	}
}

func TestCardinalitySaturates(t *testing.T) {
	assert.Equal(t, MaxTrials+1, Axis{Name: "a", High: 1e20, Step: 1}.Cardinality())
	assert.Equal(t, MaxTrials+1, Axis{Name: "a", High: 1, Step: 1e-300}.Cardinality())
	assert.Equal(t, MaxTrials, Axis{Name: "a", High: MaxTrials - 1, Step: 1}.Cardinality())
}

func TestSettingIsImmutable(t *testing.T) {
	st := NewSetting(4, []string{"width", "offset"}, []float64{8, 3})
	vals := st.Values()
	vals[0] = 99
	names := st.Names()
	names[0] = "x"

	w, ok := st.Get("width")
	assert.True(t, ok)
	assert.Equal(t, 8.0, w)
	_, ok = st.Get("repeat")
	assert.False(t, ok)
	assert.Equal(t, map[string]float64{"width": 8, "offset": 3}, st.Map())
	assert.Equal(t, 4, st.Index())
	assert.Equal(t, 2, st.Len())
}

func TestParseAxisSpec(t *testing.T) {
	a, err := ParseAxisSpec("width=0:20:8")
	require.NoError(t, err)
	assert.Equal(t, Axis{Name: "width", Low: 0, High: 20, Step: 8}, a)

	a, err = ParseAxisSpec(" offset = -4.5:4.5")
	require.NoError(t, err)
	assert.Equal(t, Axis{Name: "offset", Low: -4.5, High: 4.5}, a)

	for _, bad := range []string{"width", "=0:1", "width=0", "width=a:1", "width=0:1:0", "width=0:1:x"} {
		_, err := ParseAxisSpec(bad)
		assert.Error(t, err, bad)
	}

	axes, err := ParseAxisList("width=0:20:8,offset=0:10:1")
	require.NoError(t, err)
	assert.Len(t, axes, 2)

	axes, err = ParseAxisList("  ")
	require.NoError(t, err)
	assert.Nil(t, axes)
}
