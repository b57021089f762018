// Package sweep enumerates the glitch parameter space of a campaign.
package sweep

import (
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/banshee-data/glitch.report/internal/errors"
)

// MaxTrials bounds the size of a space.
const MaxTrials = 10_000_000

// cardinalityEpsilon absorbs float error in (high-low)/step, so that
// [0, 0.3] step 0.1 has four values.
const cardinalityEpsilon = 1e-9

// Axis is one named glitch parameter with an inclusive range.
type Axis struct {
	Name string  `json:"name"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
	// Step of zero uses the space's global step.
	Step float64 `json:"step,omitempty"`
}

// Cardinality is floor((high-low)/step) + 1. Counts above MaxTrials, and
// ranges too wide to count, saturate at MaxTrials+1.
func (a Axis) Cardinality() int {
	n := a.cardinality()
	if !finite(n) || n > MaxTrials {
		return MaxTrials + 1
	}
	return int(n)
}

func (a Axis) cardinality() float64 {
	return math.Floor((a.High-a.Low)/a.Step+cardinalityEpsilon) + 1
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Value returns the i-th value of the axis.
func (a Axis) Value(i int) float64 {
	v := a.Low + float64(i)*a.Step
	v = math.Round(v*1e9) / 1e9
	return math.Min(v, a.High)
}

// Space is an ordered set of axes. The first axis varies slowest.
type Space struct {
	axes  []Axis
	card  []int
	total int
}

// NewSpace validates axes and resolves their steps against globalStep.
func NewSpace(globalStep float64, axes ...Axis) (*Space, error) {
	if len(axes) == 0 {
		return nil, apperrors.ErrInvalidConfiguration.Withf("parameter space has no axes")
	}
	s := &Space{total: 1}
	seen := make(map[string]bool, len(axes))
	for _, a := range axes {
		if a.Name == "" {
			return nil, apperrors.ErrInvalidConfiguration.Withf("axis without a name")
		}
		if seen[a.Name] {
			return nil, apperrors.ErrInvalidConfiguration.Withf("duplicate axis %s", a.Name)
		}
		seen[a.Name] = true
		if a.Step == 0 {
			a.Step = globalStep
		}
		if a.Step <= 0 || math.IsNaN(a.Step) {
			return nil, apperrors.ErrInvalidConfiguration.Withf("axis %s: step must be positive", a.Name)
		}
		if !finite(a.Low) || !finite(a.High) || !finite(a.Step) {
			return nil, apperrors.ErrInvalidConfiguration.Withf("axis %s: bounds and step must be finite", a.Name)
		}
		if a.Low > a.High {
			return nil, apperrors.ErrInvalidConfiguration.Withf("axis %s: low %g above high %g", a.Name, a.Low, a.High)
		}
		nf := a.cardinality()
		if !finite(nf) || nf > float64(MaxTrials/s.total) {
			return nil, apperrors.ErrInvalidConfiguration.Withf("parameter space exceeds %d trials", MaxTrials)
		}
		n := int(nf)
		s.total *= n
		s.axes = append(s.axes, a)
		s.card = append(s.card, n)
	}
	return s, nil
}

// Axes returns a copy of the resolved axes.
func (s *Space) Axes() []Axis {
	return append([]Axis(nil), s.axes...)
}

// Names returns the axis names in iteration order.
func (s *Space) Names() []string {
	names := make([]string, len(s.axes))
	for i, a := range s.axes {
		names[i] = a.Name
	}
	return names
}

// Count is the number of settings in the space.
func (s *Space) Count() int { return s.total }

// Reorder returns a space with the same axes in the given order.
func (s *Space) Reorder(names ...string) (*Space, error) {
	if len(names) != len(s.axes) {
		return nil, apperrors.ErrInvalidConfiguration.Withf("reorder needs all %d axes", len(s.axes))
	}
	byName := make(map[string]Axis, len(s.axes))
	for _, a := range s.axes {
		byName[a.Name] = a
	}
	axes := make([]Axis, 0, len(names))
	for _, n := range names {
		a, ok := byName[n]
		if !ok {
			return nil, apperrors.ErrInvalidConfiguration.Withf("unknown or repeated axis %s", n)
		}
		delete(byName, n)
		axes = append(axes, a)
	}
	return NewSpace(0, axes...)
}

// At returns the setting at position i in iteration order.
func (s *Space) At(i int) Setting {
	values := make([]float64, len(s.axes))
	rem := i
	for d := len(s.axes) - 1; d >= 0; d-- {
		values[d] = s.axes[d].Value(rem % s.card[d])
		rem /= s.card[d]
	}
	return Setting{index: i, names: s.Names(), values: values}
}

// Iter returns a fresh iterator positioned at the first setting.
func (s *Space) Iter() *Iterator {
	return &Iterator{space: s}
}

// All yields every setting in order.
func (s *Space) All() iter.Seq[Setting] {
	return func(yield func(Setting) bool) {
		for i := 0; i < s.total; i++ {
			if !yield(s.At(i)) {
				return
			}
		}
	}
}

// Iterator walks a space lazily. It is not safe for concurrent use.
type Iterator struct {
	space *Space
	next  int
}

// Next returns the next setting, or false once the space is exhausted.
func (it *Iterator) Next() (Setting, bool) {
	if it.next >= it.space.total {
		return Setting{}, false
	}
	st := it.space.At(it.next)
	it.next++
	return st, true
}

// Reset rewinds to the first setting.
func (it *Iterator) Reset() { it.next = 0 }

// Remaining is the number of settings not yet returned.
func (it *Iterator) Remaining() int { return it.space.total - it.next }

// Setting is one value per axis. It is immutable.
type Setting struct {
	index  int
	names  []string
	values []float64
}

// NewSetting builds a setting outside of a space, mainly for tests and
// for decoding stored trials.
func NewSetting(index int, names []string, values []float64) Setting {
	return Setting{
		index:  index,
		names:  append([]string(nil), names...),
		values: append([]float64(nil), values...),
	}
}

// Index is the position of the setting in its space.
func (s Setting) Index() int { return s.index }

// Len is the number of axes.
func (s Setting) Len() int { return len(s.names) }

// Names returns the axis names.
func (s Setting) Names() []string { return append([]string(nil), s.names...) }

// Values returns the axis values.
func (s Setting) Values() []float64 { return append([]float64(nil), s.values...) }

// Get returns the value of the named axis.
func (s Setting) Get(name string) (float64, bool) {
	for i, n := range s.names {
		if n == name {
			return s.values[i], true
		}
	}
	return 0, false
}

// Map returns the setting as name → value.
func (s Setting) Map() map[string]float64 {
	m := make(map[string]float64, len(s.names))
	for i, n := range s.names {
		m[n] = s.values[i]
	}
	return m
}

func (s Setting) String() string {
	var b strings.Builder
	for i, n := range s.names {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(s.values[i], 'g', -1, 64))
	}
	return b.String()
}

// GoString formats the setting for test failure output.
func (s Setting) GoString() string {
	return fmt.Sprintf("sweep.Setting{%d: %s}", s.index, s)
}
