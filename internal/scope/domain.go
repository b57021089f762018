package scope

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Domain declares the values a setting accepts. Normalize returns the
// canonical form of v (float64 for ranges, string for enums, bool for flags).
type Domain interface {
	Normalize(v interface{}) (interface{}, error)
	String() string
}

// Range is an inclusive numeric interval.
type Range struct {
	Min, Max float64
	Integer  bool
}

func toFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as number", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

// Normalize implements Domain.
func (r Range) Normalize(v interface{}) (interface{}, error) {
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || f < r.Min || f > r.Max {
		return nil, fmt.Errorf("%v outside %s", f, r)
	}
	if r.Integer && f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	return f, nil
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

// Enum is a closed set of names.
type Enum []string

// Normalize implements Domain.
func (e Enum) Normalize(v interface{}) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected one of %s, got %T", e, v)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for _, name := range e {
		if name == s {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%q not one of %s", s, e)
}

func (e Enum) index(s string) int {
	for i, name := range e {
		if name == s {
			return i
		}
	}
	return -1
}

func (e Enum) String() string {
	return "{" + strings.Join(e, ", ") + "}"
}

// Flag is a boolean setting.
type Flag struct{}

// Normalize implements Domain.
func (Flag) Normalize(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as bool", val)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
}

func (Flag) String() string { return "{true, false}" }
