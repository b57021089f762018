package sweep

import (
	"fmt"
	"strconv"
	"strings"
)

// RangeSpec is an inclusive range with an optional step. A zero step means
// the step is taken from the space.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// ParseRangeSpec parses "min:max" or "min:max:step".
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max[:step]", s)
	}

	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}

	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}

	spec := RangeSpec{Min: min, Max: max}
	if len(parts) == 3 {
		step, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid step value %q: %w", parts[2], err)
		}
		if step <= 0 {
			return RangeSpec{}, fmt.Errorf("step must be positive, got %g", step)
		}
		spec.Step = step
	}
	return spec, nil
}

// ParseAxisSpec parses "name=min:max[:step]" into an Axis.
func ParseAxisSpec(s string) (Axis, error) {
	name, rng, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Axis{}, fmt.Errorf("invalid axis %q: expected name=min:max[:step]", s)
	}
	spec, err := ParseRangeSpec(rng)
	if err != nil {
		return Axis{}, fmt.Errorf("axis %s: %w", name, err)
	}
	return Axis{Name: name, Low: spec.Min, High: spec.Max, Step: spec.Step}, nil
}

// ParseAxisList parses a comma-separated list of axis specs.
func ParseAxisList(s string) ([]Axis, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var axes []Axis
	for _, part := range strings.Split(s, ",") {
		a, err := ParseAxisSpec(part)
		if err != nil {
			return nil, err
		}
		axes = append(axes, a)
	}
	return axes, nil
}
