package campaign

import (
	"encoding/binary"
	"fmt"
)

// Predicate classifies a well-formed payload. ok is false when the payload
// is too short or otherwise malformed for the predicate, in which case the
// trial is skipped.
type Predicate func(payload []byte) (success, ok bool)

// DefaultBaseline is the loop count the stock glitch firmware reports when
// left undisturbed.
const DefaultBaseline = 2500

// BaselineUint32 reports success when the first four payload bytes, read as
// a little-endian uint32, differ from baseline.
func BaselineUint32(baseline uint32) Predicate {
	return func(p []byte) (bool, bool) {
		if len(p) < 4 {
			return false, false
		}
		return binary.LittleEndian.Uint32(p) != baseline, true
	}
}

// NonzeroByte reports success when payload[index] is nonzero.
func NonzeroByte(index int) Predicate {
	return func(p []byte) (bool, bool) {
		if index < 0 || index >= len(p) {
			return false, false
		}
		return p[index] != 0, true
	}
}

// PredicateByName builds "baseline_u32" or "nonzero_byte".
func PredicateByName(kind string, baseline uint32, index int) (Predicate, error) {
	switch kind {
	case "", "baseline_u32":
		return BaselineUint32(baseline), nil
	case "nonzero_byte":
		return NonzeroByte(index), nil
	default:
		return nil, fmt.Errorf("unknown predicate %q", kind)
	}
}
