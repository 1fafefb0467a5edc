package interval

import (
	"fmt"
	"time"

	"github.com/steveyegge/saga/internal/types"
)

// Successor returns the next point after d in a discrete domain: +1 day for
// dates, +1 for integers. Continuous subtypes have no successor.
func Successor(d types.Datum, subtype types.RangeSubtype) (types.Datum, error) {
	if d.IsNull() {
		return types.Null(), nil
	}
	switch subtype {
	case types.SubtypeDate:
		if d.Kind != types.KindTime {
			return types.Datum{}, fmt.Errorf("interval: successor of non-time datum in date domain")
		}
		return types.Time(d.Time.Add(24 * time.Hour)), nil
	case types.SubtypeInt:
		if d.Kind != types.KindInt {
			return types.Datum{}, fmt.Errorf("interval: successor of non-integer datum in int domain")
		}
		return types.Int64(d.Int + 1), nil
	}
	return types.Datum{}, fmt.Errorf("interval: range subtype %q has no successor", subtype)
}

// Predecessor is the inverse of Successor. It converts an exclusive
// valid_until into the inclusive mirror valid_to.
func Predecessor(d types.Datum, subtype types.RangeSubtype) (types.Datum, error) {
	if d.IsNull() {
		return types.Null(), nil
	}
	switch subtype {
	case types.SubtypeDate:
		if d.Kind != types.KindTime {
			return types.Datum{}, fmt.Errorf("interval: predecessor of non-time datum in date domain")
		}
		return types.Time(d.Time.Add(-24 * time.Hour)), nil
	case types.SubtypeInt:
		if d.Kind != types.KindInt {
			return types.Datum{}, fmt.Errorf("interval: predecessor of non-integer datum in int domain")
		}
		return types.Int64(d.Int - 1), nil
	}
	return types.Datum{}, fmt.Errorf("interval: range subtype %q has no predecessor", subtype)
}
