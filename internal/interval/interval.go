// Package interval implements the half-open interval algebra the planner is
// built on: bound comparison with unbounded ends, Allen's thirteen relations,
// coverage-without-gaps, and the discrete successor function.
package interval

import (
	"fmt"

	"github.com/steveyegge/saga/internal/types"
)

// Bound is one end of a half-open interval. A NULL valid_from means unbounded
// past; a NULL valid_until means unbounded future.
type Bound struct {
	inf int8 // -1 unbounded past, +1 unbounded future, 0 finite
	v   types.Datum
}

// From converts a valid_from datum to a bound (NULL = unbounded past).
func From(d types.Datum) Bound {
	if d.IsNull() {
		return Bound{inf: -1}
	}
	return Bound{v: d}
}

// Until converts a valid_until datum to a bound (NULL = unbounded future).
func Until(d types.Datum) Bound {
	if d.IsNull() {
		return Bound{inf: 1}
	}
	return Bound{v: d}
}

// Finite wraps a non-NULL datum as a finite bound.
func Finite(d types.Datum) Bound { return Bound{v: d} }

// IsInfinite reports whether the bound is unbounded in either direction.
func (b Bound) IsInfinite() bool { return b.inf != 0 }

// Datum returns the bound's value, NULL for unbounded ends.
func (b Bound) Datum() types.Datum {
	if b.inf != 0 {
		return types.Null()
	}
	return b.v
}

// Compare totally orders bounds: unbounded past < finite values < unbounded
// future.
func (b Bound) Compare(o Bound) int {
	if b.inf != o.inf {
		if b.inf < o.inf {
			return -1
		}
		return 1
	}
	if b.inf != 0 {
		return 0
	}
	return b.v.Compare(o.v)
}

// Equal reports bound equality.
func (b Bound) Equal(o Bound) bool { return b.Compare(o) == 0 }

// String renders the bound for keys and messages.
func (b Bound) String() string {
	switch b.inf {
	case -1:
		return "-infinity"
	case 1:
		return "infinity"
	}
	return b.v.String()
}

// Interval is a canonical half-open interval [From, Until) with From < Until.
type Interval struct {
	From  Bound
	Until Bound
}

// New builds an interval from valid_from/valid_until datums (NULL = unbounded).
func New(from, until types.Datum) Interval {
	return Interval{From: From(from), Until: Until(until)}
}

// Valid reports whether the interval is non-empty.
func (iv Interval) Valid() bool { return iv.From.Compare(iv.Until) < 0 }

// Equal reports whether both intervals have equal bounds.
func (iv Interval) Equal(o Interval) bool {
	return iv.From.Equal(o.From) && iv.Until.Equal(o.Until)
}

// Overlaps reports whether the intervals share any point.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.From.Compare(o.Until) < 0 && o.From.Compare(iv.Until) < 0
}

// Contains reports whether iv fully contains o.
func (iv Interval) Contains(o Interval) bool {
	return iv.From.Compare(o.From) <= 0 && iv.Until.Compare(o.Until) >= 0
}

// ContainsBound reports whether the point b lies inside [From, Until).
func (iv Interval) ContainsBound(b Bound) bool {
	return iv.From.Compare(b) <= 0 && b.Compare(iv.Until) < 0
}

// String renders "[from, until)".
func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.From, iv.Until)
}

// Relation is one of Allen's thirteen interval relations.
type Relation string

const (
	Precedes     Relation = "precedes"
	PrecededBy   Relation = "preceded_by"
	Meets        Relation = "meets"
	MetBy        Relation = "met_by"
	Overlaps     Relation = "overlaps"
	OverlappedBy Relation = "overlapped_by"
	Starts       Relation = "starts"
	StartedBy    Relation = "started_by"
	During       Relation = "during"
	Contains     Relation = "contains"
	Finishes     Relation = "finishes"
	FinishedBy   Relation = "finished_by"
	Equals       Relation = "equals"
)

// Relate classifies the relation of a against b.
func Relate(a, b Interval) Relation {
	fromCmp := a.From.Compare(b.From)
	untilCmp := a.Until.Compare(b.Until)

	switch {
	case fromCmp == 0 && untilCmp == 0:
		return Equals
	case a.Until.Compare(b.From) < 0:
		return Precedes
	case b.Until.Compare(a.From) < 0:
		return PrecededBy
	case a.Until.Compare(b.From) == 0:
		return Meets
	case b.Until.Compare(a.From) == 0:
		return MetBy
	case fromCmp == 0:
		if untilCmp < 0 {
			return Starts
		}
		return StartedBy
	case untilCmp == 0:
		if fromCmp > 0 {
			return Finishes
		}
		return FinishedBy
	case fromCmp > 0 && untilCmp < 0:
		return During
	case fromCmp < 0 && untilCmp > 0:
		return Contains
	case fromCmp < 0:
		return Overlaps
	default:
		return OverlappedBy
	}
}
