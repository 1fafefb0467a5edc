package planner

import (
	"sort"

	"github.com/steveyegge/saga/internal/interval"
	"github.com/steveyegge/saga/internal/types"
)

// orderPlan sorts the plan into its final FK-safe execution sequence and
// assigns dense 1-based sequence numbers.
//
// Rank within an entity: INSERT < UPDATE < DELETE < SKIP/ERROR, and among
// UPDATEs no-effect < grow < shrink < move. INSERTs lead so re-linked
// timelines never dangle; growing before shrinking keeps the timeline free of
// transient gaps while the executor runs.
func orderPlan(ops []types.PlanOp) []types.PlanOp {
	sort.SliceStable(ops, func(i, j int) bool {
		a, b := &ops[i], &ops[j]
		if a.GroupingKey != b.GroupingKey {
			return a.GroupingKey < b.GroupingKey
		}
		ak, bk := a.EntityKeys.CanonicalJSON(), b.EntityKeys.CanonicalJSON()
		if ak != bk {
			return ak < bk
		}
		if ar, br := a.Operation.Rank(), b.Operation.Rank(); ar != br {
			return ar < br
		}
		if ar, br := a.UpdateEffect.Rank(), b.UpdateEffect.Rank(); ar != br {
			return ar < br
		}
		aLeast, aGreatest := fromPair(a)
		bLeast, bGreatest := fromPair(b)
		if c := aLeast.Compare(bLeast); c != 0 {
			return c < 0
		}
		if c := aGreatest.Compare(bGreatest); c != 0 {
			return c < 0
		}
		return firstRowID(a) < firstRowID(b)
	})
	for i := range ops {
		ops[i].Seq = i + 1
	}
	return ops
}

// fromPair returns the op's old/new start bounds as an ordered (least,
// greatest) pair. An absent bound sorts like an unbounded past so pure
// inserts and deletes rank by their single known start.
func fromPair(op *types.PlanOp) (interval.Bound, interval.Bound) {
	old := fromBound(op.OldValidFrom)
	next := fromBound(op.NewValidFrom)
	if old.Compare(next) <= 0 {
		return old, next
	}
	return next, old
}

func fromBound(d *types.Datum) interval.Bound {
	if d == nil {
		return interval.From(types.Null())
	}
	return interval.From(*d)
}

func firstRowID(op *types.PlanOp) int64 {
	if len(op.RowIDs) == 0 {
		return 1<<63 - 1
	}
	return op.RowIDs[0]
}
