package planner

import (
	"sort"

	"github.com/steveyegge/saga/internal/interval"
	"github.com/steveyegge/saga/internal/types"
)

// diffGroup joins a group's coalesced timeline against its original target
// rows and assigns operations: INSERT for new segments, one elected UPDATE
// per surviving target row, DELETE for rows with no descendant, SKIP for
// identical affected segments. Unaffected identical segments emit nothing.
func diffGroup(pc *planContext, g *entityGroup, segs []*coalescedSeg, deleters map[*targetRow][]int64) []types.PlanOp {
	var ops []types.PlanOp

	byAncestor := make(map[*targetRow][]*coalescedSeg)
	for _, cs := range segs {
		if cs.ancestor != nil {
			byAncestor[cs.ancestor] = append(byAncestor[cs.ancestor], cs)
			continue
		}
		ops = append(ops, g.op(pc, types.PlanOp{
			Operation:     types.OpInsert,
			RowIDs:        sortedRowIDs(cs.rowIDs),
			NewValidFrom:  datumPtr(cs.iv.From),
			NewValidUntil: datumPtr(cs.iv.Until),
			Data:          cs.out,
		}, cs))
	}

	for _, tr := range g.targets {
		cands := byAncestor[tr]
		if len(cands) == 0 {
			ops = append(ops, g.op(pc, types.PlanOp{
				Operation:     types.OpDelete,
				RowIDs:        sortedRowIDs(deleters[tr]),
				OldValidFrom:  datumPtr(tr.iv.From),
				OldValidUntil: datumPtr(tr.iv.Until),
			}, nil))
			continue
		}

		// Identical survivor: the target row stands. Interval geometry makes
		// an identical candidate necessarily the only one.
		if len(cands) == 1 && cands[0].iv.Equal(tr.iv) && cands[0].data.Equal(tr.data) {
			cs := cands[0]
			if !cs.affected {
				continue
			}
			ops = append(ops, g.op(pc, types.PlanOp{
				Operation:     types.OpSkipIdentical,
				RowIDs:        sortedRowIDs(cs.rowIDs),
				OldValidFrom:  datumPtr(tr.iv.From),
				OldValidUntil: datumPtr(tr.iv.Until),
				NewValidFrom:  datumPtr(cs.iv.From),
				NewValidUntil: datumPtr(cs.iv.Until),
				Data:          cs.out,
			}, cs))
			continue
		}

		elected := electUpdate(tr, cands)
		for _, cs := range cands {
			if cs == elected {
				ids := append(append([]int64(nil), cs.rowIDs...), deleters[tr]...)
				ops = append(ops, g.op(pc, types.PlanOp{
					Operation:     types.OpUpdate,
					UpdateEffect:  updateEffect(tr.iv, cs.iv),
					RowIDs:        sortedRowIDs(dedupRowIDs(ids)),
					OldValidFrom:  datumPtr(tr.iv.From),
					OldValidUntil: datumPtr(tr.iv.Until),
					NewValidFrom:  datumPtr(cs.iv.From),
					NewValidUntil: datumPtr(cs.iv.Until),
					Data:          cs.out,
				}, cs))
				continue
			}
			ops = append(ops, g.op(pc, types.PlanOp{
				Operation:     types.OpInsert,
				RowIDs:        sortedRowIDs(cs.rowIDs),
				NewValidFrom:  datumPtr(cs.iv.From),
				NewValidUntil: datumPtr(cs.iv.Until),
				Data:          cs.out,
			}, cs))
		}
	}
	return ops
}

// electUpdate picks the single candidate that carries the original row
// forward: prefer the one preserving valid_from, then the closest payload,
// then the earliest interval.
func electUpdate(tr *targetRow, cands []*coalescedSeg) *coalescedSeg {
	best := cands[0]
	bestScore := electionScore(tr, best)
	for _, cs := range cands[1:] {
		score := electionScore(tr, cs)
		if scoreLess(bestScore, score) {
			best = cs
			bestScore = score
		}
	}
	return best
}

type election struct {
	preservesFrom bool
	similarity    int
	from          interval.Bound
	until         interval.Bound
}

func electionScore(tr *targetRow, cs *coalescedSeg) election {
	return election{
		preservesFrom: cs.iv.From.Equal(tr.iv.From),
		similarity:    payloadSimilarity(tr.data, cs.data),
		from:          cs.iv.From,
		until:         cs.iv.Until,
	}
}

// scoreLess reports whether b beats a.
func scoreLess(a, b election) bool {
	if a.preservesFrom != b.preservesFrom {
		return b.preservesFrom
	}
	if a.similarity != b.similarity {
		return b.similarity > a.similarity
	}
	if c := a.from.Compare(b.from); c != 0 {
		return c > 0
	}
	return a.until.Compare(b.until) > 0
}

// payloadSimilarity counts columns with equal values on both sides.
func payloadSimilarity(a, b types.ColumnMap) int {
	n := 0
	for k, v := range a {
		if bv, ok := b[k]; ok && v.Equal(bv) {
			n++
		}
	}
	return n
}

// updateEffect classifies the interval geometry of an update.
func updateEffect(old, next interval.Interval) types.UpdateEffect {
	switch {
	case old.Equal(next):
		return types.EffectNone
	case next.Contains(old):
		return types.EffectGrow
	case old.Contains(next):
		return types.EffectShrink
	default:
		return types.EffectMove
	}
}

// op stamps the group's shared metadata onto an operation.
func (g *entityGroup) op(pc *planContext, op types.PlanOp, cs *coalescedSeg) types.PlanOp {
	op.GroupingKey = g.key
	op.IsNewEntity = g.isNew
	op.CausalID = g.causal
	op.IdentityKeys = g.identity.Clone()
	op.LookupKeys = g.lookups.Clone()
	op.EntityKeys = g.identity.MergeRight(g.lookups)
	if pc.tracing && cs != nil {
		op.Trace = map[string]any{
			"segment":  cs.iv.String(),
			"affected": cs.affected,
		}
	}
	return op
}

func datumPtr(b interval.Bound) *types.Datum {
	d := b.Datum()
	return &d
}

func sortedRowIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func dedupRowIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
