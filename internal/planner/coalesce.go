package planner

import (
	"sort"

	"github.com/steveyegge/saga/internal/interval"
	"github.com/steveyegge/saga/internal/types"
)

// coalescedSeg is an island of adjacent atomic segments with identical
// non-ephemeral payload, aggregated into one output segment.
type coalescedSeg struct {
	iv   interval.Interval
	data types.ColumnMap // non-ephemeral payload, used for change detection
	eph  types.ColumnMap
	// out is the materialized output payload: data overlaid with ephemerals,
	// mirror column rewritten from the final interval.
	out      types.ColumnMap
	rowIDs   []int64
	affected bool
	// ancestor is the original target row the segment descends from: the one
	// covering the island's first target-covered atomic.
	ancestor *targetRow
}

// coalesce merges adjacent surviving segments via a single gaps-and-islands
// pass: an atomic begins a new island when it is not flush with its
// predecessor or its payload hash differs.
func coalesce(pc *planContext, segs []*resolvedSeg) []*coalescedSeg {
	live := make([]*resolvedSeg, 0, len(segs))
	for _, rs := range segs {
		if !rs.deleted {
			live = append(live, rs)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].iv.From.Compare(live[j].iv.From) < 0 })

	var out []*coalescedSeg
	var cur *coalescedSeg
	var curHash string
	var prev *resolvedSeg
	for _, rs := range live {
		h := rs.data.Hash(nil)
		// A target-row boundary with no source on either side stays a
		// boundary: pre-existing rows the batch never touched are not
		// rewritten just because their payloads happen to match.
		inertBoundary := prev != nil && prev.target != rs.target &&
			len(prev.sources) == 0 && len(rs.sources) == 0
		if cur == nil || !cur.iv.Until.Equal(rs.iv.From) || h != curHash || inertBoundary {
			cur = &coalescedSeg{iv: rs.iv}
			curHash = h
			out = append(out, cur)
		}
		prev = rs
		cur.iv.Until = rs.iv.Until
		// Same hash across the island means same non-ephemeral payload; the
		// latest atomic still wins so ephemerals track the newest contribution.
		cur.data = rs.data
		cur.eph = rs.eph
		cur.affected = cur.affected || rs.affected
		for _, sr := range rs.sources {
			cur.rowIDs = appendRowID(cur.rowIDs, sr.id)
		}
		if cur.ancestor == nil && rs.target != nil {
			cur.ancestor = rs.target
		}
	}

	for _, cs := range out {
		finalizePayload(pc, cs)
	}
	return out
}

// finalizePayload materializes the output payload: ephemerals overlaid on the
// data payload, then the mirror column rewritten from the final interval.
// Merge first, mirror second: an output row's valid_to always equals
// predecessor(valid_until).
func finalizePayload(pc *planContext, cs *coalescedSeg) {
	cs.out = cs.data.MergeRight(cs.eph)
	if pc.era.ValidToColumn == "" {
		return
	}
	pred, err := interval.Predecessor(cs.iv.Until.Datum(), pc.era.Subtype)
	if err != nil {
		// Validation rejects mirrors on continuous subtypes; unreachable.
		return
	}
	if cs.out == nil {
		cs.out = types.ColumnMap{}
	}
	cs.out[pc.era.ValidToColumn] = pred
}

func appendRowID(ids []int64, id int64) []int64 {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
