package planner

import (
	"github.com/steveyegge/saga/internal/types"
)

// resolvedSeg is an atomic segment with its final payload computed. A nil
// data map means the segment produces no row (deleted portion).
type resolvedSeg struct {
	*atomicSeg
	data     types.ColumnMap
	eph      types.ColumnMap
	deleted  bool
	affected bool // any source row covers the segment
}

// resolvePayloads computes the final payload of every atomic segment under
// the mode's semantics. entityInSource matters only for destructive entity
// deletion: groups absent from the source lose their whole timeline.
func resolvePayloads(pc *planContext, g *entityGroup, segs []*atomicSeg) []*resolvedSeg {
	entityInSource := len(g.sources) > 0
	out := make([]*resolvedSeg, 0, len(segs))
	for _, seg := range segs {
		rs := &resolvedSeg{atomicSeg: seg, affected: len(seg.sources) > 0}

		srcData, tombstone := sourceContribution(pc, seg)

		var targetData, targetEph types.ColumnMap
		if seg.target != nil {
			targetData = seg.target.data
			targetEph = seg.target.eph
		}

		switch {
		case pc.mode.EntityScoped() && pc.deleteMode.DeletesEntities() && !entityInSource:
			// Entity absent from source: every segment is deleted.
			rs.deleted = true
		case len(seg.sources) == 0:
			if seg.target == nil {
				// Gap covered by neither side; the sweep already drops these.
				rs.deleted = true
			} else if pc.mode.EntityScoped() && pc.deleteMode.DeletesTimeline() {
				// Destructive timeline: only source-covered segments survive.
				rs.deleted = true
			} else {
				rs.data = targetData.Clone()
				rs.eph = targetEph.Clone()
			}
		case tombstone:
			rs.deleted = true
		case seg.target == nil && pc.mode.PortionOnly():
			// Portion modes never extend the timeline; the uncovered part of
			// the source interval is clipped.
			rs.deleted = true
		case pc.mode.EntityScoped() && pc.deleteMode.DeletesTimeline():
			// Destructive timeline: the source payload stands alone.
			rs.data = srcData.Clone()
			rs.eph = targetEph.MergeRight(latestEphemeral(seg))
		default:
			switch pc.mode.Semantics() {
			case types.SemanticsPatch, types.SemanticsUpsert:
				rs.data = targetData.MergeRight(srcData)
			default: // replace
				if srcData != nil {
					rs.data = srcData.Clone()
				} else {
					rs.data = targetData.Clone()
				}
			}
			rs.eph = targetEph.MergeRight(latestEphemeral(seg))
		}

		if rs.deleted {
			rs.data = nil
			rs.eph = nil
		} else if rs.data == nil {
			rs.data = types.ColumnMap{}
		}
		out = append(out, rs)
	}
	return out
}

// sourceContribution folds the payloads of every source row covering the
// segment under the mode's combination rule.
func sourceContribution(pc *planContext, seg *atomicSeg) (data types.ColumnMap, tombstone bool) {
	if len(seg.sources) == 0 {
		return nil, false
	}
	switch pc.mode.Semantics() {
	case types.SemanticsDelete:
		return nil, true
	case types.SemanticsPatch:
		// Stateless left-fold in row-id order; each contribution strips its
		// NULLs before the shallow merge.
		acc := types.ColumnMap{}
		for _, sr := range seg.sources {
			acc = acc.MergeRight(sr.data.StripNulls())
		}
		return acc, false
	case types.SemanticsUpsert:
		acc := types.ColumnMap{}
		for _, sr := range seg.sources {
			acc = acc.MergeRight(sr.data)
		}
		return acc, false
	default:
		// Replace semantics: the latest row wins wholesale.
		return seg.sources[len(seg.sources)-1].data, false
	}
}

// latestEphemeral returns the ephemeral payload of the highest-row-id source
// covering the segment.
func latestEphemeral(seg *atomicSeg) types.ColumnMap {
	if len(seg.sources) == 0 {
		return nil
	}
	return seg.sources[len(seg.sources)-1].eph
}
