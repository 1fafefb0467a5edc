package planner

import (
	"sort"

	"github.com/steveyegge/saga/internal/interval"
	"github.com/steveyegge/saga/internal/types"
)

// entityGroup is one entity instance within a planning call: its live source
// rows, its scoped target rows, and the unified metadata every output op of
// the group shares.
type entityGroup struct {
	key     string
	sources []*sourceRow // row-id ordered
	targets []*targetRow // valid_from ordered

	isNew    bool
	causal   string          // minimum non-NULL causal id of the group
	identity types.ColumnMap // unified stable key payload
	lookups  types.ColumnMap // unified canonical lookup key
}

// atomicSeg is a half-open interval between two consecutive distinct time
// points of one group. The point sweep guarantees at most one target row
// covers it.
type atomicSeg struct {
	iv      interval.Interval
	target  *targetRow
	sources []*sourceRow // covering rows, row-id ordered
}

// buildGroups partitions live source rows and scoped target rows into entity
// groups, ordered by grouping key.
func buildGroups(pc *planContext, rows []*sourceRow, targets []*targetRow) []*entityGroup {
	groups := make(map[string]*entityGroup)
	get := func(key string) *entityGroup {
		g, ok := groups[key]
		if !ok {
			g = &entityGroup{key: key, isNew: true}
			groups[key] = g
		}
		return g
	}

	for _, tr := range targets {
		g := get(tr.grouping)
		g.isNew = false
		g.targets = append(g.targets, tr)
		if g.identity == nil {
			g.identity = tr.identity.Clone()
		}
		if g.lookups == nil {
			g.lookups = tr.lookups.StripNulls()
		}
	}
	for _, sr := range rows {
		if sr.status != "" {
			continue
		}
		g := get(sr.grouping)
		g.sources = append(g.sources, sr)
		g.causal = minCausal(g.causal, sr.causal)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]*entityGroup, 0, len(keys))
	for _, key := range keys {
		g := groups[key]
		sort.Slice(g.sources, func(i, j int) bool { return g.sources[i].id < g.sources[j].id })
		sort.Slice(g.targets, func(i, j int) bool { return g.targets[i].iv.From.Compare(g.targets[j].iv.From) < 0 })
		unifyGroupKeys(pc, g)
		out = append(out, g)
	}
	return out
}

// unifyGroupKeys propagates identity and lookup payloads across the group:
// for founding groups the stable key is the first non-NULL occurrence in
// causal order, and the canonical lookup key is the first one resolved in
// that order (falling back to the first non-NULL raw lookup values).
func unifyGroupKeys(pc *planContext, g *entityGroup) {
	if !g.isNew {
		return
	}
	ordered := append([]*sourceRow(nil), g.sources...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].causal != ordered[j].causal {
			return minCausal(ordered[i].causal, ordered[j].causal) == ordered[i].causal
		}
		return ordered[i].id < ordered[j].id
	})
	for _, sr := range ordered {
		if g.identity == nil {
			if ident := sr.identity.StripNulls(); len(ident) > 0 {
				g.identity = ident
			}
		}
		if g.lookups == nil && len(sr.canonicalL) > 0 {
			g.lookups = sr.canonicalL
		}
	}
	if g.lookups == nil {
		for _, sr := range ordered {
			if l := sr.lookups.StripNulls(); len(l) > 0 {
				g.lookups = l
				break
			}
		}
	}
}

// sweep unifies the group's source and target intervals into atomic segments
// between consecutive distinct endpoints.
func sweep(g *entityGroup) []*atomicSeg {
	var points []interval.Bound
	add := func(b interval.Bound) {
		for _, p := range points {
			if p.Equal(b) {
				return
			}
		}
		points = append(points, b)
	}
	for _, sr := range g.sources {
		add(sr.iv.From)
		add(sr.iv.Until)
	}
	for _, tr := range g.targets {
		add(tr.iv.From)
		add(tr.iv.Until)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Compare(points[j]) < 0 })

	segs := make([]*atomicSeg, 0, len(points))
	for i := 0; i+1 < len(points); i++ {
		seg := &atomicSeg{iv: interval.Interval{From: points[i], Until: points[i+1]}}
		for _, tr := range g.targets {
			if tr.iv.ContainsBound(seg.iv.From) {
				seg.target = tr
				break
			}
		}
		for _, sr := range g.sources {
			if sr.iv.ContainsBound(seg.iv.From) {
				seg.sources = append(seg.sources, sr)
			}
		}
		if seg.target != nil || len(seg.sources) > 0 {
			segs = append(segs, seg)
		}
	}
	return segs
}
