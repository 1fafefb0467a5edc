package interval

import "sort"

// CoversWithoutGaps reports whether the union of intervals covers target with
// no gap. Input order does not matter; empty input covers nothing.
//
// This is the aggregate behind eclipse detection and the write-time coverage
// checks of trigger collaborators.
func CoversWithoutGaps(intervals []Interval, target Interval) bool {
	if !target.Valid() {
		return false
	}
	relevant := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Valid() && iv.Overlaps(target) {
			relevant = append(relevant, iv)
		}
	}
	if len(relevant) == 0 {
		return false
	}
	sort.Slice(relevant, func(i, j int) bool {
		if c := relevant[i].From.Compare(relevant[j].From); c != 0 {
			return c < 0
		}
		return relevant[i].Until.Compare(relevant[j].Until) > 0
	})

	// Sweep left to right; any gap before target.Until fails.
	if relevant[0].From.Compare(target.From) > 0 {
		return false
	}
	reach := relevant[0].Until
	for _, iv := range relevant[1:] {
		if reach.Compare(target.Until) >= 0 {
			break
		}
		if iv.From.Compare(reach) > 0 {
			return false
		}
		if iv.Until.Compare(reach) > 0 {
			reach = iv.Until
		}
	}
	return reach.Compare(target.Until) >= 0
}

// MinimalCover returns a smallest subset of intervals covering target,
// preferring intervals later in the input on ties. It returns nil when no
// subset covers target. Indices into the input slice are returned so callers
// can recover which rows produced the cover.
func MinimalCover(intervals []Interval, target Interval) []int {
	if !CoversWithoutGaps(intervals, target) {
		return nil
	}
	type cand struct {
		idx int
		iv  Interval
	}
	var cands []cand
	for i, iv := range intervals {
		if iv.Valid() && iv.Overlaps(target) {
			cands = append(cands, cand{i, iv})
		}
	}

	// Greedy sweep: at each step take the candidate reaching furthest past
	// the current position, breaking ties toward the highest index.
	var picked []int
	pos := target.From
	for pos.Compare(target.Until) < 0 {
		best := -1
		bestUntil := pos
		for _, c := range cands {
			if c.iv.From.Compare(pos) > 0 {
				continue
			}
			if cmp := c.iv.Until.Compare(bestUntil); cmp > 0 || (cmp == 0 && best >= 0 && c.idx > best) {
				best = c.idx
				bestUntil = c.iv.Until
			}
		}
		if best < 0 {
			return nil
		}
		picked = append(picked, best)
		pos = bestUntil
	}
	sort.Ints(picked)
	return picked
}
