package planner

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/steveyegge/saga/internal/interval"
	"github.com/steveyegge/saga/internal/types"
)

// sourceRow is a source batch row after normalization. status is empty while
// the row is live in the pipeline; rows classified early (errors, eclipses,
// mode filters) carry their terminal operation and are withdrawn.
type sourceRow struct {
	id      int64
	iv      interval.Interval
	causal  string
	data    types.ColumnMap
	eph     types.ColumnMap
	columns types.ColumnMap

	identity   types.ColumnMap // identity columns, NULLs included
	lookups    types.ColumnMap // lookup union columns, NULLs included
	hasIdent   bool            // every identity column non-NULL
	anyKey     bool            // any key column non-NULL
	canonicalL types.ColumnMap // canonical natural key (new-entity rows)

	grouping string
	isNew    bool

	status   types.Operation
	feedback map[string]string
}

// prepareSource normalizes every source row: temporal bounds (including the
// valid_to mirror and its consistency check), payload decomposition, causal
// id, and key-nullness flags. Rows come back ordered by row id.
func prepareSource(pc *planContext, rows []types.SourceRow) ([]*sourceRow, error) {
	out := make([]*sourceRow, 0, len(rows))
	seen := make(map[int64]bool, len(rows))
	for _, r := range rows {
		if seen[r.RowID] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateRowID, r.RowID)
		}
		seen[r.RowID] = true

		sr := &sourceRow{
			id:      r.RowID,
			columns: r.Columns,
			causal:  causalID(pc, r),
		}
		sr.data, sr.eph = pc.dataPayload(r.Columns, pc.sourceMeta)
		sr.identity = r.Columns.Subset(pc.identityCols)
		sr.lookups = r.Columns.Subset(pc.lookupUnion)
		sr.hasIdent = len(pc.identityCols) > 0
		for _, c := range pc.identityCols {
			v := r.Columns.Get(c)
			if v.IsNull() {
				sr.hasIdent = false
			} else {
				sr.anyKey = true
			}
		}
		for _, c := range pc.lookupUnion {
			if !r.Columns.Get(c).IsNull() {
				sr.anyKey = true
			}
		}

		normalizeTemporal(pc, sr)
		out = append(out, sr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

// normalizeTemporal computes the canonical [from, until) for a row and
// classifies temporal inconsistencies.
//
// When both valid_until and the mirror valid_to are present and non-NULL they
// must satisfy valid_until == successor(valid_to). A NULL on exactly one side
// is consistent by convention.
func normalizeTemporal(pc *planContext, sr *sourceRow) {
	from := sr.columns.Get(pc.era.ValidFromColumn)
	until := types.Null()
	if pc.sourceHasUntil {
		until = sr.columns.Get(pc.era.ValidUntilColumn)
	}
	if pc.sourceHasTo {
		to := sr.columns.Get(pc.era.ValidToColumn)
		if !to.IsNull() {
			succ, err := interval.Successor(to, pc.era.Subtype)
			if err != nil {
				sr.fail("temporal inconsistency: %v", err)
				return
			}
			if until.IsNull() {
				until = succ
			} else if !until.Equal(succ) {
				sr.fail("temporal inconsistency: %s=%s disagrees with %s=%s",
					pc.era.ValidUntilColumn, until, pc.era.ValidToColumn, to)
				return
			}
		}
	}
	iv := interval.New(from, until)
	if !iv.Valid() {
		sr.fail("temporal inconsistency: empty interval [%s, %s)", iv.From, iv.Until)
		return
	}
	sr.iv = iv
}

// classifyIdentifiability withdraws rows that carry no usable key. A row is
// identifiable when any key column is non-NULL, when the constellation is
// identity-only (NULL identity founds a new entity there), or when it names a
// founding id.
func classifyIdentifiability(pc *planContext, rows []*sourceRow) {
	for _, sr := range rows {
		if sr.status != "" {
			continue
		}
		if sr.anyKey || pc.constellation == ConstellationIdentityOnly {
			continue
		}
		if pc.causalCol != "" && !sr.columns.Get(pc.causalCol).IsNull() {
			continue
		}
		sr.status = types.OpError
		sr.feedback = map[string]string{
			"error": "unidentifiable source row: no non-NULL key column",
		}
	}
}

// detectEclipses withdraws rows whose interval is covered without gaps by
// later rows of the same entity grouping. The feedback names a minimal cover,
// preferring the latest producers.
func detectEclipses(rows []*sourceRow) {
	byGroup := make(map[string][]*sourceRow)
	for _, sr := range rows {
		if sr.status != "" {
			continue
		}
		byGroup[sr.grouping] = append(byGroup[sr.grouping], sr)
	}
	for _, group := range byGroup {
		// group is row-id ordered (prepareSource sorted the batch).
		for i, sr := range group {
			later := group[i+1:]
			if len(later) == 0 {
				continue
			}
			ivs := make([]interval.Interval, len(later))
			for j, other := range later {
				ivs[j] = other.iv
			}
			cover := interval.MinimalCover(ivs, sr.iv)
			if cover == nil {
				continue
			}
			ids := make([]int64, len(cover))
			for j, idx := range cover {
				ids[j] = later[idx].id
			}
			sr.status = types.OpSkipEclipsed
			sr.feedback = map[string]string{
				"eclipsed_by": formatRowIDs(ids),
			}
		}
	}
}

// resolveCanonicalKeys assigns each new-entity row the most informative
// compatible natural key among its peers, so partial rows join the same
// new-entity group as fuller ones.
func resolveCanonicalKeys(pc *planContext, rows []*sourceRow) {
	if len(pc.lookupUnion) == 0 {
		return
	}
	var founders []*sourceRow
	for _, sr := range rows {
		if sr.status == "" && sr.isNew {
			founders = append(founders, sr)
		}
	}
	for _, sr := range founders {
		own := sr.lookups.StripNulls()
		if len(own) == 0 {
			continue
		}
		best := own
		bestJSON := own.CanonicalJSON()
		for _, other := range founders {
			cand := other.lookups.StripNulls()
			if len(cand) < len(own) || !supersetOf(cand, own) {
				continue
			}
			candJSON := cand.CanonicalJSON()
			if len(cand) > len(best) || (len(cand) == len(best) && candJSON < bestJSON) {
				best = cand
				bestJSON = candJSON
			}
		}
		sr.canonicalL = best
	}
}

// supersetOf reports whether sup agrees with every non-NULL column of sub.
func supersetOf(sup, sub types.ColumnMap) bool {
	for k, v := range sub {
		sv, ok := sup[k]
		if !ok || !sv.Equal(v) {
			return false
		}
	}
	return true
}

func causalID(pc *planContext, r types.SourceRow) string {
	if pc.causalCol != "" {
		if v := r.Columns.Get(pc.causalCol); !v.IsNull() {
			return v.String()
		}
	}
	return strconv.FormatInt(r.RowID, 10)
}

func (sr *sourceRow) fail(format string, args ...any) {
	sr.status = types.OpError
	sr.feedback = map[string]string{"error": fmt.Sprintf(format, args...)}
}

func formatRowIDs(ids []int64) string {
	b := []byte{'['}
	for i, id := range ids {
		if i > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendInt(b, id, 10)
	}
	return string(append(b, ']'))
}

// minCausal returns the minimum non-empty causal id, comparing numerically
// when both sides parse as integers.
func minCausal(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		if bi < ai {
			return b
		}
		return a
	}
	if b < a {
		return b
	}
	return a
}
