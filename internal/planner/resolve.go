package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/saga/internal/interval"
	"github.com/steveyegge/saga/internal/types"
)

const (
	groupExisting = "existing_entity__"
	groupNew      = "new_entity__"
)

// targetRow is a scoped target row with its entity linkage resolved.
type targetRow struct {
	iv       interval.Interval
	data     types.ColumnMap
	eph      types.ColumnMap
	identity types.ColumnMap
	lookups  types.ColumnMap
	grouping string
}

// targetIndex resolves source rows to target entities.
type targetIndex struct {
	pc *planContext

	// rows grouped by entity key JSON.
	byEntity map[string][]*targetRow
	// per lookup-key set: canonical JSON of the set's values -> entity keys.
	byLookup []map[string][]string
}

// entityKeyJSON is the canonical identity of a target entity: the identity
// tuple when identity columns exist, the full lookup union otherwise.
func entityKeyJSON(pc *planContext, cols types.ColumnMap) string {
	if len(pc.identityCols) > 0 {
		return cols.Subset(pc.identityCols).CanonicalJSON()
	}
	return cols.Subset(pc.lookupUnion).CanonicalJSON()
}

// buildTargetIndex normalizes target rows and indexes them by identity and by
// every lookup-key set.
func buildTargetIndex(pc *planContext, rows []types.TargetRow) *targetIndex {
	idx := &targetIndex{
		pc:       pc,
		byEntity: make(map[string][]*targetRow),
		byLookup: make([]map[string][]string, len(pc.lookupKeys)),
	}
	for i := range idx.byLookup {
		idx.byLookup[i] = make(map[string][]string)
	}
	for _, r := range rows {
		tr := &targetRow{
			iv:       interval.New(r.Columns.Get(pc.era.ValidFromColumn), r.Columns.Get(pc.era.ValidUntilColumn)),
			identity: r.Columns.Subset(pc.identityCols),
			lookups:  r.Columns.Subset(pc.lookupUnion),
		}
		tr.data, tr.eph = pc.dataPayload(r.Columns, pc.targetMeta)
		key := entityKeyJSON(pc, r.Columns)
		tr.grouping = groupExisting + key
		idx.byEntity[key] = append(idx.byEntity[key], tr)
		for i, set := range pc.lookupKeys {
			vals := r.Columns.Subset(set)
			if anyNull(vals, set) {
				continue
			}
			lj := vals.CanonicalJSON()
			if !containsString(idx.byLookup[i][lj], key) {
				idx.byLookup[i][lj] = append(idx.byLookup[i][lj], key)
			}
		}
	}
	return idx
}

// resolveEntities links each live source row to at most one target entity and
// assigns grouping keys. Ambiguous rows (distinct entities via different
// lookup keys) become ERROR ops.
//
// Resolution for rows that match an existing entity always wins over causal
// or natural-key grouping; causal grouping applies only to founding rows.
func resolveEntities(pc *planContext, rows []*sourceRow, idx *targetIndex) {
	for _, sr := range rows {
		if sr.status != "" {
			continue
		}

		var matched []string
		if sr.hasIdent {
			key := sr.identity.CanonicalJSON()
			if _, ok := idx.byEntity[key]; ok {
				matched = append(matched, key)
			}
		}
		for i, set := range pc.lookupKeys {
			vals := sr.columns.Subset(set)
			if anyNull(vals, set) {
				continue
			}
			for _, key := range idx.byLookup[i][vals.CanonicalJSON()] {
				if !containsString(matched, key) {
					matched = append(matched, key)
				}
			}
		}

		switch {
		case len(matched) > 1:
			sort.Strings(matched)
			sr.status = types.OpError
			sr.feedback = map[string]string{
				"error": fmt.Sprintf("ambiguous source row: matches distinct entities %s", strings.Join(matched, ", ")),
			}
		case len(matched) == 1:
			sr.isNew = false
			sr.grouping = groupExisting + matched[0]
			// Adopt the matched entity's identity so identity-less lookup
			// matches still group under the stable key.
			if len(pc.identityCols) > 0 && !sr.hasIdent {
				if trs := idx.byEntity[matched[0]]; len(trs) > 0 {
					sr.identity = trs[0].identity.Clone()
					sr.hasIdent = true
				}
			}
		case sr.hasIdent:
			// Explicit identity not present in the target: founds the entity
			// under its stable key so sibling rows group together.
			sr.isNew = true
			sr.grouping = groupExisting + sr.identity.CanonicalJSON()
		default:
			sr.isNew = true
			// Grouping assigned after canonical natural-key resolution.
		}
	}
}

// assignNewEntityGroups gives founding rows their grouping key: the canonical
// natural key when one exists, the causal id otherwise.
func assignNewEntityGroups(pc *planContext, rows []*sourceRow) {
	for _, sr := range rows {
		if sr.status != "" || !sr.isNew || sr.grouping != "" {
			continue
		}
		if len(sr.canonicalL) > 0 {
			sr.grouping = groupNew + sr.canonicalL.CanonicalJSON()
			continue
		}
		sr.grouping = groupNew + sr.causal
	}
}

// applyModeFilters withdraws rows whose effect the mode prohibits.
func applyModeFilters(pc *planContext, rows []*sourceRow) {
	for _, sr := range rows {
		if sr.status != "" {
			continue
		}
		switch {
		case pc.mode.PortionOnly() && sr.isNew:
			sr.status = types.OpSkipNoTarget
			sr.feedback = map[string]string{
				"info": "no matching entity in target",
			}
		case pc.mode.InsertOnly() && !sr.isNew:
			sr.status = types.OpSkipFiltered
			sr.feedback = map[string]string{
				"info": "entity already exists in target",
			}
		}
	}
}

// scopeTargets returns the target rows the plan must consider: rows of every
// entity named by live source rows, or the whole target when the delete mode
// removes entities absent from the source.
func scopeTargets(pc *planContext, idx *targetIndex, rows []*sourceRow) []*targetRow {
	fullScan := pc.mode.EntityScoped() && pc.deleteMode.DeletesEntities()
	var scoped []*targetRow
	if fullScan {
		keys := make([]string, 0, len(idx.byEntity))
		for key := range idx.byEntity {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			scoped = append(scoped, idx.byEntity[key]...)
		}
		return scoped
	}
	wanted := map[string]bool{}
	for _, sr := range rows {
		if sr.status != "" {
			continue
		}
		if strings.HasPrefix(sr.grouping, groupExisting) && !sr.isNew {
			wanted[strings.TrimPrefix(sr.grouping, groupExisting)] = true
		}
	}
	keys := make([]string, 0, len(wanted))
	for key := range wanted {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		scoped = append(scoped, idx.byEntity[key]...)
	}
	return scoped
}

func anyNull(vals types.ColumnMap, cols []string) bool {
	for _, c := range cols {
		if vals.Get(c).IsNull() {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
