package planner

import (
	"fmt"
	"sort"

	"github.com/steveyegge/saga/internal/types"
)

// Constellation tags which identity information the request carries.
type Constellation string

const (
	ConstellationHybrid       Constellation = "HYBRID"
	ConstellationIdentityOnly Constellation = "IDENTITY_ONLY"
	ConstellationLookupOnly   Constellation = "LOOKUP_ONLY"
	ConstellationUndefined    Constellation = "UNDEFINED"
)

// planContext is the normalized form of a PlanRequest: every later stage
// reads column roles from here and never re-derives them.
type planContext struct {
	era        types.Era
	mode       types.MergeMode
	deleteMode types.DeleteMode

	identityCols []string
	lookupKeys   [][]string
	lookupUnion  []string // flatten(L), deduplicated, sorted
	ephemeral    []string // deduplicated, sorted
	causalCol    string

	constellation Constellation

	// Source temporal shape.
	sourceHasUntil bool
	sourceHasTo    bool

	// Columns excluded from the data payload of both relations.
	sourceMeta map[string]bool
	targetMeta map[string]bool

	tracing bool
}

// newPlanContext validates a request and derives the canonical context.
// All errors here are fatal; nothing about individual rows is examined yet.
func newPlanContext(req types.PlanRequest) (*planContext, error) {
	era := req.Era
	if era.Name == "" && era.ValidFromColumn == "" {
		return nil, ErrMissingEra
	}
	if err := era.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingEra, err)
	}
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrBadMode, req.Mode)
	}
	deleteMode := req.DeleteMode
	if deleteMode == "" {
		deleteMode = types.DeleteNone
	}
	if !deleteMode.Valid() {
		return nil, fmt.Errorf("%w: delete mode %q", ErrBadMode, req.DeleteMode)
	}

	source := columnSet(req.SourceColumns)
	target := columnSet(req.TargetColumns)

	// Temporal shape of the source. valid_from is mandatory; the end may
	// arrive as valid_until, as the inclusive mirror valid_to, or as both.
	if !source[era.ValidFromColumn] {
		return nil, fmt.Errorf("%w: %q", ErrNoSourceTemporal, era.ValidFromColumn)
	}
	hasUntil := source[era.ValidUntilColumn]
	hasTo := era.ValidToColumn != "" && source[era.ValidToColumn]
	if !hasUntil && !hasTo {
		return nil, fmt.Errorf("%w: source has neither %q nor a mirror column", ErrNoSourceTemporal, era.ValidUntilColumn)
	}
	if hasTo && !era.Subtype.Discrete() {
		return nil, fmt.Errorf("%w: continuous subtype %q rejects mirror column %q", ErrUnsupportedSubtype, era.Subtype, era.ValidToColumn)
	}
	if !target[era.ValidFromColumn] || !target[era.ValidUntilColumn] {
		return nil, fmt.Errorf("%w: target lacks temporal columns %q/%q", ErrMissingColumn, era.ValidFromColumn, era.ValidUntilColumn)
	}

	// Identity constellation.
	constellation := ConstellationUndefined
	switch {
	case len(req.IdentityColumns) > 0 && len(req.LookupKeys) > 0:
		constellation = ConstellationHybrid
	case len(req.IdentityColumns) > 0:
		constellation = ConstellationIdentityOnly
	case len(req.LookupKeys) > 0:
		constellation = ConstellationLookupOnly
	default:
		return nil, ErrNoIdentity
	}
	for _, c := range req.IdentityColumns {
		if !target[c] {
			return nil, fmt.Errorf("%w: identity column %q not in target", ErrMissingColumn, c)
		}
		if !source[c] {
			return nil, fmt.Errorf("%w: identity column %q not in source", ErrMissingColumn, c)
		}
	}
	lookupUnionSet := map[string]bool{}
	for _, key := range req.LookupKeys {
		if len(key) == 0 {
			return nil, fmt.Errorf("%w: empty lookup key set", ErrMissingColumn)
		}
		for _, c := range key {
			if !source[c] {
				return nil, fmt.Errorf("%w: lookup column %q not in source", ErrMissingColumn, c)
			}
			if !target[c] {
				return nil, fmt.Errorf("%w: lookup column %q not in target", ErrMissingColumn, c)
			}
			lookupUnionSet[c] = true
		}
	}
	lookupUnion := make([]string, 0, len(lookupUnionSet))
	for c := range lookupUnionSet {
		lookupUnion = append(lookupUnion, c)
	}
	sort.Strings(lookupUnion)

	// Causal column.
	if req.FoundingIDColumn != "" {
		if !source[req.FoundingIDColumn] {
			return nil, fmt.Errorf("%w: founding-id column %q not in source", ErrMissingColumn, req.FoundingIDColumn)
		}
		if lookupUnionSet[req.FoundingIDColumn] {
			return nil, fmt.Errorf("%w: %q", ErrBadCausalColumn, req.FoundingIDColumn)
		}
	}

	// Ephemeral columns: deduplicate, sort, and reject temporal overlap.
	ephemeralSet := map[string]bool{}
	for _, c := range req.EphemeralColumns {
		switch c {
		case era.ValidFromColumn, era.ValidUntilColumn:
			return nil, fmt.Errorf("%w: %q", ErrBadEphemeral, c)
		}
		if era.ValidToColumn != "" && c == era.ValidToColumn {
			return nil, fmt.Errorf("%w: synchronized mirror column %q", ErrBadEphemeral, c)
		}
		ephemeralSet[c] = true
	}
	ephemeral := make([]string, 0, len(ephemeralSet))
	for c := range ephemeralSet {
		ephemeral = append(ephemeral, c)
	}
	sort.Strings(ephemeral)

	pc := &planContext{
		era:            era,
		mode:           req.Mode,
		deleteMode:     deleteMode,
		identityCols:   append([]string(nil), req.IdentityColumns...),
		lookupKeys:     req.LookupKeys,
		lookupUnion:    lookupUnion,
		ephemeral:      ephemeral,
		causalCol:      req.FoundingIDColumn,
		constellation:  constellation,
		sourceHasUntil: hasUntil,
		sourceHasTo:    hasTo,
		tracing:        req.Tracing,
	}

	// Meta columns are excluded from the opaque data payload.
	pc.sourceMeta = map[string]bool{era.ValidFromColumn: true, era.ValidUntilColumn: true}
	pc.targetMeta = map[string]bool{era.ValidFromColumn: true, era.ValidUntilColumn: true}
	if era.ValidToColumn != "" {
		pc.sourceMeta[era.ValidToColumn] = true
		pc.targetMeta[era.ValidToColumn] = true
	}
	for _, c := range pc.identityCols {
		pc.sourceMeta[c] = true
		pc.targetMeta[c] = true
	}
	for _, c := range pc.lookupUnion {
		pc.sourceMeta[c] = true
		pc.targetMeta[c] = true
	}
	if pc.causalCol != "" {
		pc.sourceMeta[pc.causalCol] = true
	}
	return pc, nil
}

// keyColumns returns every column carrying identity information.
func (pc *planContext) keyColumns() []string {
	cols := append([]string(nil), pc.identityCols...)
	cols = append(cols, pc.lookupUnion...)
	return cols
}

// dataPayload splits a relation row into its opaque payload and the ephemeral
// slice of that payload.
func (pc *planContext) dataPayload(cols types.ColumnMap, meta map[string]bool) (data, eph types.ColumnMap) {
	data = make(types.ColumnMap)
	eph = make(types.ColumnMap)
	ephSet := map[string]bool{}
	for _, c := range pc.ephemeral {
		ephSet[c] = true
	}
	for k, v := range cols {
		if meta[k] {
			continue
		}
		if ephSet[k] {
			eph[k] = v
			continue
		}
		data[k] = v
	}
	return data, eph
}

func columnSet(cols []string) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set
}
