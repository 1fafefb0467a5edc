package types

// MergeMode selects both the payload semantics and the scope of a merge.
type MergeMode string

const (
	MergeEntityPatch    MergeMode = "MERGE_ENTITY_PATCH"
	MergeEntityReplace  MergeMode = "MERGE_ENTITY_REPLACE"
	MergeEntityUpsert   MergeMode = "MERGE_ENTITY_UPSERT"
	PatchForPortionOf   MergeMode = "PATCH_FOR_PORTION_OF"
	ReplaceForPortionOf MergeMode = "REPLACE_FOR_PORTION_OF"
	UpdateForPortionOf  MergeMode = "UPDATE_FOR_PORTION_OF"
	DeleteForPortionOf  MergeMode = "DELETE_FOR_PORTION_OF"
	InsertNewEntities   MergeMode = "INSERT_NEW_ENTITIES"
)

// PayloadSemantics is the payload axis of a merge mode.
type PayloadSemantics int

const (
	// SemanticsPatch merges source over target, NULL meaning "leave as is".
	SemanticsPatch PayloadSemantics = iota
	// SemanticsReplace takes the source payload wholesale, NULL meaning NULL.
	SemanticsReplace
	// SemanticsUpsert merges like patch but without stripping NULLs.
	SemanticsUpsert
	// SemanticsDelete tombstones the covered portion.
	SemanticsDelete
)

// Valid reports whether m is a known merge mode.
func (m MergeMode) Valid() bool {
	switch m {
	case MergeEntityPatch, MergeEntityReplace, MergeEntityUpsert,
		PatchForPortionOf, ReplaceForPortionOf, UpdateForPortionOf,
		DeleteForPortionOf, InsertNewEntities:
		return true
	}
	return false
}

// Semantics returns the payload axis of the mode.
func (m MergeMode) Semantics() PayloadSemantics {
	switch m {
	case MergeEntityPatch, PatchForPortionOf:
		return SemanticsPatch
	case MergeEntityUpsert, UpdateForPortionOf:
		return SemanticsUpsert
	case DeleteForPortionOf:
		return SemanticsDelete
	default:
		return SemanticsReplace
	}
}

// PortionOnly reports whether the mode only touches segments inside an
// existing entity's existing timeline and never creates entities.
func (m MergeMode) PortionOnly() bool {
	switch m {
	case PatchForPortionOf, ReplaceForPortionOf, UpdateForPortionOf, DeleteForPortionOf:
		return true
	}
	return false
}

// InsertOnly reports whether the mode processes only rows founding entities
// that do not yet exist in the target.
func (m MergeMode) InsertOnly() bool { return m == InsertNewEntities }

// EntityScoped reports whether the mode processes all source rows and may
// create entities (the MERGE_ENTITY_* family).
func (m MergeMode) EntityScoped() bool {
	switch m {
	case MergeEntityPatch, MergeEntityReplace, MergeEntityUpsert:
		return true
	}
	return false
}

// DeleteMode selects destructive behavior orthogonal to the merge mode.
// It applies to the MERGE_ENTITY_* family only.
type DeleteMode string

const (
	DeleteNone                       DeleteMode = "NONE"
	DeleteMissingTimeline            DeleteMode = "DELETE_MISSING_TIMELINE"
	DeleteMissingEntities            DeleteMode = "DELETE_MISSING_ENTITIES"
	DeleteMissingTimelineAndEntities DeleteMode = "DELETE_MISSING_TIMELINE_AND_ENTITIES"
)

// Valid reports whether d is a known delete mode.
func (d DeleteMode) Valid() bool {
	switch d {
	case DeleteNone, DeleteMissingTimeline, DeleteMissingEntities, DeleteMissingTimelineAndEntities:
		return true
	}
	return false
}

// DeletesTimeline reports whether target segments not covered by source are
// deleted for entities present in the source.
func (d DeleteMode) DeletesTimeline() bool {
	return d == DeleteMissingTimeline || d == DeleteMissingTimelineAndEntities
}

// DeletesEntities reports whether entities absent from the source batch are
// deleted outright. This forces a full target scan.
func (d DeleteMode) DeletesEntities() bool {
	return d == DeleteMissingEntities || d == DeleteMissingTimelineAndEntities
}
