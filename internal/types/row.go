package types

// SourceRow is one row of the source batch. RowID is unique within the batch
// and fixes every deterministic tie-break in the planner.
type SourceRow struct {
	RowID   int64     `json:"row_id" yaml:"row_id"`
	Columns ColumnMap `json:"columns" yaml:"columns"`
}

// TargetRow is one row of the target history relation.
type TargetRow struct {
	Columns ColumnMap `json:"columns" yaml:"columns"`
}

// PlanRequest carries everything one planning call needs. The planner treats
// Source and Target as immutable snapshots and never mutates them.
type PlanRequest struct {
	Era Era

	// Relation schemas; column presence is validated against these, not
	// against individual rows.
	SourceColumns []string
	TargetColumns []string

	Source []SourceRow
	Target []TargetRow

	// IdentityColumns is the stable surrogate key (may be NULL in source rows
	// that found new entities). LookupKeys are natural-key column sets; a
	// source row matches a target entity when it agrees on any complete set.
	IdentityColumns []string
	LookupKeys      [][]string

	// FoundingIDColumn optionally names a source column grouping rows that
	// jointly found one new entity. Empty means the row id is the causal id,
	// so new rows group only by a shared canonical lookup key.
	FoundingIDColumn string

	// EphemeralColumns are excluded from change detection but preserved in
	// output payloads.
	EphemeralColumns []string

	Mode       MergeMode
	DeleteMode DeleteMode

	// Tracing populates PlanOp.Trace with the op's coalesced segment interval
	// and whether a source row affected it.
	Tracing bool
}
