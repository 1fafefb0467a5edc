// Package saga provides a minimal public API for embedding the temporal
// merge planner.
//
// Most callers should use the sg CLI or wire the internal packages through
// their own storage. This package exports only the essential types and
// functions needed to plan and apply merges programmatically.
package saga

import (
	"context"

	"github.com/steveyegge/saga/internal/executor"
	"github.com/steveyegge/saga/internal/planner"
	"github.com/steveyegge/saga/internal/storage"
	"github.com/steveyegge/saga/internal/storage/memory"
	"github.com/steveyegge/saga/internal/types"
)

// Core types for working with merge plans
type (
	Datum       = types.Datum
	ColumnMap   = types.ColumnMap
	Era         = types.Era
	MergeMode   = types.MergeMode
	DeleteMode  = types.DeleteMode
	Operation   = types.Operation
	PlanOp      = types.PlanOp
	PlanRequest = types.PlanRequest
	SourceRow   = types.SourceRow
	TargetRow   = types.TargetRow
)

// Merge mode constants
const (
	MergeEntityPatch    = types.MergeEntityPatch
	MergeEntityReplace  = types.MergeEntityReplace
	MergeEntityUpsert   = types.MergeEntityUpsert
	PatchForPortionOf   = types.PatchForPortionOf
	ReplaceForPortionOf = types.ReplaceForPortionOf
	UpdateForPortionOf  = types.UpdateForPortionOf
	DeleteForPortionOf  = types.DeleteForPortionOf
	InsertNewEntities   = types.InsertNewEntities
)

// Delete mode constants
const (
	DeleteNone                       = types.DeleteNone
	DeleteMissingTimeline            = types.DeleteMissingTimeline
	DeleteMissingEntities            = types.DeleteMissingEntities
	DeleteMissingTimelineAndEntities = types.DeleteMissingTimelineAndEntities
)

// Storage provides the backend surface the CLI wires together
type Storage = storage.Store

// Plan computes the merge plan for one request.
func Plan(ctx context.Context, req PlanRequest) ([]PlanOp, error) {
	return planner.Plan(ctx, req)
}

// Apply runs a plan against a writer in plan order.
func Apply(ctx context.Context, w storage.RelationWriter, table string, era Era, identityColumns []string, plan []PlanOp) (executor.Result, error) {
	return executor.Apply(ctx, w, executor.Request{
		Table:           table,
		Era:             era,
		IdentityColumns: identityColumns,
		Plan:            plan,
	})
}

// NewMemoryStorage returns an empty in-memory backend, useful for tests and
// fixture-driven planning.
func NewMemoryStorage() *memory.Store {
	return memory.New()
}
