// Package storage defines the collaborator interfaces the planner and
// executor consume: era metadata, relation scanning, and relation writes.
// Backends live in subpackages (memory, mysqlstore).
package storage

import (
	"context"

	"github.com/steveyegge/saga/internal/types"
)

// EraRegistry stores temporal metadata per relation.
type EraRegistry interface {
	// AddEra registers an era; replacing an existing (table, name) pair is
	// an error.
	AddEra(ctx context.Context, era types.Era) error

	// GetEra returns the era registered for (table, name).
	// Returns ErrNotFound when absent.
	GetEra(ctx context.Context, table, name string) (types.Era, error)

	// ListEras returns all registered eras ordered by (table, name).
	ListEras(ctx context.Context) ([]types.Era, error)

	// DropEra removes a registration. Returns ErrNotFound when absent.
	DropEra(ctx context.Context, table, name string) error
}

// TargetFilter scopes a target scan to the entities a source batch names.
type TargetFilter struct {
	// Keys are per-entity key values (identity or complete lookup sets).
	// A target row qualifies when it null-safely agrees with any one map.
	Keys []types.ColumnMap

	// FullScan ignores Keys and returns every row; entity-deleting modes
	// require it.
	FullScan bool
}

// RelationScan reads relation snapshots for planning. Implementations return
// rows in a deterministic order.
type RelationScan interface {
	// Columns returns the relation's column names.
	Columns(ctx context.Context, table string) ([]string, error)

	// ScanTarget returns target rows matching the filter.
	ScanTarget(ctx context.Context, table string, filter TargetFilter) ([]types.TargetRow, error)

	// ScanSource materializes the source batch, reading row ids from
	// rowIDCol and ordering by it. Returns ErrMissingRowID when the column
	// is absent.
	ScanSource(ctx context.Context, table, rowIDCol string) ([]types.SourceRow, error)
}

// RelationWriter applies plan operations to a target relation. A segment is
// addressed by a key map: the entity key columns plus the era's valid_from.
type RelationWriter interface {
	// InsertRow stores a new segment and returns it as stored, so callers
	// can observe backend-generated identity values.
	InsertRow(ctx context.Context, table string, row types.ColumnMap) (types.ColumnMap, error)

	// UpdateRow rewrites the segment addressed by key.
	// Returns ErrNotFound when no row matches.
	UpdateRow(ctx context.Context, table string, key, row types.ColumnMap) error

	// DeleteRow removes the segment addressed by key.
	// Returns ErrNotFound when no row matches.
	DeleteRow(ctx context.Context, table string, key types.ColumnMap) error
}

// Store is the full backend surface the CLI wires together.
type Store interface {
	EraRegistry
	RelationScan
	RelationWriter

	Close() error
}
