package planner

import "errors"

// Fatal planning errors. Row-level problems (ambiguity, unidentifiability,
// temporal inconsistency) are never Go errors; they surface as ERROR ops.
var (
	// ErrMissingEra indicates no era metadata was supplied for the target, or
	// the supplied era fails validation (including an unknown range subtype).
	ErrMissingEra = errors.New("missing era")

	// ErrMissingColumn indicates a named column is absent from the relation
	// side that requires it.
	ErrMissingColumn = errors.New("missing column")

	// ErrNoIdentity indicates neither identity columns nor lookup keys were
	// supplied.
	ErrNoIdentity = errors.New("no identity columns and no lookup keys")

	// ErrBadEphemeral indicates a temporal or mirrored column was listed as
	// ephemeral.
	ErrBadEphemeral = errors.New("temporal column listed as ephemeral")

	// ErrBadCausalColumn indicates the founding-id column is also a lookup
	// column.
	ErrBadCausalColumn = errors.New("founding-id column conflicts with lookup key")

	// ErrNoSourceTemporal indicates the source relation lacks the temporal
	// start column, or has neither the end column nor the mirror column.
	ErrNoSourceTemporal = errors.New("source lacks a required temporal column")

	// ErrUnsupportedSubtype indicates the era's range subtype cannot supply a
	// successor where one is required (a mirror column on a continuous
	// subtype).
	ErrUnsupportedSubtype = errors.New("unsupported range subtype")

	// ErrBadMode indicates an unknown merge or delete mode.
	ErrBadMode = errors.New("unknown merge mode")

	// ErrDuplicateRowID indicates two source rows share a row id.
	ErrDuplicateRowID = errors.New("duplicate source row id")
)
