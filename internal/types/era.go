package types

import "fmt"

// RangeSubtype classifies the temporal domain of an era.
type RangeSubtype string

const (
	// SubtypeDate is a discrete domain of calendar days; successor is +1 day.
	SubtypeDate RangeSubtype = "date"
	// SubtypeInt is a discrete integer domain; successor is +1.
	SubtypeInt RangeSubtype = "int"
	// SubtypeTimestamp is a continuous domain; only [from, until) is
	// meaningful and no mirror column is permitted.
	SubtypeTimestamp RangeSubtype = "timestamp"
)

// Valid reports whether the subtype is one of the supported domains.
func (s RangeSubtype) Valid() bool {
	switch s {
	case SubtypeDate, SubtypeInt, SubtypeTimestamp:
		return true
	}
	return false
}

// Discrete reports whether the subtype has a successor function.
func (s RangeSubtype) Discrete() bool {
	return s == SubtypeDate || s == SubtypeInt
}

// Era names the temporal columns of a relation and their range subtype.
//
// ValidToColumn is the optional inclusive-end mirror; when set, its value is
// always predecessor(valid_until) and the planner rewrites it after every
// payload merge. Continuous subtypes reject a mirror.
type Era struct {
	Table            string       `json:"table" yaml:"table"`
	Name             string       `json:"name" yaml:"name"`
	ValidFromColumn  string       `json:"valid_from_column" yaml:"valid_from_column"`
	ValidUntilColumn string       `json:"valid_until_column" yaml:"valid_until_column"`
	ValidToColumn    string       `json:"valid_to_column,omitempty" yaml:"valid_to_column,omitempty"`
	Subtype          RangeSubtype `json:"subtype" yaml:"subtype"`
}

// Validate checks the era definition itself (not its fit to a relation).
func (e Era) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("era: name is required")
	}
	if e.ValidFromColumn == "" || e.ValidUntilColumn == "" {
		return fmt.Errorf("era %q: valid_from and valid_until column names are required", e.Name)
	}
	if e.ValidFromColumn == e.ValidUntilColumn {
		return fmt.Errorf("era %q: valid_from and valid_until must be distinct columns", e.Name)
	}
	if !e.Subtype.Valid() {
		return fmt.Errorf("era %q: unsupported range subtype %q", e.Name, e.Subtype)
	}
	if e.ValidToColumn != "" && !e.Subtype.Discrete() {
		return fmt.Errorf("era %q: mirror column %q requires a discrete subtype", e.Name, e.ValidToColumn)
	}
	return nil
}

// TemporalColumns returns the era's temporal column names, mirror included.
func (e Era) TemporalColumns() []string {
	cols := []string{e.ValidFromColumn, e.ValidUntilColumn}
	if e.ValidToColumn != "" {
		cols = append(cols, e.ValidToColumn)
	}
	return cols
}
