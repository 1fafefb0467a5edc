package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors for common backend conditions
var (
	// ErrNotFound indicates the requested table, era, or row does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a registration or write conflicts with existing state
	ErrConflict = errors.New("conflict")

	// ErrMissingRowID indicates the source relation lacks the row-id column
	ErrMissingRowID = errors.New("source row-id column missing")
)

// WrapDBError wraps a database error with operation context.
// It converts sql.ErrNoRows to ErrNotFound for consistent error handling.
func WrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
