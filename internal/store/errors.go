package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// EngineError reports a failure of the underlying engine: constraint
// violations, I/O failures, lock timeouts.
type EngineError struct {
	// Op is the failing operation ("insert", "commit", ...).
	Op string

	// Table is the affected table, if any.
	Table string

	// Err is the driver error.
	Err error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("engine %s on %q: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

// Unwrap returns the driver error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsEngineError returns true if err is or wraps an *EngineError.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}

// IsConstraint returns true if err was caused by a constraint violation
// (UNIQUE, NOT NULL, FOREIGN KEY, CHECK).
func IsConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

// IsBusy returns true if err was caused by lock contention that outlasted
// the busy timeout.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
