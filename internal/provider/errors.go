package provider

import (
	"errors"
	"fmt"
)

// RoutingError reports a well-formed address used with an operation its
// kind does not support, such as a bulk insert into an item.
type RoutingError struct {
	Op      string
	Address string
	Reason  string
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	return fmt.Sprintf("cannot %s %q: %s", e.Op, e.Address, e.Reason)
}

// IsRoutingError returns true if err is or wraps a *RoutingError.
func IsRoutingError(err error) bool {
	var re *RoutingError
	return errors.As(err, &re)
}

// BatchError reports the operation that failed a batch. Nothing from the
// batch was committed.
type BatchError struct {
	// Index is the position of the failing operation.
	Index int

	// Op and Address describe it.
	Op      OpType
	Address string

	// Err is the cause.
	Err error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return fmt.Sprintf("batch operation %d (%s %s): %v", e.Index, e.Op, e.Address, e.Err)
}

// Unwrap returns the cause.
func (e *BatchError) Unwrap() error {
	return e.Err
}

// IsBatchError returns true if err is or wraps a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// AssertionError reports an assert operation whose rows did not match.
type AssertionError struct {
	Address string

	// Column is set for a value mismatch, empty for a count mismatch.
	Column   string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("assertion failed on %q: expected %s rows, found %s", e.Address, e.Expected, e.Actual)
	}
	return fmt.Sprintf("assertion failed on %q: column %s expected %q, found %q", e.Address, e.Column, e.Expected, e.Actual)
}

// IsAssertionError returns true if err is or wraps an *AssertionError.
func IsAssertionError(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}
