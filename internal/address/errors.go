package address

import (
	"errors"
	"fmt"
)

// Error reports a malformed or unrecognized address.
// It is fatal to the call that produced it and never retried.
type Error struct {
	// Address is the offending address in textual form.
	Address string

	// Reason says what is wrong with it.
	Reason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Address, e.Reason)
}

// IsAddressError returns true if err is or wraps an *Error.
func IsAddressError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}
