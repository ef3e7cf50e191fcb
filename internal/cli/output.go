package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/resdb/internal/address"
	"github.com/roach88/resdb/internal/provider"
	"github.com/roach88/resdb/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (bad address, engine error, failed batch)
	ExitCommandError = 2 // Command error (bad config, schema or input)
)

// Error codes reported in CLI output.
const (
	ErrCodeGeneric = "E_GENERIC" // Unclassified error
	ErrCodeAddress = "E_ADDRESS" // Malformed address
	ErrCodeRouting = "E_ROUTING" // Operation not allowed for the address kind
	ErrCodeEngine  = "E_ENGINE"  // Database failure
	ErrCodeBatch   = "E_BATCH"   // Batch operation failed, nothing committed
	ErrCodeConfig  = "E_CONFIG"  // Config file missing or invalid
	ErrCodeSchema  = "E_SCHEMA"  // Schema file missing or invalid
	ErrCodeInput   = "E_INPUT"   // Invalid flag or file contents
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E_ADDRESS", "E_ENGINE", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
// Text output uses the value's String method when it has one.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err in the configured format and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(err error) error {
	code := ErrorCode(err)
	_ = f.Error(code, err.Error(), errorDetails(err))
	return WrapExitError(exitCodeFor(code), code, err)
}

// FailWith reports a command-level error under an explicit code.
func (f *OutputFormatter) FailWith(code string, err error) error {
	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(exitCodeFor(code), code, err)
}

// ErrorCode classifies err. A failed batch reports E_BATCH whatever its
// cause; the cause is in the details.
func ErrorCode(err error) string {
	switch {
	case provider.IsBatchError(err):
		return ErrCodeBatch
	case address.IsAddressError(err):
		return ErrCodeAddress
	case provider.IsRoutingError(err):
		return ErrCodeRouting
	case store.IsEngineError(err):
		return ErrCodeEngine
	default:
		return ErrCodeGeneric
	}
}

func exitCodeFor(code string) int {
	switch code {
	case ErrCodeConfig, ErrCodeSchema, ErrCodeInput:
		return ExitCommandError
	default:
		return ExitFailure
	}
}

// batchErrorDetails locates the failing operation.
type batchErrorDetails struct {
	Index   int    `json:"index"`
	Op      string `json:"op"`
	Address string `json:"address"`
	Cause   string `json:"cause"`
}

func (d batchErrorDetails) String() string {
	return fmt.Sprintf("operation %d (%s %s): %s", d.Index, d.Op, d.Address, d.Cause)
}

// engineErrorDetails describes a database failure.
type engineErrorDetails struct {
	Op         string `json:"op"`
	Table      string `json:"table,omitempty"`
	Constraint bool   `json:"constraint,omitempty"`
	Busy       bool   `json:"busy,omitempty"`
}

func (d engineErrorDetails) String() string {
	return fmt.Sprintf("op=%s table=%s constraint=%t busy=%t", d.Op, d.Table, d.Constraint, d.Busy)
}

func errorDetails(err error) interface{} {
	var ee *store.EngineError
	if !provider.IsBatchError(err) && errors.As(err, &ee) {
		return engineErrorDetails{
			Op:         ee.Op,
			Table:      ee.Table,
			Constraint: store.IsConstraint(err),
			Busy:       store.IsBusy(err),
		}
	}
	var be *provider.BatchError
	if errors.As(err, &be) {
		cause := ErrorCode(be.Err)
		if provider.IsAssertionError(be.Err) {
			cause = "assertion"
		}
		return batchErrorDetails{
			Index:   be.Index,
			Op:      be.Op.String(),
			Address: be.Address,
			Cause:   cause,
		}
	}
	return nil
}
