// Package bulkscan provides the Phase-1 scheduling and recursion
// engine for a forensic bulk-data extractor: paged image iteration,
// work-unit dispatch to a worker pool with backpressure, deterministic
// recursive submission, and graceful drain on shutdown.
package bulkscan

import (
	"errors"
	"fmt"
)

// Error is a structured driver error carrying the taxonomy of spec.md
// §7: configuration errors and exhausted allocator retries are fatal;
// per-page read failures and scanner failures are not, and are only
// ever logged, never returned as an Error.
type Error struct {
	Op    string        // operation that failed, e.g. "dispatch", "new_pool"
	Code  ScanErrorCode // high-level error category
	Pos   string        // offending Position, if one exists
	Msg   string        // human-readable message
	Inner error         // wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	switch {
	case e.Op != "" && e.Pos != "":
		return fmt.Sprintf("bulkscan: %s (op=%s pos=%s)", msg, e.Op, e.Pos)
	case e.Op != "":
		return fmt.Sprintf("bulkscan: %s (op=%s)", msg, e.Op)
	default:
		return fmt.Sprintf("bulkscan: %s", msg)
	}
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison by error code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ScanErrorCode represents the high-level error categories of spec.md §7.
type ScanErrorCode string

const (
	// ErrCodeConfiguration marks a caller misuse of sampling or gate
	// options, fatal at startup (spec.md §4.3).
	ErrCodeConfiguration ScanErrorCode = "configuration error"

	// ErrCodeAllocationExhausted marks an allocator-retry budget that
	// was exhausted without a successful page read (spec.md §4.4).
	ErrCodeAllocationExhausted ScanErrorCode = "allocator retry budget exhausted"

	// ErrCodePoolConstruction marks a failure to construct the worker
	// pool itself.
	ErrCodePoolConstruction ScanErrorCode = "worker pool construction failed"

	// ErrCodeCancelled marks dispatch stopping because the run's
	// context was cancelled (e.g. SIGINT) while a unit was in flight to
	// the pool.
	ErrCodeCancelled ScanErrorCode = "run cancelled"
)

// NewConfigError creates a configuration error.
func NewConfigError(op, msg string) *Error {
	return &Error{Op: op, Code: ErrCodeConfiguration, Msg: msg}
}

// NewAllocationError creates an exhausted-allocator-retry error for the
// given Position.
func NewAllocationError(op, posText string, inner error) *Error {
	return &Error{Op: op, Code: ErrCodeAllocationExhausted, Pos: posText, Msg: "allocator retry budget exhausted", Inner: inner}
}

// NewPoolError wraps a worker-pool construction failure.
func NewPoolError(op string, inner error) *Error {
	return &Error{Op: op, Code: ErrCodePoolConstruction, Msg: inner.Error(), Inner: inner}
}

// NewCancelledError wraps a context cancellation observed during
// dispatch (e.g. Submit unblocking because the run's context was
// cancelled).
func NewCancelledError(op string, inner error) *Error {
	return &Error{Op: op, Code: ErrCodeCancelled, Msg: "run cancelled", Inner: inner}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ScanErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
