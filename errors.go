package usched

import (
	"errors"
	"fmt"
)

// Error is a structured usched error carrying the worker/type context a
// bare error string would lose.
type Error struct {
	Op string // operation that failed (e.g. "dispatch", "worker.step")
	Worker int // worker index, or -1 if not applicable
	Type string // request type name, empty if not applicable
	Code ErrorCode // high-level error category
	Msg string // human-readable message
	Inner error // wrapped cause
}

func (e *Error) Error() string {
	var ctx string
	if e.Op != "" {
		ctx = fmt.Sprintf("op=%s", e.Op)
	}
	if e.Worker >= 0 {
		if ctx != "" {
			ctx += " "
		}
		ctx += fmt.Sprintf("worker=%d", e.Worker)
	}
	if e.Type != "" {
		if ctx != "" {
			ctx += " "
		}
		ctx += fmt.Sprintf("type=%s", e.Type)
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if ctx != "" {
		return fmt.Sprintf("usched: %s (%s)", msg, ctx)
	}
	return fmt.Sprintf("usched: %s", msg)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is allows comparing against a bare ErrorCode or another *Error by code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if code, ok := target.(ErrorCode); ok {
		return e.Code == code
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode categorizes failures the scheduler core can report.
type ErrorCode string

func (c ErrorCode) Error() string { return string(c) }

const (
	// ErrCodeResourceExhausted covers transient request/continuation
	// pool exhaustion or a full type queue: the caller should log at
	// warn and drop the request.
	ErrCodeResourceExhausted ErrorCode = "resource exhausted"
	// ErrCodeProtocolViolation covers a slot observed in a flag state
	// the protocol forbids at that point.
	ErrCodeProtocolViolation ErrorCode = "protocol violation"
	// ErrCodeContextSwitchFailure covers a continuation's handler
	// goroutine panicking, or a double-Resume. Treated as fatal
	// (process exit); there is no recovery.
	ErrCodeContextSwitchFailure ErrorCode = "context-switch failure"
	// ErrCodeInvalidParameters covers a Params value that fails validation
	// before a Scheduler is built.
	ErrCodeInvalidParameters ErrorCode = "invalid configuration"
)

// NewError creates a structured error not tied to a specific worker.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Worker: -1, Code: code, Msg: msg}
}

// NewWorkerError creates a structured error scoped to one worker.
func NewWorkerError(op string, worker int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Worker: worker, Code: code, Msg: msg}
}

// WrapError wraps an existing error with usched context, preserving an
// inner *Error's code/worker/type if present.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var ue *Error
	if errors.As(inner, &ue) {
		return &Error{
			Op: op,
			Worker: ue.Worker,
			Type: ue.Type,
			Code: ue.Code,
			Msg: ue.Msg,
			Inner: ue.Inner,
		}
	}
	return &Error{
		Op: op,
		Worker: -1,
		Code: ErrCodeContextSwitchFailure,
		Msg: inner.Error(),
		Inner: inner,
	}
}

// IsCode reports whether err (or something it wraps) carries code.
func IsCode(err error, code ErrorCode) bool {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code == code
	}
	return false
}
