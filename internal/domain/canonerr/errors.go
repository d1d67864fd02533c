// Package canonerr defines the error taxonomy surfaced by canon operations.
package canonerr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error category.
type Code string

const (
	CodeValidation      Code = "VALIDATION"
	CodeLocked          Code = "LOCKED"
	CodeConflict        Code = "CONFLICT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// Sentinels for errors.Is matching by code.
var (
	ErrValidation      = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrLocked          = &Error{Code: CodeLocked, Message: "entry is hard-locked"}
	ErrConflict        = &Error{Code: CodeConflict, Message: "concurrent modification"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
)

// Error is a canon domain error.
type Error struct {
	Code     Code   // Machine-readable error code
	Message  string // Human-readable description
	EntityID string // Entry or timeline the error concerns, if any
	Cause    error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.EntityID != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.EntityID)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Validation reports input that breaks a domain rule.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Locked reports a mutation attempted on a hard-locked entry.
func Locked(entryID string) *Error {
	return &Error{Code: CodeLocked, Message: "entry is hard-locked", EntityID: entryID}
}

// Conflict reports a lost compare-and-swap or a uniqueness race.
func Conflict(entityID, message string, cause error) *Error {
	return &Error{Code: CodeConflict, Message: message, EntityID: entityID, Cause: cause}
}

// NotFound reports a missing or inactive record.
func NotFound(what, id string) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found", EntityID: id}
}

// InvalidArgument reports a malformed request.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first canon error in err's chain, or "".
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
