package api

import (
	"errors"
	"fmt"
)

// Error represents an API error response.
type Error struct {
	Code    string `msgpack:"code" yaml:"code"`
	Message string `msgpack:"message" yaml:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Is implements the errors.Is interface for error matching.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	// Match by code if target has a code
	if t.Code != "" {
		return e.Code == t.Code
	}
	if t.Message != "" {
		return e.Message == t.Message
	}
	return false
}

// Error codes
const (
	ErrCodeMalformedId        = "malformed_id"
	ErrCodeMalformedVersion   = "malformed_version"
	ErrCodeInvalidDescription = "invalid_description"
	ErrCodeNotConnected       = "not_connected"
	ErrCodeNotFound           = "not_found"
	ErrCodeBadPatch           = "bad_patch"
	ErrCodeTransient          = "transient_network"
	ErrCodePatchApply         = "patch_apply"
	ErrCodeStorage            = "storage_error"
	ErrCodeBadRequest         = "bad_request"
	ErrCodeInternal           = "internal_error"

	// ErrCodeNoPatch marks a not found response for a patch that is not in
	// an existing log. Links turn it into a nil patch rather than an error.
	ErrCodeNoPatch = "no_patch"
)

// Sentinels for use with errors.Is. Only the code is compared.
var (
	ErrMalformedId        = &Error{Code: ErrCodeMalformedId}
	ErrMalformedVersion   = &Error{Code: ErrCodeMalformedVersion}
	ErrInvalidDescription = &Error{Code: ErrCodeInvalidDescription}
	ErrNotConnected       = &Error{Code: ErrCodeNotConnected}
	ErrNotFound           = &Error{Code: ErrCodeNotFound}
	ErrBadPatch           = &Error{Code: ErrCodeBadPatch}
	ErrTransient          = &Error{Code: ErrCodeTransient}
	ErrPatchApply         = &Error{Code: ErrCodePatchApply}
	ErrBadRequest         = &Error{Code: ErrCodeBadRequest}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Retryable reports whether err is worth retrying without caller intervention.
// Only transient network failures are.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
