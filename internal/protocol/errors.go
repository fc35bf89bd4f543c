package protocol

import (
	"errors"
	"fmt"
)

// Error codes carried in the error envelope.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeDisabled        = "DISABLED"
	CodeExternalAPI     = "EXTERNAL_API_ERROR"
	CodeStorage         = "STORAGE_ERROR"
	CodeConfiguration   = "CONFIGURATION_ERROR"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeUnknownAction   = "UNKNOWN_ACTION"
	CodeVersionMismatch = "VERSION_MISMATCH"
	CodeInternal        = "INTERNAL_ERROR"
)

// Error is a typed error with the code/domain pair the wire envelope needs.
// It wraps an underlying cause where one exists.
type Error struct {
	Code    string
	Domain  string
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates an Error with no underlying cause.
func NewError(code, domain, format string, args ...any) *Error {
	return &Error{Code: code, Domain: domain, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and domain to an existing error. If err is
// already a protocol Error its code and domain win and err is returned
// unchanged, so the innermost classification survives boundary wrapping.
func WrapError(err error, code, domain, message string) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Code: code, Domain: domain, Message: message, cause: err}
}

// WithDetails returns a copy of the error carrying extra envelope details.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == code
}

// ErrorEnvelope is the uniform error shape sent over the wire.
type ErrorEnvelope struct {
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Domain  string         `json:"domain"`
	Details map[string]any `json:"details,omitempty"`
}

// Envelope converts any error into the wire envelope. Errors without a
// protocol classification become CodeInternal.
func Envelope(err error) ErrorEnvelope {
	var pe *Error
	if errors.As(err, &pe) {
		return ErrorEnvelope{
			Message: pe.Error(),
			Code:    pe.Code,
			Domain:  pe.Domain,
			Details: pe.Details,
		}
	}
	return ErrorEnvelope{Message: err.Error(), Code: CodeInternal, Domain: "internal"}
}
