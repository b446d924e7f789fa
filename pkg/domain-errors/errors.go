// Package domainerrors defines the error vocabulary shared by all overseer
// modules. Services return coded errors; the HTTP layer translates codes to
// status codes without inspecting error strings.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies a class of failure. Codes are stable API: they appear in
// JSON error envelopes and clients may branch on them.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_error"
	CodeInvalidInput Code = "invalid_input"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"

	// CodeUnknownTool signals that a request or policy referenced a tool
	// absent from the tool registry.
	CodeUnknownTool Code = "unknown_tool"

	// CodeIDMapping signals that one or more tool-specific identifiers could
	// not be resolved to Revolori IDs. This is a client-side problem: the
	// person is not signed up with Revolori.
	CodeIDMapping Code = "id_mapping_failed"

	// CodeDependency signals that an upstream collaborator (Revolori, the
	// database) failed or timed out. Retryable by the caller.
	CodeDependency Code = "dependency_unavailable"
)

// DomainError carries a code, a human-readable message, and an optional cause.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// New constructs a coded error without a cause.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &DomainError{Code: code, Message: message, Err: err}
}

// HasCode reports whether err or any error it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that were not created by this package.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps an error code to the HTTP status the transport layer
// should respond with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidInput, CodeUnknownTool, CodeIDMapping:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
