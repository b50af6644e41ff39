// Package dErrors provides coded domain errors for the check-in core.
//
// Services translate store sentinels and transport failures into these codes
// before anything crosses a package boundary; handlers map codes to HTTP
// statuses. Business-rule rejections (age, capacity, status conflicts) travel
// as codes with display-ready messages, never as raw driver or socket errors.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. The set mirrors the check-in error
// taxonomy: entity lookups, status conflicts, business-rule rejections,
// concurrency, transport, and the unknown catch-all.
type Code string

const (
	CodeChildNotFound             Code = "child_not_found"
	CodeServiceNotFound           Code = "service_not_found"
	CodeChildAlreadyCheckedIn     Code = "child_already_checked_in"
	CodeChildNotCheckedIn         Code = "child_not_checked_in"
	CodeServiceNotAcceptingChecks Code = "service_not_accepting_check_ins"
	CodeServiceAtCapacity         Code = "service_at_capacity"
	CodeInvalidAgeForService      Code = "invalid_age_for_service"
	CodeConcurrencyConflict       Code = "concurrency_conflict"
	CodeConnectionFailed          Code = "connection_failed"
	CodeTimeout                   Code = "timeout"
	CodeNetwork                   Code = "network_error"
	CodeValidation                Code = "validation_error"
	CodeServer                    Code = "server_error"
	CodeInvalidInput              Code = "invalid_input"
	CodeUnauthorized              Code = "unauthorized"
	CodeInternal                  Code = "internal_error"
	CodeUnknown                   Code = "unknown_error"
)

// Error carries a code, a display-ready message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with a human-readable message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// original for diagnostics.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf returns the code carried by err, or CodeUnknown when err carries
// none. A nil error has no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// MessageOf returns the display message carried by err, falling back to the
// raw error string for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// ToHTTPStatus maps a code to the HTTP status handlers should write.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeChildNotFound, CodeServiceNotFound:
		return http.StatusNotFound
	case CodeChildAlreadyCheckedIn, CodeChildNotCheckedIn, CodeConcurrencyConflict:
		return http.StatusConflict
	case CodeServiceNotAcceptingChecks, CodeServiceAtCapacity, CodeInvalidAgeForService:
		return http.StatusUnprocessableEntity
	case CodeValidation, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeConnectionFailed, CodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
