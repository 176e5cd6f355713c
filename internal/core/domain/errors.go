package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code callers can branch on.
type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeAuth       Code = "AUTH_ERROR"
	CodeRateLimit  Code = "RATE_LIMIT"
	CodeGeostore   Code = "GEOSTORE_ERROR"
	CodeAnalysis   Code = "ANALYSIS_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"
	CodeTimeout    Code = "TIMEOUT"

	// Boundary-only codes: a raw upstream failure that nothing translated,
	// and an unknown route.
	CodeUpstream Code = "UPSTREAM_ERROR"
	CodeNotFound Code = "NOT_FOUND"
)

// Status is the HTTP status a code maps to when the error carries none.
func (c Code) Status() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FieldViolation is one failed input rule.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// UpstreamError is the only error type that crosses the gateway boundary. It
// never holds an upstream-specific type, only status, code and message.
type UpstreamError struct {
	Message    string
	Status     int
	Code       Code
	Retriable  bool
	Violations []FieldViolation
	Cause      error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// NewError builds an error with the code's default status.
func NewError(code Code, message string) *UpstreamError {
	return &UpstreamError{
		Message:   message,
		Status:    code.Status(),
		Code:      code,
		Retriable: code == CodeRateLimit || code == CodeTimeout,
	}
}

// Wrap builds an error with the code's default status and a cause.
func Wrap(code Code, message string, cause error) *UpstreamError {
	e := NewError(code, message)
	e.Cause = cause
	return e
}

// ValidationError builds a VALIDATION_ERROR holding the ordered violations.
func ValidationError(violations []FieldViolation) *UpstreamError {
	e := NewError(CodeValidation, "Validation failed")
	if len(violations) == 1 {
		e.Message = violations[0].Message
	}
	e.Violations = violations
	return e
}

// FromStatus classifies a non-2xx upstream HTTP status.
func FromStatus(status int, message string) *UpstreamError {
	e := &UpstreamError{Message: message, Status: status}
	switch {
	case status == http.StatusUnauthorized:
		e.Code = CodeAuth
	case status == http.StatusTooManyRequests:
		e.Code = CodeRateLimit
		e.Retriable = true
	case status >= 500:
		e.Code = CodeUpstream
		e.Retriable = status == http.StatusBadGateway ||
			status == http.StatusServiceUnavailable ||
			status == http.StatusGatewayTimeout
	default:
		e.Code = CodeUpstream
	}
	return e
}

// AsUpstreamError extracts the taxonomy error from err. Anything else becomes
// INTERNAL_ERROR, except context deadlines which become TIMEOUT.
func AsUpstreamError(err error) *UpstreamError {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeTimeout, "Upstream request timed out", err)
	}
	return Wrap(CodeInternal, "Internal server error", err)
}

// HasCode reports whether err is an UpstreamError with the given code.
func HasCode(err error, code Code) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Code == code
}
