package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes carried in API error bodies. Clients branch on these, never on
// the message text.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeOperationInFlight  = "OPERATION_IN_FLIGHT"
	CodePrecondition       = "PRECONDITION_FAILED"
	CodeUpstreamRejected   = "UPSTREAM_REJECTED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// AppError is an error with a stable code and the HTTP status it maps to
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail sets one detail entry and returns e
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// WithDetails copies details into e
func (e *AppError) WithDetails(details map[string]string) *AppError {
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// Wrap records err as the cause
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrValidationWithFields reports one message per invalid field
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	return ErrValidation(message).WithDetails(fields)
}

func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// ErrNotFound names the missing resource, e.g. "container"
func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, resource+" not found", http.StatusNotFound)
}

func ErrForbidden(message string) *AppError {
	return NewAppError(CodeForbidden, orDefault(message, "access denied"), http.StatusForbidden)
}

func ErrConflict(message string) *AppError {
	return NewAppError(CodeConflict, message, http.StatusConflict)
}

// ErrOperationInFlight rejects a duplicate submission for resource
func ErrOperationInFlight(resource string) *AppError {
	return NewAppError(CodeOperationInFlight, "an operation for "+resource+" is already in flight", http.StatusConflict)
}

// ErrPrecondition reports a workflow rule checked before any upstream call
func ErrPrecondition(message string) *AppError {
	return NewAppError(CodePrecondition, message, http.StatusUnprocessableEntity)
}

// ErrUpstreamRejected reports a collaborator refusing a well-formed request
func ErrUpstreamRejected(message string) *AppError {
	return NewAppError(CodeUpstreamRejected, message, http.StatusUnprocessableEntity)
}

func ErrServiceUnavailable(service string) *AppError {
	return NewAppError(CodeServiceUnavailable, service+" is temporarily unavailable", http.StatusServiceUnavailable)
}

func ErrTimeout(operation string) *AppError {
	return NewAppError(CodeTimeout, operation+" timed out", http.StatusGatewayTimeout)
}

func ErrInternal(message string) *AppError {
	return NewAppError(CodeInternalError, orDefault(message, "an internal error occurred"), http.StatusInternalServerError)
}

// AsAppError finds the first AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// FromError returns err's AppError, or an internal error wrapping err
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return ErrInternal("").Wrap(err)
}
