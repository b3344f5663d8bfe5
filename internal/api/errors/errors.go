// Package errors provides the structured error payload of the API.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/narvanalabs/storefront/internal/models"
)

// Error codes for structured API responses.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeUnauthorized   = "unauthorized"
	CodeForbidden      = "forbidden"
	CodeConflict       = "conflict"
	CodeInternalError  = "internal_error"
)

// APIError is the body of every error response.
type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails returns a copy of the error with additional details.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	c := *e
	c.Details = details
	return &c
}

// WithRequestID returns a copy of the error with the request ID set.
func (e *APIError) WithRequestID(requestID string) *APIError {
	c := *e
	c.RequestID = requestID
	return &c
}

// New creates a new APIError with the given code and message.
func New(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func NewInvalidRequestError(message string) *APIError { return New(CodeInvalidRequest, message) }
func NewNotFoundError(message string) *APIError       { return New(CodeNotFound, message) }
func NewUnauthorizedError(message string) *APIError   { return New(CodeUnauthorized, message) }
func NewForbiddenError(message string) *APIError      { return New(CodeForbidden, message) }
func NewConflictError(message string) *APIError       { return New(CodeConflict, message) }
func NewInternalError(message string) *APIError       { return New(CodeInternalError, message) }

// FromValidation converts a model validation failure to an invalid request
// error naming the field. Other errors become a plain invalid request.
func FromValidation(err error) *APIError {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return NewInvalidRequestError(ve.Message).WithDetails(map[string]any{
			"field": ve.Field,
		})
	}
	return NewInvalidRequestError(err.Error())
}

// HTTPStatusCode returns the HTTP status code for the error.
func (e *APIError) HTTPStatusCode() int {
	switch e.Code {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes an APIError as a JSON response.
func WriteError(w http.ResponseWriter, err *APIError) {
	WriteJSON(w, err.HTTPStatusCode(), err)
}

// Write writes err tagged with the request ID of r, if any.
func Write(w http.ResponseWriter, r *http.Request, err *APIError) {
	if id := middleware.GetReqID(r.Context()); id != "" {
		err = err.WithRequestID(id)
	}
	WriteError(w, err)
}

// GetStackTrace returns the current stack trace as a string.
func GetStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorLogEntry represents a structured error log entry.
type ErrorLogEntry struct {
	CorrelationID string `json:"correlation_id"`
	ErrorCode     string `json:"error_code"`
	Message       string `json:"message"`
	StackTrace    string `json:"stack_trace"`
}

// NewErrorLogEntry creates a new error log entry with the current stack.
func NewErrorLogEntry(correlationID, errorCode, message string) *ErrorLogEntry {
	return &ErrorLogEntry{
		CorrelationID: correlationID,
		ErrorCode:     errorCode,
		Message:       message,
		StackTrace:    GetStackTrace(),
	}
}

// ToSlogAttrs returns the error log entry as slog attributes for structured logging.
func (e *ErrorLogEntry) ToSlogAttrs() []any {
	return []any{
		"correlation_id", e.CorrelationID,
		"error_code", e.ErrorCode,
		"message", e.Message,
		"stack_trace", e.StackTrace,
	}
}
