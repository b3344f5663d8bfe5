// Package handlers provides HTTP request handlers for the API.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/narvanalabs/storefront/internal/api/errors"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	apierrors.WriteJSON(w, status, data)
}

// decodeJSON decodes the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.Write(w, r, apierrors.NewInvalidRequestError(message))
}

// WriteValidationError writes a 400 response naming the invalid field.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	apierrors.Write(w, r, apierrors.FromValidation(err))
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.Write(w, r, apierrors.NewNotFoundError(message))
}

// WriteConflict writes a 409 Conflict response.
func WriteConflict(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.Write(w, r, apierrors.NewConflictError(message))
}

// WriteUnauthorized writes a 401 Unauthorized response.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.Write(w, r, apierrors.NewUnauthorizedError(message))
}

// WriteForbidden writes a 403 Forbidden response.
func WriteForbidden(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.Write(w, r, apierrors.NewForbiddenError(message))
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.Write(w, r, apierrors.NewInternalError(message))
}

// SuccessResponse is the body of operations with nothing else to report.
type SuccessResponse struct {
	Success bool `json:"success"`
}
