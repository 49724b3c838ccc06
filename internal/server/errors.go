package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/afroash/serverroom-monitor/internal/export"
	"github.com/afroash/serverroom-monitor/internal/models"
	"github.com/afroash/serverroom-monitor/internal/storage"
)

// ErrorType classifies an API error for clients
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeAuth        ErrorType = "authentication"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeUnavailable ErrorType = "service_unavailable"
	ErrorTypeInternal    ErrorType = "internal"
)

// APIError is the JSON body of every failed request
type APIError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Field   string    `json:"field,omitempty"`
	err     error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *APIError) Unwrap() error {
	return e.err
}

func newAPIError(t ErrorType, code int, msg string, err error) *APIError {
	return &APIError{Type: t, Message: msg, Code: code, err: err}
}

// toAPIError maps repository and domain errors onto HTTP statuses
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		e := newAPIError(ErrorTypeValidation, http.StatusBadRequest, ve.Error(), err)
		e.Field = ve.Field
		return e
	case errors.Is(err, export.ErrUnknownFormat):
		return newAPIError(ErrorTypeValidation, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, storage.ErrNotFound):
		return newAPIError(ErrorTypeNotFound, http.StatusNotFound, storage.ErrNotFound.Error(), err)
	case errors.Is(err, storage.ErrDuplicateDate):
		return newAPIError(ErrorTypeConflict, http.StatusConflict, storage.ErrDuplicateDate.Error(), err)
	case errors.Is(err, storage.ErrDuplicateID):
		return newAPIError(ErrorTypeConflict, http.StatusConflict, storage.ErrDuplicateID.Error(), err)
	case errors.Is(err, storage.ErrBackendUnavailable):
		return newAPIError(ErrorTypeUnavailable, http.StatusServiceUnavailable, storage.ErrBackendUnavailable.Error(), err)
	default:
		return newAPIError(ErrorTypeInternal, http.StatusInternalServerError, "internal server error", err)
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
