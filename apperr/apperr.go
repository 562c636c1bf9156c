package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError carries an error code and the HTTP status it should surface as.
type AppError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation is a malformed or incomplete request. No side effects happened.
func Validation(message string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: message, StatusCode: http.StatusBadRequest}
}

// Authenticity is a failed webhook or payment signature check.
func Authenticity(message string) *AppError {
	return &AppError{Code: "AUTHENTICITY_ERROR", Message: message, StatusCode: http.StatusUnauthorized}
}

// Gateway wraps a failed or timed-out call to the payment provider.
func Gateway(err error) *AppError {
	return &AppError{Code: "GATEWAY_ERROR", Message: "payment gateway request failed", StatusCode: http.StatusBadGateway, Err: err}
}

// Storage wraps a failed database operation. During reconciliation this must
// map to a non-2xx response so the gateway redelivers the event.
func Storage(err error) *AppError {
	return &AppError{Code: "STORAGE_ERROR", Message: "storage operation failed", StatusCode: http.StatusInternalServerError, Err: err}
}

func NotFound(message string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: message, StatusCode: http.StatusNotFound}
}

// From extracts an *AppError from err, or wraps it as an internal error.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Code: "INTERNAL_ERROR", Message: "internal server error", StatusCode: http.StatusInternalServerError, Err: err}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == "VALIDATION_ERROR"
}
