// Package errors provides the error types returned by the budget engine.
// Service-layer failures are AppErrors so the HTTP boundary can map them to
// consistent responses that never leak internal details to clients.
package errors

import (
	"context"
	stderrors "errors"
	"net/http"
)

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, optional internal error and,
// for validation failures, the full list of offending fields.
type AppError struct {
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Fields     []FieldError `json:"fields,omitempty"`
	StatusCode int          `json:"-"`
	Internal   error        `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is matches AppErrors by code, so a customised copy still matches its sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// WithFields creates a validation error carrying every field violation at once.
func WithFields(fields []FieldError) *AppError {
	return &AppError{
		Code:       ErrValidation.Code,
		Message:    ErrValidation.Message,
		StatusCode: ErrValidation.StatusCode,
		Fields:     fields,
	}
}

// Store wraps a persistence failure. Cancelled or expired contexts become
// ErrRequestTimeout; everything else is reported as an unavailable store.
func Store(err error) *AppError {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrRequestTimeout, err)
	}
	return Wrap(ErrStoreUnavailable, err)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error *AppError `json:"error"`
}

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrValidation     = &AppError{Code: "VALIDATION_FAILED", Message: "Budget failed validation", StatusCode: http.StatusUnprocessableEntity}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
	ErrRequestTimeout = &AppError{Code: "REQUEST_TIMEOUT", Message: "The request was cancelled or timed out", StatusCode: http.StatusGatewayTimeout}
)

// Upstream errors.
var (
	ErrStoreUnavailable    = &AppError{Code: "STORE_UNAVAILABLE", Message: "The budget store is unavailable", StatusCode: http.StatusServiceUnavailable}
	ErrUpstreamUnavailable = &AppError{Code: "UPSTREAM_UNAVAILABLE", Message: "An upstream analytics service is unavailable", StatusCode: http.StatusBadGateway}
	ErrUpstreamDisabled    = &AppError{Code: "UPSTREAM_NOT_CONFIGURED", Message: "The upstream service is not configured", StatusCode: http.StatusServiceUnavailable}
)

// Master data errors.
var (
	ErrEnergyTypeNotFound = &AppError{Code: "ENERGY_TYPE_NOT_FOUND", Message: "Energy type not found", StatusCode: http.StatusNotFound}
	ErrMeterNotFound      = &AppError{Code: "METER_NOT_FOUND", Message: "Meter not found", StatusCode: http.StatusNotFound}
)

// Budget errors.
var (
	ErrBudgetNotFound         = &AppError{Code: "BUDGET_NOT_FOUND", Message: "Budget not found", StatusCode: http.StatusNotFound}
	ErrSnapshotNotFound       = &AppError{Code: "SNAPSHOT_NOT_FOUND", Message: "Budget has not been recalculated yet", StatusCode: http.StatusNotFound}
	ErrNotAParent             = &AppError{Code: "NOT_A_PARENT_BUDGET", Message: "Budget is not a parent budget", StatusCode: http.StatusBadRequest}
	ErrBudgetKindChange       = &AppError{Code: "BUDGET_KIND_CHANGE", Message: "A budget cannot change between parent and child", StatusCode: http.StatusBadRequest}
	ErrParentChange           = &AppError{Code: "PARENT_CHANGE", Message: "A child budget cannot be moved to another parent", StatusCode: http.StatusBadRequest}
	ErrCapacityExceeded       = &AppError{Code: "CAPACITY_EXCEEDED", Message: "Parent budget capacity exceeded", StatusCode: http.StatusConflict}
	ErrConcurrentModification = &AppError{Code: "CONCURRENT_MODIFICATION", Message: "Parent budget changed concurrently; refetch and retry", StatusCode: http.StatusConflict}
	ErrHasDependentChildren   = &AppError{Code: "HAS_DEPENDENT_CHILDREN", Message: "Budget has child budgets; pass cascade=true to delete them too", StatusCode: http.StatusConflict}
	ErrEnergyTypeLocked       = &AppError{Code: "ENERGY_TYPE_LOCKED", Message: "Energy type cannot change while child budgets exist", StatusCode: http.StatusConflict}
	ErrChildOutsidePeriod     = &AppError{Code: "CHILD_OUTSIDE_PERIOD", Message: "Existing child budgets fall outside the new period", StatusCode: http.StatusConflict}
)
