package errors

import stderrors "errors"

// FieldError is a single field-scoped validation violation.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

// Is matches field errors by code.
func (e *FieldError) Is(target error) bool {
	t, ok := target.(*FieldError)
	return ok && t.Code == e.Code
}

// Field violation sentinels. Use At to attach them to a concrete field.
var (
	ErrInvalidPeriod            = &FieldError{Code: "INVALID_PERIOD", Message: "Invalid period"}
	ErrWeightSumMismatch        = &FieldError{Code: "WEIGHT_SUM_MISMATCH", Message: "Allocation weights must total 100%"}
	ErrDuplicateMeterAllocation = &FieldError{Code: "DUPLICATE_METER_ALLOCATION", Message: "Meter is allocated more than once"}
	ErrMissingParent            = &FieldError{Code: "MISSING_PARENT", Message: "Parent budget not found"}
	ErrFieldRange               = &FieldError{Code: "FIELD_RANGE", Message: "Value out of range"}
	ErrUnknownReference         = &FieldError{Code: "UNKNOWN_REFERENCE", Message: "Referenced record not found"}
)

// At returns a copy of sentinel bound to field with a specific message.
func At(sentinel *FieldError, field, message string) FieldError {
	if message == "" {
		message = sentinel.Message
	}
	return FieldError{Field: field, Code: sentinel.Code, Message: message}
}

// FieldsOf returns the field violations carried by err, if any.
func FieldsOf(err error) []FieldError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Fields
	}
	return nil
}

// HasField reports whether err carries a violation of sentinel's kind on field.
func HasField(err error, field string, sentinel *FieldError) bool {
	for _, f := range FieldsOf(err) {
		if f.Field == field && f.Code == sentinel.Code {
			return true
		}
	}
	return false
}
