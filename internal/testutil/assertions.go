package testutil

import (
	"errors"
	"testing"

	apperrors "energybudget/internal/errors"
)

// AssertAppError checks that err is an *AppError with the expected error code.
func AssertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected AppError with code %q, got nil", expectedCode)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}

	if appErr.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// AssertFieldError checks that err is a validation failure carrying a
// violation of the given code on field.
func AssertFieldError(t *testing.T, err error, field, expectedCode string) {
	t.Helper()

	AssertAppError(t, err, apperrors.ErrValidation.Code)
	for _, f := range apperrors.FieldsOf(err) {
		if f.Field == field && f.Code == expectedCode {
			return
		}
	}
	t.Errorf("expected field error %s on %q, got %+v", expectedCode, field, apperrors.FieldsOf(err))
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
