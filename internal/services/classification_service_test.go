package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	apperrors "energybudget/internal/errors"
	"energybudget/internal/testutil"
)

type stubClassifier struct {
	label      string
	confidence float64
	err        error

	gotAllocated decimal.Decimal
	gotRealized  decimal.Decimal
	gotPct       *float64
}

func (s *stubClassifier) Classify(_ context.Context, _ uint, allocated, realized decimal.Decimal, pct *float64) (string, float64, error) {
	s.gotAllocated, s.gotRealized, s.gotPct = allocated, realized, pct
	return s.label, s.confidence, s.err
}

func TestClassificationService(t *testing.T) {
	f := newRealizationFixture(t, testutil.Date(2024, 2, 15))
	testutil.CreateTestUsage(t, f.db, f.meterA.ID, testutil.Date(2024, 1, 10), 33000000)

	t.Run("labels the budget", func(t *testing.T) {
		stub := &stubClassifier{label: "BOROS", confidence: 0.91}
		svc := NewClassificationService(f.svc, stub)

		got, err := svc.ClassifyBudget(context.Background(), f.child.ID)
		testutil.AssertNoError(t, err)
		if got.Label != "BOROS" || got.Confidence != 0.91 {
			t.Errorf("unexpected classification: %+v", got)
		}
		if !stub.gotAllocated.Equal(decimal.NewFromInt(30000000)) || !stub.gotRealized.Equal(decimal.NewFromInt(33000000)) {
			t.Errorf("classifier got allocated %s realized %s", stub.gotAllocated, stub.gotRealized)
		}
		if stub.gotPct == nil || *stub.gotPct != 110 {
			t.Errorf("expected percentage 110, got %v", stub.gotPct)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		svc := NewClassificationService(f.svc, &stubClassifier{err: errors.New("requesting classification: unexpected status 500")})
		_, err := svc.ClassifyBudget(context.Background(), f.child.ID)
		testutil.AssertAppError(t, err, apperrors.ErrUpstreamUnavailable.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		svc := NewClassificationService(f.svc, nil)
		_, err := svc.ClassifyBudget(context.Background(), f.child.ID)
		testutil.AssertAppError(t, err, apperrors.ErrUpstreamDisabled.Code)
	})

	t.Run("unknown budget", func(t *testing.T) {
		svc := NewClassificationService(f.svc, &stubClassifier{label: "NORMAL"})
		_, err := svc.ClassifyBudget(context.Background(), 9999)
		testutil.AssertAppError(t, err, apperrors.ErrBudgetNotFound.Code)
	})
}
