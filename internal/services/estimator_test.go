package services

import (
	"context"
	"testing"

	"energybudget/internal/allocation"
	"energybudget/internal/testutil"
)

func TestHistoricalEstimator(t *testing.T) {
	db := testutil.SetupTestDB(t)
	et := testutil.CreateTestEnergyType(t, db)
	m1 := testutil.CreateTestMeter(t, db, et.ID)
	m2 := testutil.CreateTestMeter(t, db, et.ID)
	other := testutil.CreateTestMeter(t, db, et.ID)

	testutil.CreateTestUsage(t, db, m1.ID, testutil.Date(2023, 1, 15), 400)
	testutil.CreateTestUsage(t, db, m2.ID, testutil.Date(2023, 3, 31), 250)
	testutil.CreateTestUsage(t, db, other.ID, testutil.Date(2023, 2, 1), 9999)
	// The period itself and the months after last year's window are ignored.
	testutil.CreateTestUsage(t, db, m1.ID, testutil.Date(2024, 1, 15), 7000)
	testutil.CreateTestUsage(t, db, m1.ID, testutil.Date(2023, 4, 1), 8000)

	period, err := allocation.NewPeriod(testutil.Date(2024, 1, 1), testutil.Date(2024, 3, 31))
	if err != nil {
		t.Fatalf("NewPeriod: %v", err)
	}

	got, err := NewHistoricalEstimator(db).EstimatePeriodBudget(context.Background(), []uint{m1.ID, m2.ID}, period)
	testutil.AssertNoError(t, err)
	if got.String() != "650" {
		t.Errorf("expected estimate 650, got %s", got)
	}

	got, err = NewHistoricalEstimator(db).EstimatePeriodBudget(context.Background(), nil, period)
	testutil.AssertNoError(t, err)
	if !got.IsZero() {
		t.Errorf("expected zero estimate for no meters, got %s", got)
	}
}
