package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"energybudget/internal/allocation"
	apperrors "energybudget/internal/errors"
	"energybudget/internal/models"
	"energybudget/internal/pagination"
	"energybudget/internal/testutil"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func newBudgetServiceForTest(t *testing.T, now time.Time) (BudgetServicer, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := NewBudgetService(
		NewAllocationValidator(NewReferenceReader(db)),
		NewBudgetStore(db, nil),
		fixedClock(now),
	)
	return svc, db
}

func parentCandidate(energyTypeID uint, total int64) BudgetCandidate {
	return BudgetCandidate{
		BudgetType:    "parent",
		PeriodStart:   "2024-01-01",
		PeriodEnd:     "2024-12-31",
		TotalBudget:   dec(total),
		EfficiencyTag: f64(0.9),
		EnergyTypeID:  i64(int64(energyTypeID)),
	}
}

func TestBudgetService_CreateHierarchy(t *testing.T) {
	svc, db := newBudgetServiceForTest(t, testutil.Date(2024, 2, 15))
	ctx := context.Background()
	et := testutil.CreateTestEnergyType(t, db)
	m1 := testutil.CreateTestMeter(t, db, et.ID)
	m2 := testutil.CreateTestMeter(t, db, et.ID)

	parent, err := svc.CreateBudget(ctx, parentCandidate(et.ID, 120000000))
	require.NoError(t, err)
	assert.Equal(t, allocation.KindParent, parent.BudgetType)
	assert.Equal(t, allocation.StatusActive, parent.Status)
	assert.Empty(t, parent.Allocations)

	child, err := svc.CreateBudget(ctx, BudgetCandidate{
		BudgetType:     "child",
		PeriodStart:    "2024-01-01",
		PeriodEnd:      "2024-03-31",
		TotalBudget:    dec(30000000),
		ParentBudgetID: i64(int64(parent.ID)),
		Allocations:    []AllocationInput{alloc(int64(m1.ID), 0.6), alloc(int64(m2.ID), 0.4)},
	})
	require.NoError(t, err)
	assert.Equal(t, allocation.KindChild, child.BudgetType)
	require.NotNil(t, child.ParentBudgetID)
	assert.Equal(t, parent.ID, *child.ParentBudgetID)
	assert.Equal(t, et.ID, child.EnergyTypeID)
	require.Len(t, child.Allocations, 2)
	assert.Equal(t, m1.Code, child.Allocations[0].MeterCode)
	assert.Equal(t, "2024-03-31", child.PeriodEnd)
}

func TestBudgetService_ValidationStopsBeforeStore(t *testing.T) {
	svc, db := newBudgetServiceForTest(t, testutil.Date(2024, 2, 15))
	et := testutil.CreateTestEnergyType(t, db)

	c := parentCandidate(et.ID, 1000)
	c.PeriodEnd = "2023-12-31"
	_, err := svc.CreateBudget(context.Background(), c)
	testutil.AssertFieldError(t, err, "periodEnd", apperrors.ErrInvalidPeriod.Code)

	var count int64
	db.Model(&models.AnnualBudget{}).Count(&count)
	assert.Zero(t, count)
}

func TestBudgetService_StatusIsDerivedFromClock(t *testing.T) {
	svc, db := newBudgetServiceForTest(t, testutil.Date(2025, 1, 1))
	et := testutil.CreateTestEnergyType(t, db)
	p := testutil.CreateTestParentBudget(t, db, et.ID, 1000)

	view, err := svc.GetBudget(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, allocation.StatusClosed, view.Status)
}

func TestBudgetService_CandidateRoundTripsThroughUpdate(t *testing.T) {
	svc, db := newBudgetServiceForTest(t, testutil.Date(2024, 2, 15))
	ctx := context.Background()
	et := testutil.CreateTestEnergyType(t, db)
	m1 := testutil.CreateTestMeter(t, db, et.ID)
	m2 := testutil.CreateTestMeter(t, db, et.ID)
	parent := testutil.CreateTestParentBudget(t, db, et.ID, 120000000)
	child := testutil.CreateTestChildBudget(t, db, parent, 30000000, map[uint]float64{m1.ID: 1})

	candidate, err := svc.CandidateFor(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "child", candidate.BudgetType)
	require.NotNil(t, candidate.ParentBudgetID)
	assert.Equal(t, int64(parent.ID), *candidate.ParentBudgetID)
	assert.Nil(t, candidate.EnergyTypeID)

	// A partial update touching only the allocations.
	candidate.Allocations = []AllocationInput{alloc(int64(m1.ID), 0.5), alloc(int64(m2.ID), 0.5)}
	view, err := svc.UpdateBudget(ctx, child.ID, *candidate)
	require.NoError(t, err)
	assert.Len(t, view.Allocations, 2)
	assert.True(t, view.TotalBudget.Equal(decimal.NewFromInt(30000000)))

	// Weights that no longer balance are rejected as a whole.
	candidate.Allocations[1] = alloc(int64(m2.ID), 0.4)
	_, err = svc.UpdateBudget(ctx, child.ID, *candidate)
	testutil.AssertFieldError(t, err, "allocations", apperrors.ErrWeightSumMismatch.Code)

	stored, err := svc.CandidateFor(ctx, parent.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EfficiencyTag)
	assert.InDelta(t, 0.9, *stored.EfficiencyTag, 1e-9)
	assert.Empty(t, stored.Allocations)

	_, err = svc.CandidateFor(ctx, 9999)
	testutil.AssertAppError(t, err, apperrors.ErrBudgetNotFound.Code)
}

func TestBudgetService_ListAndDelete(t *testing.T) {
	svc, db := newBudgetServiceForTest(t, testutil.Date(2024, 2, 15))
	ctx := context.Background()
	et := testutil.CreateTestEnergyType(t, db)
	m := testutil.CreateTestMeter(t, db, et.ID)
	parent := testutil.CreateTestParentBudget(t, db, et.ID, 1000)
	testutil.CreateTestChildBudget(t, db, parent, 500, map[uint]float64{m.ID: 1})

	page, err := svc.ListBudgets(ctx, BudgetFilter{ParentID: &parent.ID}, pagination.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalItems)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, allocation.KindChild, page.Data[0].BudgetType)

	err = svc.DeleteBudget(ctx, parent.ID, false)
	testutil.AssertAppError(t, err, apperrors.ErrHasDependentChildren.Code)
	require.NoError(t, svc.DeleteBudget(ctx, parent.ID, true))

	page, err = svc.ListBudgets(ctx, BudgetFilter{}, pagination.PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, page.TotalItems)
}
