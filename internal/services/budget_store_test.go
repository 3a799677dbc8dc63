package services

import (
	"context"
	"errors"
	"sync"
	"testing"

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

type storeFixture struct {
	db     *gorm.DB
	store  BudgetStorer
	parent *models.AnnualBudget
	meterA *models.Meter
	meterB *models.Meter
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	et := testutil.CreateTestEnergyType(t, db)
	return &storeFixture{
		db:     db,
		store:  NewBudgetStore(db, nil),
		parent: testutil.CreateTestParentBudget(t, db, et.ID, 120000000),
		meterA: testutil.CreateTestMeter(t, db, et.ID),
		meterB: testutil.CreateTestMeter(t, db, et.ID),
	}
}

func (f *storeFixture) child(total *decimal.Decimal, start, end string) allocation.Child {
	s, _ := allocation.ParseDate(start)
	e, _ := allocation.ParseDate(end)
	return allocation.NewChild(f.parent.ID, f.parent.EnergyTypeID, allocation.Period{Start: s, End: e}, total,
		[]allocation.Allocation{{MeterID: f.meterA.ID, Weight: 0.6}, {MeterID: f.meterB.ID, Weight: 0.4}})
}

func TestBudgetStore_CreateParent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	et := testutil.CreateTestEnergyType(t, db)
	store := NewBudgetStore(db, nil)

	row, err := store.CreateBudget(context.Background(), allocation.Parent{
		Period:        allocation.Period{Start: testutil.Date(2024, 1, 1), End: testutil.Date(2024, 12, 31)},
		TotalBudget:   decimal.NewFromInt(120000000),
		EfficiencyTag: 0.9,
		EnergyTypeID:  et.ID,
	})
	require.NoError(t, err)
	assert.True(t, row.IsParent())
	assert.Equal(t, int64(1), row.Version)
	assert.Equal(t, "2024-01-01..2024-12-31", row.Period().String())
	assert.True(t, row.TotalBudget.Equal(decimal.NewFromInt(120000000)))
}

func TestBudgetStore_RejectsSingleDayPeriodRow(t *testing.T) {
	f := newStoreFixture(t)

	row := models.AnnualBudget{
		PeriodStart:  testutil.Date(2024, 5, 1),
		PeriodEnd:    testutil.Date(2024, 5, 1),
		TotalBudget:  decimal.NewFromInt(1000),
		EnergyTypeID: f.parent.EnergyTypeID,
	}
	assert.Error(t, f.db.Create(&row).Error, "a period ending on its start day must not be stored")

	row.ID = 0
	row.PeriodEnd = testutil.Date(2024, 5, 2)
	assert.NoError(t, f.db.Create(&row).Error)
}

func TestBudgetStore_CreateChild(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	row, err := f.store.CreateBudget(ctx, f.child(dec(30000000), "2024-01-01", "2024-03-31"))
	require.NoError(t, err)

	assert.False(t, row.IsParent())
	assert.Equal(t, f.parent.EnergyTypeID, row.EnergyTypeID)
	require.Len(t, row.Allocations, 2)
	assert.Equal(t, f.meterA.ID, row.Allocations[0].MeterID)
	assert.InDelta(t, 0.6, row.Allocations[0].Weight, 1e-9)
	require.NotNil(t, row.Allocations[0].Meter)

	var parent models.AnnualBudget
	require.NoError(t, f.db.First(&parent, f.parent.ID).Error)
	assert.Equal(t, f.parent.Version+1, parent.Version, "parent version bumped on child write")
}

func TestBudgetStore_ChildWithoutTotalTakesRemainingCapacity(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateBudget(ctx, f.child(dec(30000000), "2024-01-01", "2024-03-31"))
	require.NoError(t, err)

	row, err := f.store.CreateBudget(ctx, f.child(nil, "2024-04-01", "2024-12-31"))
	require.NoError(t, err)
	assert.True(t, row.TotalBudget.Equal(decimal.NewFromInt(90000000)), row.TotalBudget.String())

	_, err = f.store.CreateBudget(ctx, f.child(nil, "2024-04-01", "2024-06-30"))
	testutil.AssertAppError(t, err, apperrors.ErrCapacityExceeded.Code)
}

func TestBudgetStore_CapacityExceeded(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateBudget(ctx, f.child(dec(100000000), "2024-01-01", "2024-06-30"))
	require.NoError(t, err)

	_, err = f.store.CreateBudget(ctx, f.child(dec(30000000), "2024-07-01", "2024-12-31"))
	testutil.AssertAppError(t, err, apperrors.ErrCapacityExceeded.Code)
	assert.Contains(t, err.Error(), "20000000.00 still available")

	var count int64
	f.db.Model(&models.AnnualBudgetAllocation{}).Count(&count)
	assert.Equal(t, int64(2), count, "rejected child leaves no allocation rows")
}

func TestBudgetStore_ConcurrentChildrenCannotOverAllocate(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	// Each fits alone; together they exceed 120000000.
	requests := []allocation.Child{
		f.child(dec(70000000), "2024-01-01", "2024-06-30"),
		f.child(dec(60000000), "2024-07-01", "2024-12-31"),
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(requests))
	)
	start := make(chan struct{})
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.store.CreateBudget(ctx, requests[i])
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperrors.ErrCapacityExceeded):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	committed, err := committedToChildren(f.db, f.parent.ID, 0)
	require.NoError(t, err)
	assert.True(t, committed.LessThanOrEqual(f.parent.TotalBudget))
}

func TestBudgetStore_StaleVersionIsRejected(t *testing.T) {
	f := newStoreFixture(t)

	stale := *f.parent
	require.NoError(t, f.db.Model(&models.AnnualBudget{}).Where("id = ?", f.parent.ID).
		Update("version", gorm.Expr("version + 1")).Error)

	err := bumpVersion(f.db, &stale)
	testutil.AssertAppError(t, err, apperrors.ErrConcurrentModification.Code)
}

func TestBudgetStore_UpdateChildReplacesAllocations(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	row, err := f.store.CreateBudget(ctx, f.child(dec(30000000), "2024-01-01", "2024-03-31"))
	require.NoError(t, err)

	update := allocation.NewChild(f.parent.ID, f.parent.EnergyTypeID, row.Period(), dec(120000000),
		[]allocation.Allocation{{MeterID: f.meterB.ID, Weight: 1}})
	updated, err := f.store.UpdateBudget(ctx, row.ID, update)
	require.NoError(t, err, "a child may grow into its own previous share")

	require.Len(t, updated.Allocations, 1)
	assert.Equal(t, f.meterB.ID, updated.Allocations[0].MeterID)
	assert.True(t, updated.TotalBudget.Equal(decimal.NewFromInt(120000000)))

	var count int64
	f.db.Model(&models.AnnualBudgetAllocation{}).Where("budget_id = ?", row.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestBudgetStore_UpdateRejectsKindAndParentChanges(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	row, err := f.store.CreateBudget(ctx, f.child(dec(1000), "2024-01-01", "2024-03-31"))
	require.NoError(t, err)

	_, err = f.store.UpdateBudget(ctx, row.ID, allocation.Parent{
		Period: row.Period(), TotalBudget: decimal.NewFromInt(1000), EfficiencyTag: 1, EnergyTypeID: f.parent.EnergyTypeID,
	})
	testutil.AssertAppError(t, err, apperrors.ErrBudgetKindChange.Code)

	other := testutil.CreateTestParentBudget(t, f.db, f.parent.EnergyTypeID, 5000)
	moved := allocation.NewChild(other.ID, other.EnergyTypeID, row.Period(), dec(1000), row.AllocationWeights())
	_, err = f.store.UpdateBudget(ctx, row.ID, moved)
	testutil.AssertAppError(t, err, apperrors.ErrParentChange.Code)
}

func TestBudgetStore_UpdateParentPolicy(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateBudget(ctx, f.child(dec(30000000), "2024-01-01", "2024-03-31"))
	require.NoError(t, err)

	base := allocation.Parent{
		Period:        f.parent.Period(),
		TotalBudget:   f.parent.TotalBudget,
		EfficiencyTag: 0.8,
		EnergyTypeID:  f.parent.EnergyTypeID,
	}

	t.Run("below_allocated", func(t *testing.T) {
		p := base
		p.TotalBudget = decimal.NewFromInt(20000000)
		_, err := f.store.UpdateBudget(ctx, f.parent.ID, p)
		testutil.AssertAppError(t, err, apperrors.ErrCapacityExceeded.Code)
	})

	t.Run("energy_type_locked", func(t *testing.T) {
		other := testutil.CreateTestEnergyType(t, f.db)
		p := base
		p.EnergyTypeID = other.ID
		_, err := f.store.UpdateBudget(ctx, f.parent.ID, p)
		testutil.AssertAppError(t, err, apperrors.ErrEnergyTypeLocked.Code)
	})

	t.Run("period_excludes_children", func(t *testing.T) {
		p := base
		p.Period = allocation.Period{Start: testutil.Date(2024, 2, 1), End: testutil.Date(2024, 12, 31)}
		_, err := f.store.UpdateBudget(ctx, f.parent.ID, p)
		testutil.AssertAppError(t, err, apperrors.ErrChildOutsidePeriod.Code)
	})

	t.Run("allowed_down_to_allocated", func(t *testing.T) {
		p := base
		p.TotalBudget = decimal.NewFromInt(30000000)
		row, err := f.store.UpdateBudget(ctx, f.parent.ID, p)
		require.NoError(t, err)
		assert.True(t, row.TotalBudget.Equal(decimal.NewFromInt(30000000)))
		require.NotNil(t, row.EfficiencyTag)
		assert.InDelta(t, 0.8, *row.EfficiencyTag, 1e-9)
	})
}

func TestBudgetStore_Delete(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	child, err := f.store.CreateBudget(ctx, f.child(dec(1000), "2024-01-01", "2024-03-31"))
	require.NoError(t, err)

	err = f.store.DeleteBudget(ctx, f.parent.ID, false)
	testutil.AssertAppError(t, err, apperrors.ErrHasDependentChildren.Code)

	require.NoError(t, f.store.DeleteBudget(ctx, f.parent.ID, true))

	_, err = f.store.GetByID(ctx, f.parent.ID)
	testutil.AssertAppError(t, err, apperrors.ErrBudgetNotFound.Code)
	_, err = f.store.GetByID(ctx, child.ID)
	testutil.AssertAppError(t, err, apperrors.ErrBudgetNotFound.Code)

	var count int64
	f.db.Model(&models.AnnualBudgetAllocation{}).Count(&count)
	assert.Zero(t, count)
}

func TestBudgetStore_DeleteChildFreesCapacity(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	child, err := f.store.CreateBudget(ctx, f.child(nil, "2024-01-01", "2024-03-31"))
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteBudget(ctx, child.ID, false))

	_, err = f.store.CreateBudget(ctx, f.child(dec(120000000), "2024-01-01", "2024-12-31"))
	require.NoError(t, err)
}

func TestBudgetStore_Queries(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	other := testutil.CreateTestEnergyType(t, f.db)
	testutil.CreateTestParentBudget(t, f.db, other.ID, 5000)
	c1, err := f.store.CreateBudget(ctx, f.child(dec(1000), "2024-01-01", "2024-03-31"))
	require.NoError(t, err)
	_, err = f.store.CreateBudget(ctx, f.child(dec(1000), "2024-04-01", "2024-06-30"))
	require.NoError(t, err)

	parents, err := f.store.GetParents(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, parents, 2)

	parents, err = f.store.GetParents(ctx, &other.ID)
	require.NoError(t, err)
	assert.Len(t, parents, 1)

	children, err := f.store.GetChildren(ctx, &f.parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, c1.ID, children[0].ID)
	assert.Len(t, children[0].Allocations, 2)

	kind := allocation.KindChild
	page, err := f.store.ListBudgets(ctx, BudgetFilter{Kind: &kind}, pagination.PageRequest{Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Data, 1)

	page, err = f.store.ListBudgets(ctx, BudgetFilter{EnergyTypeID: &other.ID}, pagination.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalItems)

	_, err = f.store.GetByID(ctx, 9999)
	testutil.AssertAppError(t, err, apperrors.ErrBudgetNotFound.Code)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlock := k.Lock(1)
	acquired := make(chan struct{})
	released := make(chan struct{})
	go func() {
		u := k.Lock(1)
		close(acquired)
		u()
		close(released)
	}()

	otherUnlock := k.Lock(2) // different key does not block
	otherUnlock()

	select {
	case <-acquired:
		t.Fatal("second Lock(1) acquired while held")
	default:
	}
	unlock()
	<-acquired
	<-released

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}
