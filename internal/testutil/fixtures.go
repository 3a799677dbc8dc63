package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"energybudget/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// CreateTestEnergyType creates an energy type with a unique name.
func CreateTestEnergyType(t *testing.T, db *gorm.DB) *models.EnergyType {
	t.Helper()

	et := &models.EnergyType{
		Name: fmt.Sprintf("Electricity %d", nextID()),
		Unit: "kWh",
	}
	if err := db.Create(et).Error; err != nil {
		t.Fatalf("failed to create test energy type: %v", err)
	}
	return et
}

// CreateTestMeter creates an active meter of the given energy type.
func CreateTestMeter(t *testing.T, db *gorm.DB, energyTypeID uint) *models.Meter {
	t.Helper()
	return CreateTestMeterWithStatus(t, db, energyTypeID, models.MeterStatusActive)
}

// CreateTestMeterWithStatus creates a meter in the given state.
func CreateTestMeterWithStatus(t *testing.T, db *gorm.DB, energyTypeID uint, status models.MeterStatus) *models.Meter {
	t.Helper()

	n := nextID()
	meter := &models.Meter{
		Code:         fmt.Sprintf("MTR-%04d", n),
		Name:         fmt.Sprintf("Test Meter %d", n),
		EnergyTypeID: energyTypeID,
		Status:       status,
	}
	if err := db.Create(meter).Error; err != nil {
		t.Fatalf("failed to create test meter: %v", err)
	}
	return meter
}

// CreateTestParentBudget creates a parent budget covering 2024.
func CreateTestParentBudget(t *testing.T, db *gorm.DB, energyTypeID uint, total int64) *models.AnnualBudget {
	t.Helper()

	tag := 0.9
	budget := &models.AnnualBudget{
		PeriodStart:   Date(2024, 1, 1),
		PeriodEnd:     Date(2024, 12, 31),
		TotalBudget:   decimal.NewFromInt(total),
		EfficiencyTag: &tag,
		EnergyTypeID:  energyTypeID,
		Version:       1,
	}
	if err := db.Create(budget).Error; err != nil {
		t.Fatalf("failed to create test parent budget: %v", err)
	}
	return budget
}

// CreateTestChildBudget creates a child budget for Q1 2024 under parent,
// allocating to meters with the given weights, keyed by meter ID.
func CreateTestChildBudget(t *testing.T, db *gorm.DB, parent *models.AnnualBudget, total int64, weights map[uint]float64) *models.AnnualBudget {
	t.Helper()

	budget := &models.AnnualBudget{
		ParentBudgetID: &parent.ID,
		PeriodStart:    Date(2024, 1, 1),
		PeriodEnd:      Date(2024, 3, 31),
		TotalBudget:    decimal.NewFromInt(total),
		EnergyTypeID:   parent.EnergyTypeID,
		Version:        1,
	}
	for meterID, weight := range weights {
		budget.Allocations = append(budget.Allocations, models.AnnualBudgetAllocation{MeterID: meterID, Weight: weight})
	}
	if err := db.Create(budget).Error; err != nil {
		t.Fatalf("failed to create test child budget: %v", err)
	}
	return budget
}

// CreateTestUsage records cost against a meter at the given instant.
func CreateTestUsage(t *testing.T, db *gorm.DB, meterID uint, at time.Time, cost int64) *models.UsageRecord {
	t.Helper()

	rec := &models.UsageRecord{
		MeterID:    meterID,
		RecordedAt: at.UTC(),
		Usage:      decimal.NewFromInt(cost / 1000),
		Cost:       decimal.NewFromInt(cost),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("failed to create test usage record: %v", err)
	}
	return rec
}
