package services

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"energybudget/internal/allocation"
)

// historicalEstimator suggests a period budget from what the same meters
// cost over the same window one year earlier.
type historicalEstimator struct {
	db *gorm.DB
}

// NewHistoricalEstimator creates the built-in PeriodBudgetEstimator.
func NewHistoricalEstimator(db *gorm.DB) PeriodBudgetEstimator {
	return &historicalEstimator{db: db}
}

// EstimatePeriodBudget returns last year's realized cost of meterIDs over
// period, rounded to cents.
func (e *historicalEstimator) EstimatePeriodBudget(ctx context.Context, meterIDs []uint, period allocation.Period) (decimal.Decimal, error) {
	ledger, err := loadUsage(ctx, e.db, meterIDs, period.ShiftYears(-1))
	if err != nil {
		return decimal.Zero, err
	}
	return ledger.total(meterIDs).Round(2), nil
}
