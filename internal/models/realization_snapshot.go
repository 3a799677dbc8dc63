package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RealizationSnapshot is the last persisted recalculation of one budget.
// A snapshot row is always replaced whole.
type RealizationSnapshot struct {
	BudgetID              uint            `gorm:"primaryKey;autoIncrement:false" json:"budgetId"`
	RunID                 string          `gorm:"size:36;not null" json:"runId"`
	ComputedAt            time.Time       `gorm:"not null" json:"computedAt"`
	AllocatedBudget       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"allocatedBudget"`
	TotalRealization      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"totalRealization"`
	RemainingBudget       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"remainingBudget"`
	RealizationPercentage *float64        `json:"realizationPercentage"`
	Detail                datatypes.JSON  `json:"detail"`
}
