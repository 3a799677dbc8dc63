package models

import (
	"time"

	"energybudget/internal/allocation"

	"github.com/shopspring/decimal"
)

// AnnualBudget is either a parent budget (ParentBudgetID nil) or a child
// budget under one parent. Children inherit EnergyTypeID from their parent.
type AnnualBudget struct {
	Base
	ParentBudgetID *uint           `gorm:"index" json:"parentBudgetId"`
	PeriodStart    time.Time       `gorm:"type:date;not null" json:"-"`
	PeriodEnd      time.Time       `gorm:"type:date;not null;check:chk_annual_budgets_period_order,period_start < period_end" json:"-"`
	TotalBudget    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"totalBudget"`
	EfficiencyTag  *float64        `json:"efficiencyTag"`
	EnergyTypeID   uint            `gorm:"not null;index" json:"energyTypeId"`
	// Version is bumped on every write that changes a parent's committed capacity.
	Version int64 `gorm:"not null;default:1" json:"version"`

	EnergyType  *EnergyType              `gorm:"foreignKey:EnergyTypeID" json:"energyType,omitempty"`
	Allocations []AnnualBudgetAllocation `gorm:"foreignKey:BudgetID" json:"allocations,omitempty"`
}

// IsParent reports whether the budget is a root of the hierarchy.
func (b *AnnualBudget) IsParent() bool {
	return b.ParentBudgetID == nil
}

// Kind returns the budget's place in the hierarchy.
func (b *AnnualBudget) Kind() allocation.Kind {
	if b.IsParent() {
		return allocation.KindParent
	}
	return allocation.KindChild
}

// Period returns the budget's date range.
func (b *AnnualBudget) Period() allocation.Period {
	return allocation.Period{Start: b.PeriodStart.UTC(), End: b.PeriodEnd.UTC()}
}

// AllocationWeights converts the stored allocation rows to their pure form.
func (b *AnnualBudget) AllocationWeights() []allocation.Allocation {
	out := make([]allocation.Allocation, len(b.Allocations))
	for i, a := range b.Allocations {
		out[i] = allocation.Allocation{MeterID: a.MeterID, Weight: a.Weight}
	}
	return out
}

// AnnualBudgetAllocation is the weighted link between a child budget and a meter.
type AnnualBudgetAllocation struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	BudgetID uint    `gorm:"not null;uniqueIndex:idx_allocation_budget_meter" json:"budgetId"`
	MeterID  uint    `gorm:"not null;uniqueIndex:idx_allocation_budget_meter" json:"meterId"`
	Weight   float64 `gorm:"not null" json:"weight"`

	Meter *Meter `gorm:"foreignKey:MeterID" json:"meter,omitempty"`
}
