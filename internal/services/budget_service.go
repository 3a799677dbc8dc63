package services

import (
	"context"
	"time"

	"energybudget/internal/allocation"
	"energybudget/internal/models"
	"energybudget/internal/pagination"
)

// budgetService runs candidates through the AllocationValidator before they
// reach the store, and renders stored budgets for the API.
type budgetService struct {
	validator AllocationValidator
	store     BudgetStorer
	clock     Clock
}

// NewBudgetService creates a new BudgetServicer.
func NewBudgetService(validator AllocationValidator, store BudgetStorer, clock Clock) BudgetServicer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &budgetService{validator: validator, store: store, clock: clock}
}

// CreateBudget validates and persists a new budget.
func (s *budgetService) CreateBudget(ctx context.Context, candidate BudgetCandidate) (*BudgetView, error) {
	budget, err := s.validator.ValidateBudget(ctx, candidate)
	if err != nil {
		return nil, err
	}
	row, err := s.store.CreateBudget(ctx, budget)
	if err != nil {
		return nil, err
	}
	return newBudgetView(row, s.clock.Now()), nil
}

// CandidateFor renders budget id as the candidate that would recreate it.
func (s *budgetService) CandidateFor(ctx context.Context, id uint) (*BudgetCandidate, error) {
	row, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return candidateFromRow(row), nil
}

// UpdateBudget validates candidate as a whole and replaces budget id with it.
func (s *budgetService) UpdateBudget(ctx context.Context, id uint, candidate BudgetCandidate) (*BudgetView, error) {
	budget, err := s.validator.ValidateBudget(ctx, candidate)
	if err != nil {
		return nil, err
	}
	row, err := s.store.UpdateBudget(ctx, id, budget)
	if err != nil {
		return nil, err
	}
	return newBudgetView(row, s.clock.Now()), nil
}

// DeleteBudget removes budget id; see BudgetStorer.DeleteBudget.
func (s *budgetService) DeleteBudget(ctx context.Context, id uint, cascade bool) error {
	return s.store.DeleteBudget(ctx, id, cascade)
}

// GetBudget returns budget id without realization figures.
func (s *budgetService) GetBudget(ctx context.Context, id uint) (*BudgetView, error) {
	row, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return newBudgetView(row, s.clock.Now()), nil
}

// ListBudgets returns a page of budgets matching filter.
func (s *budgetService) ListBudgets(ctx context.Context, filter BudgetFilter, page pagination.PageRequest) (*pagination.PageResponse[BudgetView], error) {
	rows, err := s.store.ListBudgets(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	result := pagination.Map(*rows, func(b *models.AnnualBudget) BudgetView {
		return *newBudgetView(b, now)
	})
	return &result, nil
}

func newBudgetView(b *models.AnnualBudget, now time.Time) *BudgetView {
	period := b.Period()
	view := &BudgetView{
		ID:             b.ID,
		BudgetType:     b.Kind(),
		ParentBudgetID: b.ParentBudgetID,
		PeriodStart:    period.Start.Format(allocation.DateLayout),
		PeriodEnd:      period.End.Format(allocation.DateLayout),
		TotalBudget:    b.TotalBudget,
		EfficiencyTag:  b.EfficiencyTag,
		EnergyTypeID:   b.EnergyTypeID,
		Status:         allocation.StatusAt(period, now),
		Version:        b.Version,
		Allocations:    make([]AllocationView, len(b.Allocations)),
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
	for i, a := range b.Allocations {
		view.Allocations[i] = AllocationView{ID: a.ID, MeterID: a.MeterID, Weight: a.Weight}
		if a.Meter != nil {
			view.Allocations[i].MeterCode = a.Meter.Code
			view.Allocations[i].MeterName = a.Meter.Name
		}
	}
	return view
}

func candidateFromRow(b *models.AnnualBudget) *BudgetCandidate {
	period := b.Period()
	total := b.TotalBudget
	c := &BudgetCandidate{
		BudgetType:  string(b.Kind()),
		PeriodStart: period.Start.Format(allocation.DateLayout),
		PeriodEnd:   period.End.Format(allocation.DateLayout),
		TotalBudget: &total,
	}
	if b.IsParent() {
		energyTypeID := int64(b.EnergyTypeID)
		c.EnergyTypeID = &energyTypeID
		if b.EfficiencyTag != nil {
			tag := *b.EfficiencyTag
			c.EfficiencyTag = &tag
		}
		return c
	}

	parentID := int64(*b.ParentBudgetID)
	c.ParentBudgetID = &parentID
	c.Allocations = make([]AllocationInput, len(b.Allocations))
	for i, a := range b.Allocations {
		meterID, weight := int64(a.MeterID), a.Weight
		c.Allocations[i] = AllocationInput{MeterID: &meterID, Weight: &weight}
	}
	return c
}
