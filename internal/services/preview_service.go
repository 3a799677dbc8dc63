package services

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"energybudget/internal/allocation"
	apperrors "energybudget/internal/errors"
	"energybudget/internal/logger"
	"energybudget/internal/metrics"
	"energybudget/internal/models"
)

// previewService answers "what would this budget look like" questions. It
// only ever reads.
type previewService struct {
	db        *gorm.DB
	store     BudgetStorer
	refs      ReferenceReader
	catalog   MasterDataServicer
	estimator PeriodBudgetEstimator
	metrics   *metrics.Metrics
}

// NewPreviewService creates a new PreviewServicer. estimator and m may be nil;
// without an estimator no suggested budget is offered.
func NewPreviewService(db *gorm.DB, store BudgetStorer, refs ReferenceReader, catalog MasterDataServicer, estimator PeriodBudgetEstimator, m *metrics.Metrics) PreviewServicer {
	return &previewService{
		db:        db,
		store:     store,
		refs:      refs,
		catalog:   catalog,
		estimator: estimator,
		metrics:   m,
	}
}

// AvailableCapacity reports how much of a parent budget its children have
// not yet claimed. A negative figure is returned as-is with a warning.
func (s *previewService) AvailableCapacity(ctx context.Context, parentBudgetID uint) (*CapacityView, error) {
	parent, err := s.loadParent(ctx, parentBudgetID)
	if err != nil {
		return nil, err
	}
	return s.capacityOf(ctx, parent)
}

func (s *previewService) loadParent(ctx context.Context, id uint) (*models.AnnualBudget, error) {
	parent, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !parent.IsParent() {
		return nil, apperrors.ErrNotAParent
	}
	return parent, nil
}

func (s *previewService) capacityOf(ctx context.Context, parent *models.AnnualBudget) (*CapacityView, error) {
	children, err := s.store.GetChildren(ctx, &parent.ID)
	if err != nil {
		return nil, err
	}

	committed := decimal.Zero
	for i := range children {
		committed = committed.Add(children[i].TotalBudget)
	}
	view := &CapacityView{
		ParentBudgetID:               parent.ID,
		ParentTotalBudget:            parent.TotalBudget,
		TotalAllocatedToChildren:     committed,
		AvailableBudgetForNextPeriod: parent.TotalBudget.Sub(committed),
		ChildCount:                   len(children),
	}
	if view.AvailableBudgetForNextPeriod.IsNegative() {
		view.IntegrityWarning = fmt.Sprintf(
			"children of budget %d are allocated %s, which exceeds its total of %s by %s",
			parent.ID, committed.StringFixed(2), parent.TotalBudget.StringFixed(2),
			view.AvailableBudgetForNextPeriod.Neg().StringFixed(2))
		s.metrics.RecordIntegrityWarning()
		logger.Get().Warnw("parent budget over-allocated",
			"parent_budget_id", parent.ID,
			"parent_total", parent.TotalBudget.String(),
			"committed", committed.String(),
			"child_count", len(children),
		)
	}
	return view, nil
}

// PreviewAllocation prorates a proposed budget over its months and splits it
// across meters. Weights that do not add up are reflected, not rejected.
func (s *previewService) PreviewAllocation(ctx context.Context, req PreviewRequest) (*Preview, error) {
	period, err := previewPeriod(req)
	if err != nil {
		return nil, err
	}

	var (
		parent   *models.AnnualBudget
		saved    *models.AnnualBudget
		capacity *CapacityView
	)
	if req.BudgetID != nil {
		if saved, err = s.store.GetByID(ctx, *req.BudgetID); err != nil {
			return nil, err
		}
	}
	if req.ParentBudgetID != nil {
		if parent, err = s.loadParent(ctx, *req.ParentBudgetID); err != nil {
			return nil, err
		}
		if capacity, err = s.capacityOf(ctx, parent); err != nil {
			return nil, err
		}
	}

	var total decimal.Decimal
	switch {
	case req.TotalBudget != nil:
		total = *req.TotalBudget
	case saved != nil:
		total = saved.TotalBudget
	case capacity != nil:
		total = decimal.Max(capacity.AvailableBudgetForNextPeriod, decimal.Zero)
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "totalBudget is required when no parentBudgetId is given")
	}

	weights, suggested, err := s.previewWeights(ctx, req, saved, parent, period)
	if err != nil {
		return nil, err
	}

	preview := &Preview{
		PeriodStart:            period.Start.Format(allocation.DateLayout),
		PeriodEnd:              period.End.Format(allocation.DateLayout),
		Months:                 allocation.MonthsSpanned(period),
		TotalBudget:            total,
		BudgetPerMonth:         allocation.PerMonth(total, allocation.MonthsSpanned(period)),
		MonthlyBreakdown:       []MonthShareView{},
		WeightTotal:            math.Round(allocation.SumWeights(weights)*1000) / 10,
		WeightsSuggested:       suggested,
		MeterAllocationPreview: []MeterPreview{},
		AvailableCapacity:      capacity,
	}
	for _, share := range allocation.SplitMonthly(total, period) {
		preview.MonthlyBreakdown = append(preview.MonthlyBreakdown, MonthShareView{
			Month:  share.Month.Format(monthLayout),
			Amount: share.Amount,
		})
	}

	meterIDs := distinctMeters(weights)
	meters, err := s.refs.FindMeters(ctx, meterIDs)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	for _, w := range weights {
		preview.MeterAllocationPreview = append(preview.MeterAllocationPreview, MeterPreview{
			MeterID:         w.MeterID,
			MeterName:       meters[w.MeterID].Name,
			Weight:          w.Weight,
			AllocatedBudget: allocation.AllocatedAmount(total, w.Weight).Round(2),
		})
	}

	if parent != nil && s.estimator != nil {
		preview.SuggestedBudgetForPeriod, err = s.suggestBudget(ctx, parent, meterIDs, period)
		if err != nil {
			return nil, err
		}
	}
	return preview, nil
}

func previewPeriod(req PreviewRequest) (allocation.Period, error) {
	var fields []apperrors.FieldError
	start, err := allocation.ParseDate(req.PeriodStart)
	if err != nil {
		fields = append(fields, apperrors.At(apperrors.ErrInvalidPeriod, "periodStart", "periodStart must be a date in YYYY-MM-DD form"))
	}
	end, err := allocation.ParseDate(req.PeriodEnd)
	if err != nil {
		fields = append(fields, apperrors.At(apperrors.ErrInvalidPeriod, "periodEnd", "periodEnd must be a date in YYYY-MM-DD form"))
	}
	if len(fields) > 0 {
		return allocation.Period{}, apperrors.WithFields(fields)
	}
	period, err := allocation.NewPeriod(start, end)
	if err != nil {
		return allocation.Period{}, apperrors.WithFields([]apperrors.FieldError{
			apperrors.At(apperrors.ErrInvalidPeriod, "periodEnd", "periodEnd must be after periodStart"),
		})
	}
	return period, nil
}

// previewWeights picks the weights to preview: those in the request, else
// the saved ones of the budget being edited, else a suggestion for the
// parent's energy type.
func (s *previewService) previewWeights(ctx context.Context, req PreviewRequest, saved, parent *models.AnnualBudget, period allocation.Period) ([]allocation.Allocation, bool, error) {
	if len(req.Allocations) > 0 {
		out := make([]allocation.Allocation, len(req.Allocations))
		for i, a := range req.Allocations {
			out[i] = allocation.Allocation{MeterID: a.MeterID, Weight: a.Weight}
		}
		return out, false, nil
	}
	if saved != nil {
		return saved.AllocationWeights(), false, nil
	}
	if parent == nil {
		return nil, false, nil
	}
	weights, err := s.suggestWeights(ctx, parent.EnergyTypeID, period)
	return weights, true, err
}

// suggestWeights splits by each allocatable meter's share of last year's
// cost over the same window, or evenly when there is no history.
func (s *previewService) suggestWeights(ctx context.Context, energyTypeID uint, period allocation.Period) ([]allocation.Allocation, error) {
	candidates, err := s.catalog.ListMeters(ctx, MeterFilter{EnergyTypeID: &energyTypeID})
	if err != nil {
		return nil, err
	}
	var ids []uint
	for _, m := range candidates {
		if m.Status.Allocatable() {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ledger, err := loadUsage(ctx, s.db, ids, period.ShiftYears(-1))
	if err != nil {
		return nil, err
	}
	history := ledger.total(ids)

	weights := make([]allocation.Allocation, len(ids))
	for i, id := range ids {
		w := 1 / float64(len(ids))
		if history.IsPositive() {
			w = ledger.meterTotal(id).Div(history).InexactFloat64()
		}
		weights[i] = allocation.Allocation{MeterID: id, Weight: w}
	}
	return weights, nil
}

// suggestBudget asks the estimator for a period budget. An estimator failure
// only drops the suggestion.
func (s *previewService) suggestBudget(ctx context.Context, parent *models.AnnualBudget, meterIDs []uint, period allocation.Period) (*decimal.Decimal, error) {
	if len(meterIDs) == 0 {
		meters, err := s.catalog.ListMeters(ctx, MeterFilter{EnergyTypeID: &parent.EnergyTypeID})
		if err != nil {
			return nil, err
		}
		for _, m := range meters {
			if m.Status.Allocatable() {
				meterIDs = append(meterIDs, m.ID)
			}
		}
	}
	if len(meterIDs) == 0 {
		return nil, nil
	}

	estimate, err := s.estimator.EstimatePeriodBudget(ctx, meterIDs, period)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Store(ctx.Err())
		}
		logger.Get().Warnw("period budget estimate unavailable",
			"parent_budget_id", parent.ID,
			"period", period.String(),
			"error", err,
		)
		return nil, nil
	}
	return &estimate, nil
}

func distinctMeters(weights []allocation.Allocation) []uint {
	seen := make(map[uint]bool, len(weights))
	ids := make([]uint, 0, len(weights))
	for _, w := range weights {
		if !seen[w.MeterID] {
			seen[w.MeterID] = true
			ids = append(ids, w.MeterID)
		}
	}
	return ids
}
