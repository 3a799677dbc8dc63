package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"energybudget/internal/allocation"
	apperrors "energybudget/internal/errors"
	"energybudget/internal/models"
	appvalidator "energybudget/internal/validator"
)

// referenceReader looks up master data and budgets through GORM.
type referenceReader struct {
	db *gorm.DB
}

// NewReferenceReader creates a ReferenceReader backed by db.
func NewReferenceReader(db *gorm.DB) ReferenceReader {
	return &referenceReader{db: db}
}

func (r *referenceReader) EnergyTypeExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.EnergyType{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *referenceReader) FindBudget(ctx context.Context, id uint) (*models.AnnualBudget, error) {
	var budget models.AnnualBudget
	err := r.db.WithContext(ctx).First(&budget, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

func (r *referenceReader) FindMeters(ctx context.Context, ids []uint) (map[uint]models.Meter, error) {
	out := make(map[uint]models.Meter, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var meters []models.Meter
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&meters).Error; err != nil {
		return nil, err
	}
	for _, m := range meters {
		out[m.ID] = m
	}
	return out, nil
}

// allocationValidator enforces the period, weight and reference rules on
// candidate budgets. It collects every violation instead of stopping at the
// first one.
type allocationValidator struct {
	refs     ReferenceReader
	validate *validator.Validate
}

// NewAllocationValidator creates a new AllocationValidator.
func NewAllocationValidator(refs ReferenceReader) AllocationValidator {
	return &allocationValidator{refs: refs, validate: appvalidator.New()}
}

// fieldSet accumulates field violations for one candidate.
type fieldSet struct {
	fields []apperrors.FieldError
}

func (f *fieldSet) add(sentinel *apperrors.FieldError, field, format string, args ...any) {
	f.fields = append(f.fields, apperrors.At(sentinel, field, fmt.Sprintf(format, args...)))
}

func (f *fieldSet) err() error {
	if len(f.fields) == 0 {
		return nil
	}
	return apperrors.WithFields(f.fields)
}

// ValidateBudget checks candidate and returns the validated Parent or Child.
func (v *allocationValidator) ValidateBudget(ctx context.Context, c BudgetCandidate) (allocation.Budget, error) {
	fs := &fieldSet{}
	v.checkStruct(c, fs)
	period, periodOK := checkPeriod(c, fs)

	var (
		budget allocation.Budget
		err    error
	)
	switch allocation.Kind(c.BudgetType) {
	case allocation.KindParent:
		budget, err = v.validateParent(ctx, c, period, fs)
	case allocation.KindChild:
		budget, err = v.validateChild(ctx, c, period, periodOK, fs)
	}
	if err != nil {
		return nil, err
	}
	if err := fs.err(); err != nil {
		return nil, err
	}
	return budget, nil
}

// checkStruct applies the declarative tags on BudgetCandidate.
func (v *allocationValidator) checkStruct(c BudgetCandidate, fs *fieldSet) {
	err := v.validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return
	}
	for _, fe := range verrs {
		field := fieldPath(fe.Namespace())
		switch {
		case field == "budgetType":
			fs.add(apperrors.ErrFieldRange, field, "budgetType must be %q or %q", allocation.KindParent, allocation.KindChild)
		case strings.HasSuffix(field, ".meterId"):
			fs.add(apperrors.ErrFieldRange, field, "meterId must be a positive integer")
		case strings.HasSuffix(field, ".weight"):
			fs.add(apperrors.ErrFieldRange, field, "weight must be between 0 and 1")
		default:
			fs.add(apperrors.ErrFieldRange, field, "%s failed the %q rule", field, fe.Tag())
		}
	}
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func checkPeriod(c BudgetCandidate, fs *fieldSet) (allocation.Period, bool) {
	start, startErr := allocation.ParseDate(c.PeriodStart)
	if startErr != nil {
		fs.add(apperrors.ErrInvalidPeriod, "periodStart", "periodStart must be a date in YYYY-MM-DD form")
	}
	end, endErr := allocation.ParseDate(c.PeriodEnd)
	if endErr != nil {
		fs.add(apperrors.ErrInvalidPeriod, "periodEnd", "periodEnd must be a date in YYYY-MM-DD form")
	}
	if startErr != nil || endErr != nil {
		return allocation.Period{}, false
	}
	period, err := allocation.NewPeriod(start, end)
	if err != nil {
		fs.add(apperrors.ErrInvalidPeriod, "periodEnd", "periodEnd must be after periodStart")
		return allocation.Period{}, false
	}
	return period, true
}

func (v *allocationValidator) validateParent(ctx context.Context, c BudgetCandidate, period allocation.Period, fs *fieldSet) (allocation.Budget, error) {
	if c.TotalBudget == nil || !c.TotalBudget.IsPositive() {
		fs.add(apperrors.ErrFieldRange, "totalBudget", "totalBudget must be greater than 0")
	}
	if c.EfficiencyTag == nil || *c.EfficiencyTag <= 0 || *c.EfficiencyTag > 1 {
		fs.add(apperrors.ErrFieldRange, "efficiencyTag", "efficiencyTag must be greater than 0 and at most 1")
	}
	if len(c.Allocations) > 0 {
		fs.add(apperrors.ErrFieldRange, "allocations", "parent budgets cannot hold meter allocations")
	}
	if c.ParentBudgetID != nil {
		fs.add(apperrors.ErrFieldRange, "parentBudgetId", "parent budgets cannot reference another budget")
	}

	if c.EnergyTypeID == nil || *c.EnergyTypeID <= 0 {
		fs.add(apperrors.ErrFieldRange, "energyTypeId", "energyTypeId must be a positive integer")
	} else {
		exists, err := v.refs.EnergyTypeExists(ctx, uint(*c.EnergyTypeID))
		if err != nil {
			return nil, apperrors.Store(err)
		}
		if !exists {
			fs.add(apperrors.ErrUnknownReference, "energyTypeId", "energy type %d does not exist", *c.EnergyTypeID)
		}
	}

	if len(fs.fields) > 0 {
		return nil, nil
	}
	return allocation.Parent{
		Period:        period,
		TotalBudget:   *c.TotalBudget,
		EfficiencyTag: *c.EfficiencyTag,
		EnergyTypeID:  uint(*c.EnergyTypeID),
	}, nil
}

func (v *allocationValidator) validateChild(ctx context.Context, c BudgetCandidate, period allocation.Period, periodOK bool, fs *fieldSet) (allocation.Budget, error) {
	// energyTypeId and efficiencyTag are parent-only; a child's are ignored.
	if c.TotalBudget != nil && !c.TotalBudget.IsPositive() {
		fs.add(apperrors.ErrFieldRange, "totalBudget", "totalBudget must be greater than 0 when given")
	}

	parent, err := v.checkParent(ctx, c, period, periodOK, fs)
	if err != nil {
		return nil, err
	}
	allocations, err := v.checkAllocations(ctx, c, parent, fs)
	if err != nil {
		return nil, err
	}

	if len(fs.fields) > 0 {
		return nil, nil
	}
	var total *decimal.Decimal
	if c.TotalBudget != nil {
		t := *c.TotalBudget
		total = &t
	}
	return allocation.NewChild(parent.ID, parent.EnergyTypeID, period, total, allocations), nil
}

// checkParent resolves the referenced parent. It returns nil when the
// reference is unusable; the violation is recorded in fs.
func (v *allocationValidator) checkParent(ctx context.Context, c BudgetCandidate, period allocation.Period, periodOK bool, fs *fieldSet) (*models.AnnualBudget, error) {
	if c.ParentBudgetID == nil || *c.ParentBudgetID <= 0 {
		fs.add(apperrors.ErrMissingParent, "parentBudgetId", "child budgets need a parentBudgetId")
		return nil, nil
	}
	parent, err := v.refs.FindBudget(ctx, uint(*c.ParentBudgetID))
	if err != nil {
		return nil, apperrors.Store(err)
	}
	if parent == nil {
		fs.add(apperrors.ErrMissingParent, "parentBudgetId", "parent budget %d does not exist", *c.ParentBudgetID)
		return nil, nil
	}
	if !parent.IsParent() {
		fs.add(apperrors.ErrMissingParent, "parentBudgetId", "budget %d is a child budget and cannot be a parent", parent.ID)
		return nil, nil
	}

	if periodOK {
		pp := parent.Period()
		if period.Start.Before(pp.Start) {
			fs.add(apperrors.ErrInvalidPeriod, "periodStart", "periodStart is before the parent period %s", pp)
		}
		if period.End.After(pp.End) {
			fs.add(apperrors.ErrInvalidPeriod, "periodEnd", "periodEnd is after the parent period %s", pp)
		}
	}
	return parent, nil
}

func (v *allocationValidator) checkAllocations(ctx context.Context, c BudgetCandidate, parent *models.AnnualBudget, fs *fieldSet) ([]allocation.Allocation, error) {
	if len(c.Allocations) == 0 {
		fs.add(apperrors.ErrFieldRange, "allocations", "child budgets need at least one meter allocation")
		return nil, nil
	}

	seen := make(map[int64]int, len(c.Allocations))
	ids := make([]uint, 0, len(c.Allocations))
	weightsComplete := true
	for i, a := range c.Allocations {
		if a.Weight == nil {
			weightsComplete = false
		}
		if a.MeterID == nil || *a.MeterID <= 0 {
			continue
		}
		if first, dup := seen[*a.MeterID]; dup {
			fs.add(apperrors.ErrDuplicateMeterAllocation, fmt.Sprintf("allocations[%d].meterId", i),
				"meter %d is already allocated at allocations[%d]", *a.MeterID, first)
			continue
		}
		seen[*a.MeterID] = i
		ids = append(ids, uint(*a.MeterID))
	}

	meters, err := v.refs.FindMeters(ctx, ids)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	for _, id := range ids {
		field := fmt.Sprintf("allocations[%d].meterId", seen[int64(id)])
		m, ok := meters[id]
		switch {
		case !ok:
			fs.add(apperrors.ErrUnknownReference, field, "meter %d does not exist", id)
		case !m.Status.Allocatable():
			fs.add(apperrors.ErrFieldRange, field, "meter %d is deleted", id)
		case parent != nil && m.EnergyTypeID != parent.EnergyTypeID:
			fs.add(apperrors.ErrFieldRange, field, "meter %d measures a different energy type than parent budget %d", id, parent.ID)
		}
	}

	// weighted keeps rows without a meter so they still count toward the sum.
	weighted := make([]allocation.Allocation, 0, len(c.Allocations))
	for _, a := range c.Allocations {
		if a.Weight == nil {
			continue
		}
		var meterID uint
		if a.MeterID != nil && *a.MeterID > 0 {
			meterID = uint(*a.MeterID)
		}
		weighted = append(weighted, allocation.Allocation{MeterID: meterID, Weight: *a.Weight})
	}
	out := make([]allocation.Allocation, 0, len(weighted))
	for _, a := range weighted {
		if a.MeterID != 0 {
			out = append(out, a)
		}
	}
	sum := allocation.SumWeights(weighted)
	if weightsComplete && !allocation.WeightsBalanced(sum) {
		fs.add(apperrors.ErrWeightSumMismatch, "allocations",
			"current total is %.1f%%, must equal 100%%", sum*100)
	}
	return out, nil
}
