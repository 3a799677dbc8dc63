package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"energybudget/internal/allocation"
	apperrors "energybudget/internal/errors"
	"energybudget/internal/logger"
	"energybudget/internal/metrics"
	"energybudget/internal/models"
	"energybudget/internal/pagination"
)

// budgetStore persists budgets through GORM. Writes that change how much of
// a parent is committed run under a per-parent lock, take a row lock on the
// parent where the dialect supports it, and bump the parent's version so a
// writer in another process that raced past both is detected.
type budgetStore struct {
	db      *gorm.DB
	locks   *keyedMutex
	metrics *metrics.Metrics
}

// NewBudgetStore creates a new BudgetStorer. m may be nil.
func NewBudgetStore(db *gorm.DB, m *metrics.Metrics) BudgetStorer {
	return &budgetStore{db: db, locks: newKeyedMutex(), metrics: m}
}

// CreateBudget inserts a parent, or a child together with its allocations.
func (s *budgetStore) CreateBudget(ctx context.Context, budget allocation.Budget) (*models.AnnualBudget, error) {
	switch b := budget.(type) {
	case allocation.Parent:
		row := parentRow(b)
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, apperrors.Store(err)
		}
		return s.GetByID(ctx, row.ID)
	case allocation.Child:
		unlock := s.locks.Lock(b.ParentID)
		defer unlock()

		var id uint
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			parent, err := s.lockParent(tx, b.ParentID)
			if err != nil {
				return err
			}
			total, err := s.reserve(tx, parent, 0, b.TotalBudget)
			if err != nil {
				return err
			}

			row := childRow(b, total)
			if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
				return apperrors.Store(err)
			}
			if err := insertAllocations(tx, row.ID, b.Allocations); err != nil {
				return err
			}
			id = row.ID
			return bumpVersion(tx, parent)
		})
		if err != nil {
			return nil, err
		}
		return s.GetByID(ctx, id)
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("unsupported budget %T", budget))
	}
}

// UpdateBudget replaces the mutable fields of budget id. A child's whole
// allocation set is replaced.
func (s *budgetStore) UpdateBudget(ctx context.Context, id uint, budget allocation.Budget) (*models.AnnualBudget, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Kind() != budget.Kind() {
		return nil, apperrors.ErrBudgetKindChange
	}

	switch b := budget.(type) {
	case allocation.Parent:
		err = s.updateParent(ctx, id, b)
	case allocation.Child:
		if *existing.ParentBudgetID != b.ParentID {
			return nil, apperrors.ErrParentChange
		}
		err = s.updateChild(ctx, id, b)
	}
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *budgetStore) updateParent(ctx context.Context, id uint, b allocation.Parent) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent, err := s.lockParent(tx, id)
		if err != nil {
			return err
		}

		var children []models.AnnualBudget
		if err := tx.Where("parent_budget_id = ?", id).Find(&children).Error; err != nil {
			return apperrors.Store(err)
		}
		if len(children) > 0 && b.EnergyTypeID != parent.EnergyTypeID {
			return apperrors.ErrEnergyTypeLocked
		}

		committed := decimal.Zero
		for i := range children {
			committed = committed.Add(children[i].TotalBudget)
			if !b.Period.Contains(children[i].Period()) {
				return apperrors.WithMessage(apperrors.ErrChildOutsidePeriod, fmt.Sprintf(
					"child budget %d (%s) would fall outside the new period %s",
					children[i].ID, children[i].Period(), b.Period))
			}
		}
		if b.TotalBudget.LessThan(committed) {
			s.metrics.RecordConflict("parent_below_allocated")
			return apperrors.WithMessage(apperrors.ErrCapacityExceeded, fmt.Sprintf(
				"totalBudget %s is below the %s already allocated to %d child budget(s)",
				b.TotalBudget.StringFixed(2), committed.StringFixed(2), len(children)))
		}

		res := tx.Model(&models.AnnualBudget{}).
			Where("id = ? AND version = ?", id, parent.Version).
			Updates(map[string]interface{}{
				"period_start":   b.Period.Start,
				"period_end":     b.Period.End,
				"total_budget":   b.TotalBudget,
				"efficiency_tag": b.EfficiencyTag,
				"energy_type_id": b.EnergyTypeID,
				"version":        gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return apperrors.Store(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrConcurrentModification
		}
		return nil
	})
}

func (s *budgetStore) updateChild(ctx context.Context, id uint, b allocation.Child) error {
	unlock := s.locks.Lock(b.ParentID)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent, err := s.lockParent(tx, b.ParentID)
		if err != nil {
			return err
		}
		total, err := s.reserve(tx, parent, id, b.TotalBudget)
		if err != nil {
			return err
		}

		err = tx.Model(&models.AnnualBudget{}).Where("id = ?", id).Updates(map[string]interface{}{
			"period_start":   b.Period.Start,
			"period_end":     b.Period.End,
			"total_budget":   total,
			"energy_type_id": b.EnergyTypeID(),
			"version":        gorm.Expr("version + 1"),
		}).Error
		if err != nil {
			return apperrors.Store(err)
		}
		if err := tx.Where("budget_id = ?", id).Delete(&models.AnnualBudgetAllocation{}).Error; err != nil {
			return apperrors.Store(err)
		}
		if err := insertAllocations(tx, id, b.Allocations); err != nil {
			return err
		}
		return bumpVersion(tx, parent)
	})
}

// DeleteBudget soft-deletes a budget. A parent with children is only removed
// when cascade is set, and then its children go with it.
func (s *budgetStore) DeleteBudget(ctx context.Context, id uint, cascade bool) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	lockID := id
	if !existing.IsParent() {
		lockID = *existing.ParentBudgetID
	}
	unlock := s.locks.Lock(lockID)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent, err := s.lockParent(tx, lockID)
		if err != nil {
			return err
		}

		ids := []uint{id}
		if existing.IsParent() {
			var childIDs []uint
			if err := tx.Model(&models.AnnualBudget{}).Where("parent_budget_id = ?", id).Pluck("id", &childIDs).Error; err != nil {
				return apperrors.Store(err)
			}
			if len(childIDs) > 0 && !cascade {
				return apperrors.WithMessage(apperrors.ErrHasDependentChildren, fmt.Sprintf(
					"budget %d has %d child budget(s); pass cascade=true to delete them too", id, len(childIDs)))
			}
			ids = append(ids, childIDs...)
		}

		if err := tx.Where("budget_id IN ?", ids).Delete(&models.AnnualBudgetAllocation{}).Error; err != nil {
			return apperrors.Store(err)
		}
		if err := tx.Where("budget_id IN ?", ids).Delete(&models.RealizationSnapshot{}).Error; err != nil {
			return apperrors.Store(err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.AnnualBudget{}).Error; err != nil {
			return apperrors.Store(err)
		}
		if existing.IsParent() {
			return nil
		}
		return bumpVersion(tx, parent)
	})
}

// GetParents returns parent budgets, optionally of one energy type.
func (s *budgetStore) GetParents(ctx context.Context, energyTypeID *uint) ([]models.AnnualBudget, error) {
	q := s.db.WithContext(ctx).Where("parent_budget_id IS NULL")
	if energyTypeID != nil {
		q = q.Where("energy_type_id = ?", *energyTypeID)
	}
	var budgets []models.AnnualBudget
	if err := q.Order("period_start DESC, id").Find(&budgets).Error; err != nil {
		return nil, apperrors.Store(err)
	}
	return budgets, nil
}

// GetChildren returns child budgets with their allocations, optionally of
// one parent.
func (s *budgetStore) GetChildren(ctx context.Context, parentID *uint) ([]models.AnnualBudget, error) {
	q := s.db.WithContext(ctx).Where("parent_budget_id IS NOT NULL")
	if parentID != nil {
		q = q.Where("parent_budget_id = ?", *parentID)
	}
	var budgets []models.AnnualBudget
	if err := q.Preload("Allocations", orderByID).Preload("Allocations.Meter").Order("period_start, id").Find(&budgets).Error; err != nil {
		return nil, apperrors.Store(err)
	}
	return budgets, nil
}

// GetByID returns a budget with its allocations and their meters.
func (s *budgetStore) GetByID(ctx context.Context, id uint) (*models.AnnualBudget, error) {
	var budget models.AnnualBudget
	err := s.db.WithContext(ctx).
		Preload("Allocations", orderByID).
		Preload("Allocations.Meter").
		First(&budget, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Store(err)
	}
	return &budget, nil
}

// ListBudgets returns a page of budgets matching filter.
func (s *budgetStore) ListBudgets(ctx context.Context, filter BudgetFilter, page pagination.PageRequest) (*pagination.PageResponse[models.AnnualBudget], error) {
	page.Defaults()

	base := s.db.WithContext(ctx).Model(&models.AnnualBudget{})
	if filter.Kind != nil {
		if *filter.Kind == allocation.KindParent {
			base = base.Where("parent_budget_id IS NULL")
		} else {
			base = base.Where("parent_budget_id IS NOT NULL")
		}
	}
	if filter.ParentID != nil {
		base = base.Where("parent_budget_id = ?", *filter.ParentID)
	}
	if filter.EnergyTypeID != nil {
		base = base.Where("energy_type_id = ?", *filter.EnergyTypeID)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Store(err)
	}

	var budgets []models.AnnualBudget
	if err := base.Preload("Allocations", orderByID).Order("id").Scopes(pagination.Paginate(page)).Find(&budgets).Error; err != nil {
		return nil, apperrors.Store(err)
	}

	result := pagination.NewPageResponse(budgets, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// lockParent loads parent id inside tx, taking a row lock on PostgreSQL.
func (s *budgetStore) lockParent(tx *gorm.DB, id uint) (*models.AnnualBudget, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var parent models.AnnualBudget
	if err := q.First(&parent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Store(err)
	}
	if !parent.IsParent() {
		return nil, apperrors.ErrNotAParent
	}
	return &parent, nil
}

// reserve checks that requested fits in the parent's remaining capacity,
// ignoring child except, and returns the amount to store. A nil request
// takes everything that is left.
func (s *budgetStore) reserve(tx *gorm.DB, parent *models.AnnualBudget, except uint, requested *decimal.Decimal) (decimal.Decimal, error) {
	committed, err := committedToChildren(tx, parent.ID, except)
	if err != nil {
		return decimal.Zero, err
	}
	available := parent.TotalBudget.Sub(committed)

	total := available
	if requested != nil {
		total = *requested
	}
	if !total.IsPositive() || total.GreaterThan(available) {
		s.metrics.RecordConflict("capacity_exceeded")
		logger.Get().Warnw("child budget exceeds parent capacity",
			"parent_budget_id", parent.ID,
			"parent_total", parent.TotalBudget.String(),
			"committed", committed.String(),
			"requested", total.String(),
		)
		return decimal.Zero, apperrors.WithMessage(apperrors.ErrCapacityExceeded, fmt.Sprintf(
			"requested %s exceeds the %s still available in parent budget %d (total %s, already allocated %s)",
			total.StringFixed(2), available.StringFixed(2), parent.ID,
			parent.TotalBudget.StringFixed(2), committed.StringFixed(2)))
	}
	return total, nil
}

// committedToChildren sums the totals of parentID's children except one.
func committedToChildren(tx *gorm.DB, parentID, except uint) (decimal.Decimal, error) {
	var totals []decimal.Decimal
	q := tx.Model(&models.AnnualBudget{}).Where("parent_budget_id = ?", parentID)
	if except != 0 {
		q = q.Where("id <> ?", except)
	}
	if err := q.Pluck("total_budget", &totals).Error; err != nil {
		return decimal.Zero, apperrors.Store(err)
	}
	return decimal.Sum(decimal.Zero, totals...), nil
}

// bumpVersion advances the parent's version, failing if another writer got
// there first.
func bumpVersion(tx *gorm.DB, parent *models.AnnualBudget) error {
	res := tx.Model(&models.AnnualBudget{}).
		Where("id = ? AND version = ?", parent.ID, parent.Version).
		Update("version", gorm.Expr("version + 1"))
	if res.Error != nil {
		return apperrors.Store(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrConcurrentModification
	}
	return nil
}

func insertAllocations(tx *gorm.DB, budgetID uint, allocations []allocation.Allocation) error {
	if len(allocations) == 0 {
		return nil
	}
	rows := make([]models.AnnualBudgetAllocation, len(allocations))
	for i, a := range allocations {
		rows[i] = models.AnnualBudgetAllocation{BudgetID: budgetID, MeterID: a.MeterID, Weight: a.Weight}
	}
	if err := tx.Create(&rows).Error; err != nil {
		return apperrors.Store(err)
	}
	return nil
}

func parentRow(b allocation.Parent) models.AnnualBudget {
	tag := b.EfficiencyTag
	return models.AnnualBudget{
		PeriodStart:   b.Period.Start,
		PeriodEnd:     b.Period.End,
		TotalBudget:   b.TotalBudget,
		EfficiencyTag: &tag,
		EnergyTypeID:  b.EnergyTypeID,
		Version:       1,
	}
}

func childRow(b allocation.Child, total decimal.Decimal) models.AnnualBudget {
	parentID := b.ParentID
	return models.AnnualBudget{
		ParentBudgetID: &parentID,
		PeriodStart:    b.Period.Start,
		PeriodEnd:      b.Period.End,
		TotalBudget:    total,
		EnergyTypeID:   b.EnergyTypeID(),
		Version:        1,
	}
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}
