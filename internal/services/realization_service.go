package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"energybudget/internal/allocation"
	apperrors "energybudget/internal/errors"
	"energybudget/internal/logger"
	"energybudget/internal/metrics"
	"energybudget/internal/models"
)

// DefaultRecalcParallelism bounds how many budgets RecalculateActive
// refreshes at once.
const DefaultRecalcParallelism = 4

// recalcTimeout bounds a shared recalculation once it no longer follows the
// context of the caller that started it.
const recalcTimeout = 5 * time.Minute

// realizationService joins allocations against usage records. Usage is
// never written here.
type realizationService struct {
	db          *gorm.DB
	store       BudgetStorer
	clock       Clock
	metrics     *metrics.Metrics
	parallelism int
	inflight    singleflight.Group

	mu        sync.Mutex
	flights   map[uint]*recalcFlight
	flightSeq uint64
}

// recalcFlight is one shared recalculation of a budget. Its context is
// cancelled once every caller waiting on it has gone away.
type recalcFlight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewRealizationService creates a new RealizationServicer. m may be nil.
func NewRealizationService(db *gorm.DB, store BudgetStorer, clock Clock, m *metrics.Metrics) RealizationServicer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &realizationService{
		db:          db,
		store:       store,
		clock:       clock,
		metrics:     m,
		parallelism: DefaultRecalcParallelism,
		flights:     make(map[uint]*recalcFlight),
	}
}

// ComputeChildRealization rolls up realized cost per allocation of a child
// budget and for the child as a whole.
func (s *realizationService) ComputeChildRealization(ctx context.Context, childBudgetID uint) (*Realization, error) {
	budget, err := s.store.GetByID(ctx, childBudgetID)
	if err != nil {
		return nil, err
	}
	if budget.IsParent() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("budget %d is a parent budget", childBudgetID))
	}
	return s.childRealization(ctx, budget)
}

// ComputeParentRealization sums the realization of every child of a parent
// budget. Parents are never charged directly.
func (s *realizationService) ComputeParentRealization(ctx context.Context, parentBudgetID uint) (*Realization, error) {
	budget, err := s.store.GetByID(ctx, parentBudgetID)
	if err != nil {
		return nil, err
	}
	if !budget.IsParent() {
		return nil, apperrors.ErrNotAParent
	}
	return s.parentRealization(ctx, budget)
}

func (s *realizationService) realizationFor(ctx context.Context, budget *models.AnnualBudget) (*Realization, error) {
	if budget.IsParent() {
		return s.parentRealization(ctx, budget)
	}
	return s.childRealization(ctx, budget)
}

func (s *realizationService) childRealization(ctx context.Context, budget *models.AnnualBudget) (*Realization, error) {
	period := budget.Period()
	meterIDs := make([]uint, len(budget.Allocations))
	for i, a := range budget.Allocations {
		meterIDs[i] = a.MeterID
	}
	ledger, err := loadUsage(ctx, s.db, meterIDs, period)
	if err != nil {
		return nil, err
	}

	r := &Realization{
		BudgetID:        budget.ID,
		BudgetType:      allocation.KindChild,
		AllocatedBudget: budget.TotalBudget,
		PerAllocation:   make([]AllocationRealization, len(budget.Allocations)),
	}
	realized := decimal.Zero
	for i, a := range budget.Allocations {
		figures := allocation.Figures{
			Allocated: allocation.AllocatedAmount(budget.TotalBudget, a.Weight),
			Realized:  ledger.meterTotal(a.MeterID),
		}
		ar := AllocationRealization{
			AllocationID:          a.ID,
			MeterID:               a.MeterID,
			Weight:                a.Weight,
			AllocatedBudget:       figures.Allocated,
			TotalRealization:      figures.Realized,
			RemainingBudget:       figures.Remaining(),
			RealizationPercentage: figures.DisplayPercentage(),
		}
		if a.Meter != nil {
			ar.MeterCode = a.Meter.Code
			ar.MeterName = a.Meter.Name
		}
		r.PerAllocation[i] = ar
		realized = realized.Add(figures.Realized)
	}

	s.fillTotals(r, realized)
	for _, share := range allocation.SplitMonthly(budget.TotalBudget, period) {
		r.MonthlyAllocation = append(r.MonthlyAllocation, MonthlyUsageDetail{
			Month:           share.Month.Format(monthLayout),
			AllocatedBudget: share.Amount,
			RealizationCost: ledger.monthTotal(meterIDs, share.Month),
		})
	}
	return r, nil
}

func (s *realizationService) parentRealization(ctx context.Context, budget *models.AnnualBudget) (*Realization, error) {
	children, err := s.store.GetChildren(ctx, &budget.ID)
	if err != nil {
		return nil, err
	}

	r := &Realization{
		BudgetID:        budget.ID,
		BudgetType:      allocation.KindParent,
		AllocatedBudget: budget.TotalBudget,
		Children:        make([]ChildSummary, 0, len(children)),
	}
	realized := decimal.Zero
	byMonth := map[string]decimal.Decimal{}
	for i := range children {
		child, err := s.childRealization(ctx, &children[i])
		if err != nil {
			return nil, err
		}
		realized = realized.Add(child.TotalRealization)
		for _, m := range child.MonthlyAllocation {
			byMonth[m.Month] = byMonth[m.Month].Add(m.RealizationCost)
		}
		period := children[i].Period()
		r.Children = append(r.Children, ChildSummary{
			BudgetID:              child.BudgetID,
			PeriodStart:           period.Start.Format(allocation.DateLayout),
			PeriodEnd:             period.End.Format(allocation.DateLayout),
			AllocatedBudget:       child.AllocatedBudget,
			TotalRealization:      child.TotalRealization,
			RemainingBudget:       child.RemainingBudget,
			RealizationPercentage: child.RealizationPercentage,
		})
	}

	s.fillTotals(r, realized)
	for _, share := range allocation.SplitMonthly(budget.TotalBudget, budget.Period()) {
		month := share.Month.Format(monthLayout)
		r.MonthlyAllocation = append(r.MonthlyAllocation, MonthlyUsageDetail{
			Month:           month,
			AllocatedBudget: share.Amount,
			RealizationCost: byMonth[month],
		})
	}
	return r, nil
}

func (s *realizationService) fillTotals(r *Realization, realized decimal.Decimal) {
	figures := allocation.Figures{Allocated: r.AllocatedBudget, Realized: realized}
	r.TotalRealization = realized
	r.RemainingBudget = figures.Remaining()
	r.RealizationPercentage = figures.DisplayPercentage()
}

// GetBudgetDetail returns a budget with its live realization figures.
func (s *realizationService) GetBudgetDetail(ctx context.Context, id uint) (*BudgetDetail, error) {
	budget, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.realizationFor(ctx, budget)
	if err != nil {
		return nil, err
	}

	detail := &BudgetDetail{
		BudgetView:            *newBudgetView(budget, s.clock.Now()),
		Allocations:           r.PerAllocation,
		Children:              r.Children,
		TotalRealization:      r.TotalRealization,
		RemainingBudget:       r.RemainingBudget,
		RealizationPercentage: r.RealizationPercentage,
		MonthlyAllocation:     r.MonthlyAllocation,
	}
	if detail.Allocations == nil {
		detail.Allocations = []AllocationRealization{}
	}
	return detail, nil
}

// Recalculate recomputes a budget's realization and replaces its snapshot.
// Concurrent calls for the same budget share one computation, which keeps
// running while at least one of them is still waiting.
func (s *realizationService) Recalculate(ctx context.Context, id uint) (*models.RealizationSnapshot, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return s.recalculateShared(ctx, id, runID.String(), "single")
}

func (s *realizationService) recalculateShared(ctx context.Context, id uint, runID, kind string) (*models.RealizationSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Store(err)
	}

	s.mu.Lock()
	fl, ok := s.flights[id]
	if !ok {
		s.flightSeq++
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recalcTimeout)
		fl = &recalcFlight{key: fmt.Sprintf("%d#%d", id, s.flightSeq), ctx: workCtx, cancel: cancel}
		s.flights[id] = fl
	}
	fl.waiters++
	// Joining under mu: the flight cannot finish and be forgotten between
	// the lookup above and DoChan.
	ch := s.inflight.DoChan(fl.key, func() (interface{}, error) {
		defer s.endFlight(id, fl)
		start := time.Now()
		snap, err := s.recalculate(fl.ctx, id, runID)
		s.metrics.RecordRecalculation(kind, err, time.Since(start))
		return snap, err
	})
	s.mu.Unlock()

	select {
	case res := <-ch:
		s.leaveFlight(id, fl, false)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.RealizationSnapshot), nil
	case <-ctx.Done():
		s.leaveFlight(id, fl, true)
		return nil, apperrors.Store(ctx.Err())
	}
}

// leaveFlight drops a waiter. When the last waiter abandons the flight its
// computation is cancelled and later callers start a fresh one.
func (s *realizationService) leaveFlight(id uint, fl *recalcFlight, abandoned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl.waiters--
	if abandoned && fl.waiters == 0 {
		if s.flights[id] == fl {
			delete(s.flights, id)
		}
		fl.cancel()
	}
}

func (s *realizationService) endFlight(id uint, fl *recalcFlight) {
	s.mu.Lock()
	if s.flights[id] == fl {
		delete(s.flights, id)
	}
	s.mu.Unlock()
	fl.cancel()
}

// recalculate computes into a scratch snapshot and writes it in a single
// upsert, so a cancelled run leaves the previous snapshot in place.
func (s *realizationService) recalculate(ctx context.Context, id uint, runID string) (*models.RealizationSnapshot, error) {
	budget, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.realizationFor(ctx, budget)
	if err != nil {
		return nil, err
	}
	detail, err := json.Marshal(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Store(err)
	}

	snap := &models.RealizationSnapshot{
		BudgetID:              budget.ID,
		RunID:                 runID,
		ComputedAt:            s.clock.Now().UTC(),
		AllocatedBudget:       r.AllocatedBudget,
		TotalRealization:      r.TotalRealization,
		RemainingBudget:       r.RemainingBudget,
		RealizationPercentage: r.RealizationPercentage,
		Detail:                datatypes.JSON(detail),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "budget_id"}}, UpdateAll: true}).
		Create(snap).Error
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return snap, nil
}

// RecalculateActive refreshes the snapshot of every budget whose period
// contains today. A budget that fails is logged and counted; the run carries
// on with the rest.
func (s *realizationService) RecalculateActive(ctx context.Context) (*RecalculationSummary, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	log := logger.Get().With("run_id", runID.String())

	// Periods are UTC days, matching allocation.StatusAt.
	now := s.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var ids []uint
	err = s.db.WithContext(ctx).Model(&models.AnnualBudget{}).
		Where("period_start <= ? AND period_end >= ?", today, today).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apperrors.Store(err)
	}

	summary := &RecalculationSummary{RunID: runID.String(), Budgets: len(ids)}
	var ok, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := s.recalculateShared(gctx, id, runID.String(), "batch"); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				log.Warnw("budget recalculation failed", "budget_id", id, "error", err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	err = g.Wait()
	summary.Recalculated = int(ok.Load())
	summary.Failed = int(failed.Load())
	if err != nil {
		return summary, apperrors.Store(err)
	}

	log.Infow("recalculated active budgets",
		"budgets", summary.Budgets,
		"recalculated", summary.Recalculated,
		"failed", summary.Failed,
	)
	return summary, nil
}

// GetSnapshot returns the last persisted recalculation of a budget.
func (s *realizationService) GetSnapshot(ctx context.Context, id uint) (*models.RealizationSnapshot, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	var snap models.RealizationSnapshot
	if err := s.db.WithContext(ctx).First(&snap, "budget_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSnapshotNotFound
		}
		return nil, apperrors.Store(err)
	}
	return &snap, nil
}

const monthLayout = "2006-01"
