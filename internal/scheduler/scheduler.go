// Package scheduler refreshes the realization snapshots of active budgets on
// a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"energybudget/internal/logger"
	"energybudget/internal/services"
)

// Recalculator is the part of the realization service the scheduler drives.
type Recalculator interface {
	RecalculateActive(ctx context.Context) (*services.RecalculationSummary, error)
}

// Scheduler runs RecalculateActive on a cron schedule. A run that is still
// going when the next one is due causes that tick to be skipped.
type Scheduler struct {
	recalculator Recalculator
	schedule     string
	cron         *cron.Cron
	mu           sync.Mutex
	log          *zap.SugaredLogger
	running      bool
}

// New creates a scheduler for the given standard five-field cron expression.
func New(recalculator Recalculator, schedule string) *Scheduler {
	return &Scheduler{
		recalculator: recalculator,
		schedule:     schedule,
		cron:         cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:          logger.Get().With("component", "scheduler"),
	}
}

// Start schedules recalculation and returns immediately. An empty schedule
// leaves the scheduler idle. The scheduler stops when ctx is done.
//
// Common schedules:
//   - "0 2 * * *"     - daily at 2 AM
//   - "*/30 * * * *"  - every 30 minutes
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.log.Info("recalculation schedule not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule recalculation: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.log.Infow("recalculation scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce performs a single recalculation of every active budget.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()
	summary, err := s.recalculator.RecalculateActive(ctx)
	if err != nil {
		s.log.Errorw("scheduled recalculation failed", "error", err)
		return
	}
	s.log.Infow("scheduled recalculation completed",
		"run_id", summary.RunID,
		"budgets", summary.Budgets,
		"recalculated", summary.Recalculated,
		"failed", summary.Failed,
		"duration", time.Since(start),
	)
}

// Stop stops the scheduler and waits for a running recalculation to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.log.Info("recalculation scheduler stopped")
	}
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled recalculation, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
