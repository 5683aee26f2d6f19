package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/edusuite/backend/internal/application/billing"
	domain "github.com/edusuite/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// ErrSchedulerNotRunning is returned when a manual trigger hits a stopped scheduler
var ErrSchedulerNotRunning = errors.New("scheduler is not running")

// BillingRunScheduler closes out the previous billing period once it has
// ended. It wakes daily at a configured UTC hour and runs the close-out for
// the prior month; the close-out itself is idempotent, so re-running on
// already-billed periods is harmless and catches entries created late.
type BillingRunScheduler struct {
	service   *billing.BillingRunService
	logger    *zap.Logger
	config    BillingRunSchedulerConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// BillingRunSchedulerConfig holds configuration for the billing run scheduler
type BillingRunSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// RunHourUTC is the hour (0-23, UTC) the daily close-out check starts
	RunHourUTC int

	// RunTimeout is the maximum time for one close-out run
	RunTimeout time.Duration
}

// DefaultBillingRunSchedulerConfig returns default configuration
func DefaultBillingRunSchedulerConfig() BillingRunSchedulerConfig {
	return BillingRunSchedulerConfig{
		Enabled:    true,
		RunHourUTC: 2,
		RunTimeout: 15 * time.Minute,
	}
}

// NewBillingRunScheduler creates a new billing run scheduler
func NewBillingRunScheduler(
	service *billing.BillingRunService,
	logger *zap.Logger,
	config BillingRunSchedulerConfig,
) *BillingRunScheduler {
	return &BillingRunScheduler{
		service: service,
		logger:  logger,
		config:  config,
	}
}

// Start starts the billing run scheduler
func (s *BillingRunScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Billing run scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runDaily(ctx)

	s.logger.Info("Billing run scheduler started",
		zap.Int("run_hour_utc", s.config.RunHourUTC),
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *BillingRunScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Billing run scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Billing run scheduler stop timed out")
		return ctx.Err()
	}
}

// runDaily wakes at the configured hour and closes out the previous period
func (s *BillingRunScheduler) runDaily(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := time.Now().UTC()
		nextRun := time.Date(now.Year(), now.Month(), now.Day(), s.config.RunHourUTC, 0, 0, 0, time.UTC)
		if now.After(nextRun) {
			nextRun = nextRun.Add(24 * time.Hour)
		}
		delay := time.Until(nextRun)

		s.logger.Info("Billing close-out scheduled",
			zap.Time("next_run", nextRun),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			s.logger.Debug("Billing run loop stopping")
			return
		case <-time.After(delay):
			s.executeCloseOut(ctx)
		}
	}
}

// executeCloseOut closes out the period that ended most recently
func (s *BillingRunScheduler) executeCloseOut(ctx context.Context) {
	period := domain.CurrentPeriod().Previous()

	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	startTime := time.Now()
	report, err := s.service.CloseOutPeriod(runCtx, period)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Billing close-out failed",
			zap.String("period", period.String()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Billing close-out completed",
		zap.String("period", period.String()),
		zap.Duration("duration", duration),
		zap.Int("entries_billed", report.EntriesBilled),
	)
}

// TriggerImmediateRun triggers a close-out of the previous period right away
func (s *BillingRunScheduler) TriggerImmediateRun(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Triggering immediate billing close-out")

	go func() {
		defer s.wg.Done()
		s.executeCloseOut(ctx)
	}()
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *BillingRunScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
