package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"price-tracker/internal/model"
	"price-tracker/pkg/contextx"
	"price-tracker/pkg/logx"
)

// PassRunner runs one monitoring pass.
type PassRunner interface {
	RunPass(ctx context.Context) (*model.PassResult, error)
}

// Scheduler manages periodic monitoring passes
type Scheduler struct {
	runner   PassRunner
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	status    model.PassStatus
	isRunning bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewScheduler creates a new scheduler
func NewScheduler(runner PassRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		status:   model.PassStatus{Status: "never"},
	}
}

// Start runs a pass immediately and then every interval until Stop is called
// or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		s.logger.Warn("scheduler already running")
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))

	go func() {
		defer close(doneCh)

		// Run immediately on start
		_, _ = s.ScrapeNow(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_, _ = s.ScrapeNow(ctx)
			case <-ctx.Done():
				s.markStopped()
				return
			case <-stopCh:
				s.markStopped()
				return
			}
		}
	}()
}

func (s *Scheduler) markStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-doneCh
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isRunning
}

// ScrapeNow runs one pass and records its status.
func (s *Scheduler) ScrapeNow(ctx context.Context) (*model.PassResult, error) {
	passID, err := contextx.PassIDFromContext(ctx)
	if err != nil {
		passID = contextx.NewPassID()
		ctx = contextx.WithPassID(ctx, passID)
	}

	startTime := time.Now()
	s.setStatus(model.PassStatus{
		PassID:    passID.String(),
		StartedAt: startTime,
		Status:    "running",
	})

	result, err := s.runner.RunPass(ctx)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("monitoring pass failed",
			logx.Stringer(logx.FieldPassID, passID),
			logx.Error(err),
		)
		s.setStatus(model.PassStatus{
			PassID:    passID.String(),
			StartedAt: startTime,
			Status:    "failed",
			Error:     err.Error(),
			Duration:  duration,
		})
		return nil, err
	}

	s.setStatus(model.PassStatus{
		PassID:    passID.String(),
		StartedAt: startTime,
		Status:    "success",
		Products:  len(result.Data),
		Updated:   result.Updated,
		Duration:  duration,
	})

	return result, nil
}

func (s *Scheduler) setStatus(status model.PassStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
}

// SchedulerStatus represents the scheduler status
type SchedulerStatus struct {
	IsRunning bool             `json:"is_running"`
	Interval  string           `json:"interval"`
	LastPass  model.PassStatus `json:"last_pass"`
}

// Status returns the current status of the scheduler
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SchedulerStatus{
		IsRunning: s.isRunning,
		Interval:  s.interval.String(),
		LastPass:  s.status,
	}
}
