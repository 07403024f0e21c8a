// Package scheduler runs the periodic upload-cache retention sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/pkg/logger"
)

// Sweeper removes uploaded cache entries unused for longer than olderThan.
type Sweeper interface {
	SweepUploads(ctx context.Context, olderThan time.Duration, now time.Time) (int, error)
}

type Scheduler struct {
	sweeper   Sweeper
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	cron    *rcron.Cron
	running bool
	lastRun time.Time
	lastErr error
}

func New(sweeper Sweeper, retention time.Duration) *Scheduler {
	return &Scheduler{
		sweeper:   sweeper,
		retention: retention,
		now:       time.Now,
	}
}

// Start registers the sweep on schedule, a standard five-field cron
// expression or a descriptor such as "@daily".
func (s *Scheduler) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := rcron.New()
	if _, err := c.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c

	logger.Info("Retention scheduler started",
		zap.String("schedule", schedule),
		zap.Duration("retention", s.retention),
	)
	return nil
}

// RunOnce performs one sweep unless another is still running.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Warn("Retention sweep still running, skipping")
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()

	removed, err := s.sweeper.SweepUploads(ctx, s.retention, s.now())

	s.mu.Lock()
	s.running = false
	s.lastRun = s.now()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		logger.Error("Retention sweep failed", zap.Error(err))
		return removed, err
	}
	return removed, nil
}

// LastRun reports when the last sweep finished and its error.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// Stop waits up to five seconds for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-time.After(5 * time.Second):
		logger.Warn("Retention scheduler stop timed out waiting for the sweep")
	}
	logger.Info("Retention scheduler stopped")
}
