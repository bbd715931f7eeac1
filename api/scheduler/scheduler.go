package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSweepSpec runs the inbox retention sweep daily at 3 AM UTC
const DefaultSweepSpec = "0 3 * * *"

// Sweeper deletes inbox notifications older than a retention window
type Sweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (int64, error)
}

// Scheduler handles periodic background jobs. The retention sweep is a plain
// delete by age, so overlapping runs on several instances are harmless.
type Scheduler struct {
	cron      *cron.Cron
	Inbox     Sweeper
	Retention time.Duration
	Timeout   time.Duration
	Spec      string
}

// NewScheduler creates a new scheduler instance
func NewScheduler(inbox Sweeper, retention time.Duration) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		Inbox:     inbox,
		Retention: retention,
		Timeout:   5 * time.Minute,
		Spec:      DefaultSweepSpec,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.Spec, s.sweepInbox)
	if err != nil {
		zap.S().Errorw("failed to register inbox sweep job", "spec", s.Spec, "error", err)
		return err
	}

	s.cron.Start()
	zap.S().Infow("scheduler started", "inboxRetention", s.Retention)
	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("scheduler stopped")
}

// sweepInbox removes notifications past the retention window
func (s *Scheduler) sweepInbox() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()

	deleted, err := s.Inbox.Sweep(ctx, s.Retention)
	if err != nil {
		zap.S().Errorw("failed to sweep inbox notifications", "retention", s.Retention, "error", err)
		return
	}
	zap.S().Infow("swept inbox notifications", "deleted", deleted, "retention", s.Retention)
}
