// Package jobs runs the ledger maintenance jobs in-process on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 30 * time.Minute

// Ledger is the part of the credit ledger the scheduler drives.
type Ledger interface {
	RollingRefresh(ctx context.Context) (int, error)
	MonthlyReset(ctx context.Context) (int, error)
}

// Schedules holds the cron expressions of each job. An empty expression disables the job.
type Schedules struct {
	RollingRefresh string
	MonthlyReset   string
}

// Scheduler manages scheduled ledger jobs.
type Scheduler struct {
	cron   *cron.Cron
	ledger Ledger
	logger *zap.Logger
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewScheduler creates a scheduler running in UTC. Overlapping runs of the same job are skipped.
func NewScheduler(ledger Ledger, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{sugar: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ledger: ledger,
		logger: logger,
	}
}

// SetupJobs registers the jobs with their schedules.
func (s *Scheduler) SetupJobs(schedules Schedules) error {
	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) (int, error)
	}{
		{"rolling_refresh", schedules.RollingRefresh, s.ledger.RollingRefresh},
		{"monthly_reset", schedules.MonthlyReset, s.ledger.MonthlyReset},
	}
	for _, j := range jobs {
		if j.schedule == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.schedule, func() { s.runJob(j.name, j.run) }); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", j.schedule, j.name, err)
		}
		s.logger.Info("Job scheduled", zap.String("job", j.name), zap.String("schedule", j.schedule))
	}
	return nil
}

func (s *Scheduler) runJob(name string, run func(context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	updated, err := run(ctx)
	if err != nil {
		s.logger.Error("Scheduled job failed", zap.String("job", name), zap.Int("updated", updated), zap.Error(err))
		return
	}
	s.logger.Info("Scheduled job completed", zap.String("job", name), zap.Int("updated", updated))
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out with jobs still running")
	}
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
