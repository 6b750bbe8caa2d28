package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
)

// Scheduler wraps a gocron scheduler for periodic tasks. Runs of the same
// job never overlap; a run that would start while the previous one is still
// busy is skipped.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(context.Context) {
	slog.Info("Starting scheduler", slog.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop(context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs task every interval and returns the job id.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, task func()) (string, error) {
	if interval <= 0 {
		return "", derrors.ValidationError("schedule interval must be > 0").WithContext("job", name).Build()
	}
	return s.schedule(name, gocron.DurationJob(interval), task)
}

// ScheduleCron runs task on a five-field cron expression and returns the job id.
func (s *Scheduler) ScheduleCron(name, expr string, task func()) (string, error) {
	return s.schedule(name, gocron.CronJob(expr, false), task)
}

func (s *Scheduler) schedule(name string, def gocron.JobDefinition, task func()) (string, error) {
	job, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(s.run(name, task)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", derrors.WrapError(err, derrors.CategoryConfig, "failed to create scheduled job").
			WithContext("job", name).
			Build()
	}
	return job.ID().String(), nil
}

func (s *Scheduler) run(name string, task func()) func() {
	return func() {
		start := time.Now()
		slog.Debug("Executing scheduled job", logfields.JobName(name))
		task()
		slog.Debug("Scheduled job finished", logfields.JobName(name), slog.Duration("duration", time.Since(start)))
	}
}
