package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultCalendarInterval = 150 * time.Minute
	DefaultSweepInterval    = 5 * time.Minute
	DefaultMetricsInterval  = 5 * time.Minute
)

// Jobs are the periodic tasks of the bot. A nil job is not scheduled.
type Jobs struct {
	UpdateCalendar func(ctx context.Context)
	SweepCache     func()
	SaveMetrics    func(ctx context.Context)

	CalendarInterval time.Duration
	SweepInterval    time.Duration
	MetricsInterval  time.Duration
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron *gocron.Scheduler
	jobs Jobs
}

// NewScheduler creates a new scheduler instance
func NewScheduler(jobs Jobs) *Scheduler {
	if jobs.CalendarInterval <= 0 {
		jobs.CalendarInterval = DefaultCalendarInterval
	}
	if jobs.SweepInterval <= 0 {
		jobs.SweepInterval = DefaultSweepInterval
	}
	if jobs.MetricsInterval <= 0 {
		jobs.MetricsInterval = DefaultMetricsInterval
	}
	return &Scheduler{cron: gocron.NewScheduler(time.UTC), jobs: jobs}
}

// Start registers the jobs and runs them in the background until Stop. The
// calendar update also runs once right away.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info("Starting scheduler...")

	if s.jobs.UpdateCalendar != nil {
		if _, err := s.cron.Every(s.jobs.CalendarInterval).SingletonMode().Do(func() {
			s.jobs.UpdateCalendar(ctx)
		}); err != nil {
			return errors.Wrap(err, "could not schedule calendar update")
		}
	}
	if s.jobs.SweepCache != nil {
		if _, err := s.cron.Every(s.jobs.SweepInterval).WaitForSchedule().Do(s.jobs.SweepCache); err != nil {
			return errors.Wrap(err, "could not schedule cache sweep")
		}
	}
	if s.jobs.SaveMetrics != nil {
		if _, err := s.cron.Every(s.jobs.MetricsInterval).WaitForSchedule().Do(func() {
			s.jobs.SaveMetrics(ctx)
		}); err != nil {
			return errors.Wrap(err, "could not schedule metrics save")
		}
	}

	s.cron.StartAsync()
	log.Infof("Scheduler started with %d jobs", s.cron.Len())
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Info("Scheduler stopped")
}
