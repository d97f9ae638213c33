// Package scheduler triggers refreshes on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
	"github.com/samvad-hq/samvad-news-feed/internal/logger"
	"github.com/samvad-hq/samvad-news-feed/internal/refresh"
)

// Refresher runs one refresh for a trigger.
type Refresher interface {
	RefreshNow(ctx context.Context, trigger string) (domain.RefreshStats, error)
}

const defaultRunTimeout = 10 * time.Minute

// Scheduler fires refreshes on a standard five-field cron spec, evaluated in UTC.
type Scheduler struct {
	refresher  Refresher
	spec       string
	runTimeout time.Duration
	log        logger.Logger
	cron       *cron.Cron
}

// New validates spec and builds a stopped scheduler.
func New(refresher Refresher, spec string, runTimeout time.Duration, log logger.Logger) (*Scheduler, error) {
	if refresher == nil {
		return nil, fmt.Errorf("scheduler requires a refresher")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse refresh cron %q: %w", spec, err)
	}
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	return &Scheduler{
		refresher:  refresher,
		spec:       spec,
		runTimeout: runTimeout,
		log:        logger.Ensure(log),
		cron:       cron.New(cron.WithLocation(time.UTC)),
	}, nil
}

// Start registers the job and blocks until ctx is done, then waits for a running job.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("register refresh job: %w", err)
	}
	s.cron.Start()
	s.log.InfoObj("scheduler started", "scheduler", map[string]any{
		"cron":        s.spec,
		"run_timeout": s.runTimeout.String(),
	})

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.InfoObj("scheduler stopped", "reason", ctx.Err())
	return ctx.Err()
}

// Next reports when the job fires after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	sched, err := cron.ParseStandard(s.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t.UTC())
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	stats, err := s.refresher.RefreshNow(runCtx, refresh.TriggerSchedule)
	switch {
	case errors.Is(err, refresh.ErrRefreshInProgress):
		s.log.WarnObj("scheduled refresh skipped", "reason", err.Error())
	case err != nil:
		s.log.ErrorObj("scheduled refresh failed", "error", err.Error())
	default:
		s.log.InfoObj("scheduled refresh completed", "stats", stats)
	}
}
