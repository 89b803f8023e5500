// Package scheduler maintains the scheduled_jobs table (C10): an
// in-process loop wakes periodically and, for each enabled job whose
// next_run_at has passed, dispatches it to the matching handler and
// advances next_run_at by interval_days from the dispatch instant.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/broker"
	"github.com/infiniteinsight/spectral/internal/db"
	"github.com/infiniteinsight/spectral/internal/repositories"
	"github.com/infiniteinsight/spectral/internal/scanner"
	"github.com/infiniteinsight/spectral/internal/vault"
)

// pollInterval is how often the in-process loop checks scheduled_jobs for
// due entries. Individual job cadence is controlled by interval_days, not
// by this constant.
const pollInterval = time.Minute

// RemovalVerifier polls the mail inbox for broker confirmation replies and
// resolves Submitted removal attempts to Completed. internal/mail's IMAP
// poller implements this; scheduler only depends on the capability, not
// the transport.
type RemovalVerifier interface {
	PollSubmitted(ctx context.Context) error
}

// Scheduler drives the two standing job types — scan_all and
// verify_removals — against the single currently unlocked vault.
type Scheduler struct {
	cron     gocron.Scheduler
	jobs     repositories.ScheduledJobRepository
	v        *vault.Vault
	orch     *scanner.Orchestrator
	verifier RemovalVerifier
	logger   *zap.Logger
}

// New creates a Scheduler. Call Start to begin processing. verifier may be
// nil until internal/mail is wired in; verify_removals ticks become a
// no-op logged at debug level until then.
func New(
	jobs repositories.ScheduledJobRepository,
	v *vault.Vault,
	orch *scanner.Orchestrator,
	verifier RemovalVerifier,
	logger *zap.Logger,
) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{
		cron:     s,
		jobs:     jobs,
		v:        v,
		orch:     orch,
		verifier: verifier,
		logger:   logger.Named("scheduler"),
	}, nil
}

// Start ensures both standing job rows exist (creating them with their
// default interval if absent), registers the poll tick, and starts gocron.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.ensureJob(ctx, db.ScheduledJobTypeScanAll, 30); err != nil {
		return err
	}
	if err := s.ensureJob(ctx, db.ScheduledJobTypeVerifyRemovals, 1); err != nil {
		return err
	}

	_, err := s.cron.NewJob(
		gocron.DurationJob(pollInterval),
		gocron.NewTask(func() { s.tick(context.Background()) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: failed to register poll tick: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Duration("poll_interval", pollInterval))
	return nil
}

// Stop gracefully shuts the scheduler down, waiting for any in-flight tick
// to finish.
func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown error: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) ensureJob(ctx context.Context, jobType string, defaultIntervalDays int) error {
	_, err := s.jobs.GetByType(ctx, jobType)
	if err == nil {
		return nil
	}
	if err != repositories.ErrNotFound {
		return fmt.Errorf("scheduler: failed to look up %s job: %w", jobType, err)
	}
	job := &db.ScheduledJob{
		JobType:      jobType,
		IntervalDays: defaultIntervalDays,
		NextRunAt:    time.Now().UTC().AddDate(0, 0, defaultIntervalDays),
		Enabled:      true,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("scheduler: failed to create %s job: %w", jobType, err)
	}
	return nil
}

// tick runs once per pollInterval: it loads every due job and dispatches
// each to its handler.
func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.jobs.ListDue(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("scheduler: failed to list due jobs", zap.Error(err))
		return
	}
	for i := range due {
		s.dispatch(ctx, &due[i])
	}
}

func (s *Scheduler) dispatch(ctx context.Context, job *db.ScheduledJob) {
	logger := s.logger.With(zap.String("job_id", job.ID.String()), zap.String("job_type", job.JobType))

	var runErr error
	switch job.JobType {
	case db.ScheduledJobTypeScanAll:
		runErr = s.runScanAll(ctx)
	case db.ScheduledJobTypeVerifyRemovals:
		runErr = s.runVerifyRemovals(ctx)
	default:
		logger.Warn("scheduler: unrecognized job type, skipping")
		return
	}
	if runErr != nil {
		logger.Error("scheduler: job dispatch failed", zap.Error(runErr))
	}

	now := time.Now().UTC()
	nextRunAt := now.AddDate(0, 0, job.IntervalDays)
	if err := s.jobs.RecordRun(ctx, job.ID, now, nextRunAt); err != nil {
		logger.Error("scheduler: failed to record run", zap.Error(err))
	}
}

// runScanAll starts a full broker scan for every profile in the active
// vault.
func (s *Scheduler) runScanAll(ctx context.Context) error {
	summaries, err := s.v.ListProfiles()
	if err != nil {
		return fmt.Errorf("scheduler: failed to list profiles: %w", err)
	}
	for _, summary := range summaries {
		profile, err := s.v.LoadProfile(summary.ID)
		if err != nil {
			s.logger.Error("scheduler: failed to load profile for scan-all",
				zap.String("profile_id", summary.ID), zap.Error(err))
			continue
		}
		if _, err := s.orch.StartScan(ctx, summary.ID, profile, broker.AllBrokers()); err != nil {
			s.logger.Error("scheduler: failed to start scan for profile",
				zap.String("profile_id", summary.ID), zap.Error(err))
		}
	}
	return nil
}

// runVerifyRemovals polls the configured mail collaborator for broker
// confirmation replies. It's a no-op until internal/mail supplies a
// RemovalVerifier.
func (s *Scheduler) runVerifyRemovals(ctx context.Context) error {
	if s.verifier == nil {
		s.logger.Debug("scheduler: verify_removals tick skipped, no verifier configured")
		return nil
	}
	return s.verifier.PollSubmitted(ctx)
}

// RunJobNow implements the run_job_now command: it dispatches the named
// job type immediately, bypassing next_run_at, and still advances the
// schedule as if the tick had fired naturally.
func (s *Scheduler) RunJobNow(ctx context.Context, jobType string) error {
	job, err := s.jobs.GetByType(ctx, jobType)
	if err != nil {
		return fmt.Errorf("scheduler: run job now: %w", err)
	}
	s.dispatch(ctx, job)
	return nil
}

// UpdateJob implements update_scheduled_job: it persists interval/enabled
// changes to an existing job. Updating a job that doesn't exist surfaces
// repositories.ErrNotFound, which the command layer maps to
// NotFoundWithMessage.
func (s *Scheduler) UpdateJob(ctx context.Context, id uuid.UUID, intervalDays int, enabled bool) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("scheduler: update job: %w", err)
	}
	job.IntervalDays = intervalDays
	job.Enabled = enabled
	if !enabled {
		job.NextRunAt = time.Now().UTC().AddDate(100, 0, 0)
	}
	return s.jobs.Update(ctx, job)
}
