package commands

import (
	"context"

	"github.com/google/uuid"

	"github.com/infiniteinsight/spectral/internal/db"
)

// ScheduledJobOutput is one entry in get_scheduled_jobs' response.
type ScheduledJobOutput struct {
	ID           string
	JobType      string
	IntervalDays int
	NextRunAt    string
	LastRunAt    string
	Enabled      bool
}

func scheduledJobOutputFrom(j db.ScheduledJob) ScheduledJobOutput {
	out := ScheduledJobOutput{
		ID:           j.ID.String(),
		JobType:      j.JobType,
		IntervalDays: j.IntervalDays,
		NextRunAt:    j.NextRunAt.Format("2006-01-02T15:04:05Z07:00"),
		Enabled:      j.Enabled,
	}
	if j.LastRunAt != nil {
		out.LastRunAt = j.LastRunAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}

// GetScheduledJobs lists the vault's scheduled jobs (scan_all, verify_removals).
func (s *Service) GetScheduledJobs(ctx context.Context, vaultID string) ([]ScheduledJobOutput, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return nil, cmdErr
	}
	jobs, err := sess.scheduled.List(ctx)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]ScheduledJobOutput, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, scheduledJobOutputFrom(j))
	}
	return out, nil
}

// UpdateScheduledJobRequest is the input to update_scheduled_job.
type UpdateScheduledJobRequest struct {
	VaultID      string
	JobID        string
	IntervalDays int
	Enabled      bool
}

// UpdateScheduledJob changes a scheduled job's interval or enabled state.
func (s *Service) UpdateScheduledJob(ctx context.Context, req UpdateScheduledJobRequest) *Error {
	sess, cmdErr := s.getSession(req.VaultID)
	if cmdErr != nil {
		return cmdErr
	}
	id, err := uuid.Parse(req.JobID)
	if err != nil {
		return newError(CodeValidationError, "invalid job_id").withDetail("field", "job_id")
	}
	if err := sess.sched.UpdateJob(ctx, id, req.IntervalDays, req.Enabled); err != nil {
		return translate(err)
	}
	return nil
}

// RunJobNow dispatches a scheduled job type immediately, bypassing its
// next_run_at.
func (s *Service) RunJobNow(ctx context.Context, vaultID, jobType string) *Error {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return cmdErr
	}
	switch jobType {
	case db.ScheduledJobTypeScanAll, db.ScheduledJobTypeVerifyRemovals:
	default:
		return newError(CodeUnknownJobType, "unrecognized job type").withDetail("job_type", jobType)
	}
	if err := sess.sched.RunJobNow(ctx, jobType); err != nil {
		return translate(err)
	}
	return nil
}
