package commands

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/infiniteinsight/spectral/internal/broker"
	"github.com/infiniteinsight/spectral/internal/db"
	"github.com/infiniteinsight/spectral/internal/removal"
	"github.com/infiniteinsight/spectral/internal/repositories"
)

// ScanFilterInput selects which brokers start_scan targets. Kind is
// "all", "category", or "specific"; Category/BrokerIDs are only read when
// Kind names them.
type ScanFilterInput struct {
	Kind      string
	Category  string
	BrokerIDs []string
}

func (in ScanFilterInput) toFilter() broker.Filter {
	switch in.Kind {
	case "category":
		return broker.ByCategory(broker.Category(in.Category))
	case "specific":
		return broker.BySpecificIDs(in.BrokerIDs)
	default:
		return broker.AllBrokers()
	}
}

// StartScanRequest is the input to start_scan.
type StartScanRequest struct {
	VaultID   string
	ProfileID string
	Filter    ScanFilterInput
}

// StartScan loads the profile, resolves the broker filter, and starts a
// scan job. The orchestrator backgrounds the actual per-broker fan-out
// itself, so this returns as soon as the job row exists.
func (s *Service) StartScan(ctx context.Context, req StartScanRequest) (string, *Error) {
	sess, cmdErr := s.getSession(req.VaultID)
	if cmdErr != nil {
		return "", cmdErr
	}
	profile, err := sess.vault.LoadProfile(req.ProfileID)
	if err != nil {
		return "", translate(err)
	}
	jobID, err := sess.orch.StartScan(ctx, req.ProfileID, profile, req.Filter.toFilter())
	if err != nil {
		return "", translate(err)
	}
	return jobID.String(), nil
}

// ScanJobStatus is the response to get_scan_status.
type ScanJobStatus struct {
	ID               string
	ProfileID        string
	Status           string
	TotalBrokers     int
	CompletedBrokers int
	ErrorMessage     string
}

// GetScanStatus reports a scan job's progress.
func (s *Service) GetScanStatus(ctx context.Context, vaultID, scanJobID string) (ScanJobStatus, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return ScanJobStatus{}, cmdErr
	}
	id, err := uuid.Parse(scanJobID)
	if err != nil {
		return ScanJobStatus{}, newError(CodeValidationError, "invalid scan_job_id").withDetail("field", "scan_job_id")
	}
	job, err := sess.scanJobs.GetByID(ctx, id)
	if err != nil {
		return ScanJobStatus{}, translate(err)
	}
	return ScanJobStatus{
		ID:               job.ID.String(),
		ProfileID:        job.ProfileID,
		Status:           job.Status,
		TotalBrokers:     job.TotalBrokers,
		CompletedBrokers: job.CompletedBrokers,
		ErrorMessage:     job.ErrorMessage,
	}, nil
}

// FindingOutput is one entry in get_findings' response.
type FindingOutput struct {
	ID                 string
	BrokerID           string
	ProfileID          string
	ListingURL         string
	VerificationStatus string
	ExtractedData      string
	DiscoveredAt       string
}

func findingOutputFrom(f db.Finding) FindingOutput {
	return FindingOutput{
		ID:                 f.ID.String(),
		BrokerID:           f.BrokerID,
		ProfileID:          f.ProfileID,
		ListingURL:         f.ListingURL,
		VerificationStatus: f.VerificationStatus,
		ExtractedData:      f.ExtractedData,
		DiscoveredAt:       f.DiscoveredAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// GetFindingsRequest is the input to get_findings. Status, when non-empty,
// restricts the listing to a single verification status; otherwise every
// status for the profile is returned, paged by Limit/Offset.
type GetFindingsRequest struct {
	VaultID   string
	ProfileID string
	Status    string
	Limit     int
	Offset    int
}

// GetFindings lists findings for a profile, optionally filtered by status.
func (s *Service) GetFindings(ctx context.Context, req GetFindingsRequest) ([]FindingOutput, *Error) {
	sess, cmdErr := s.getSession(req.VaultID)
	if cmdErr != nil {
		return nil, cmdErr
	}
	var (
		findings []db.Finding
		err      error
	)
	if req.Status != "" {
		findings, err = sess.findings.ListByStatus(ctx, req.ProfileID, req.Status)
	} else {
		findings, err = sess.findings.ListByProfile(ctx, req.ProfileID, repositories.ListOptions{Limit: req.Limit, Offset: req.Offset})
	}
	if err != nil {
		return nil, translate(err)
	}
	out := make([]FindingOutput, 0, len(findings))
	for _, f := range findings {
		out = append(out, findingOutputFrom(f))
	}
	return out, nil
}

// VerifyFindingRequest is the input to verify_finding.
type VerifyFindingRequest struct {
	VaultID    string
	FindingID  string
	Confirm    bool
	VerifiedBy string
}

// VerifyFinding records a user's verification decision on a finding,
// moving it to Confirmed or Rejected.
func (s *Service) VerifyFinding(ctx context.Context, req VerifyFindingRequest) *Error {
	sess, cmdErr := s.getSession(req.VaultID)
	if cmdErr != nil {
		return cmdErr
	}
	id, err := uuid.Parse(req.FindingID)
	if err != nil {
		return newError(CodeValidationError, "invalid finding_id").withDetail("field", "finding_id")
	}
	status := db.FindingStatusRejected
	if req.Confirm {
		status = db.FindingStatusConfirmed
	}
	if err := sess.findings.UpdateVerification(ctx, id, status, req.VerifiedBy, time.Now().UTC()); err != nil {
		return translate(err)
	}
	return nil
}

// SubmitRemovalsForConfirmed creates one Pending removal attempt per
// Confirmed finding in scanJobID that doesn't already have one, and
// immediately starts processing them.
func (s *Service) SubmitRemovalsForConfirmed(ctx context.Context, vaultID, scanJobID string) ([]string, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return nil, cmdErr
	}
	id, err := uuid.Parse(scanJobID)
	if err != nil {
		return nil, newError(CodeValidationError, "invalid scan_job_id").withDetail("field", "scan_job_id")
	}
	ids, err := sess.removalWrk.SubmitRemovalsForConfirmed(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]string, 0, len(ids))
	for _, attemptID := range ids {
		out = append(out, attemptID.String())
	}
	go sess.removalWrk.ProcessBatch(context.WithoutCancel(ctx), ids)
	return out, nil
}

// ProcessRemovalBatch re-runs a specific set of removal attempts (retry
// path for attempts a caller has inspected). Attempts still quarantined
// behind a CAPTCHA are skipped by the worker.
func (s *Service) ProcessRemovalBatch(ctx context.Context, vaultID string, attemptIDs []string) *Error {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return cmdErr
	}
	ids := make([]uuid.UUID, 0, len(attemptIDs))
	for _, attemptIDStr := range attemptIDs {
		id, err := uuid.Parse(attemptIDStr)
		if err != nil {
			return newError(CodeValidationError, "invalid removal attempt id").withDetail("field", "attempt_id")
		}
		ids = append(ids, id)
	}
	sess.removalWrk.ProcessBatch(ctx, ids)
	return nil
}

// SubmitRemoval processes a single removal attempt immediately.
func (s *Service) SubmitRemoval(ctx context.Context, vaultID, attemptID string) *Error {
	return s.ProcessRemovalBatch(ctx, vaultID, []string{attemptID})
}

// RemovalAttemptOutput is one entry in get_captcha_queue/get_failed_queue's
// response.
type RemovalAttemptOutput struct {
	ID           string
	FindingID    string
	BrokerID     string
	Status       string
	ErrorMessage string
}

func removalAttemptOutputFrom(a db.RemovalAttempt) RemovalAttemptOutput {
	return RemovalAttemptOutput{
		ID:           a.ID.String(),
		FindingID:    a.FindingID.String(),
		BrokerID:     a.BrokerID,
		Status:       a.Status,
		ErrorMessage: a.ErrorMessage,
	}
}

// GetCaptchaQueue lists Pending removal attempts quarantined behind a
// CAPTCHA, which are excluded from automatic retry.
func (s *Service) GetCaptchaQueue(ctx context.Context, vaultID string) ([]RemovalAttemptOutput, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return nil, cmdErr
	}
	pending, err := sess.removals.ListByStatus(ctx, db.RemovalStatusPending)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]RemovalAttemptOutput, 0)
	for _, a := range pending {
		attempt := a
		if removal.IsQuarantined(&attempt) {
			out = append(out, removalAttemptOutputFrom(attempt))
		}
	}
	return out, nil
}

// GetFailedQueue lists every removal attempt in Failed status: those that
// exhausted their retry budget and those that failed without a retry.
func (s *Service) GetFailedQueue(ctx context.Context, vaultID string) ([]RemovalAttemptOutput, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return nil, cmdErr
	}
	failed, err := sess.removals.ListByStatus(ctx, db.RemovalStatusFailed)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]RemovalAttemptOutput, 0, len(failed))
	for _, a := range failed {
		out = append(out, removalAttemptOutputFrom(a))
	}
	return out, nil
}
