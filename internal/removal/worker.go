package removal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/broker"
	"github.com/infiniteinsight/spectral/internal/db"
	"github.com/infiniteinsight/spectral/internal/metrics"
	"github.com/infiniteinsight/spectral/internal/repositories"
	"github.com/infiniteinsight/spectral/internal/vault"
)

// DefaultConcurrency is the default number of removal attempts in flight
// at once.
const DefaultConcurrency = 3

// captchaPrefix marks a CAPTCHA-quarantined Pending attempt's
// error_message: a Pending attempt whose error_message begins with this
// prefix is not retried automatically.
const captchaPrefix = "CAPTCHA_REQUIRED:"

// retryDelays holds the same 30s/2min/5min delays as the scanner's
// backoff schedule, but removal submissions make at most maxAttempts (3)
// attempts, so only the 30s and 2min delays are used.
var retryDelays = []time.Duration{30 * time.Second, 2 * time.Minute, 5 * time.Minute}

const maxAttempts = 3

// Notifier publishes removal:update events to the shell. A nil Notifier is
// valid and simply drops events.
type Notifier interface {
	Publish(topic string, msgType string, payload any)
}

// Worker drives removal attempts to completion against a broker registry,
// a browser-backed web-form submitter, and an email sender.
type Worker struct {
	registry    *broker.Registry
	attempts    repositories.RemovalAttemptRepository
	findings    repositories.FindingRepository
	vault       *vault.Vault
	webform     *WebFormSubmitter
	mailSender  Sender
	concurrency int
	notifier    Notifier
	vaultID     string
	logger      *zap.Logger
}

// NewWorker returns a Worker with the default concurrency.
func NewWorker(
	registry *broker.Registry,
	attempts repositories.RemovalAttemptRepository,
	findings repositories.FindingRepository,
	v *vault.Vault,
	webform *WebFormSubmitter,
	mailSender Sender,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		registry:    registry,
		attempts:    attempts,
		findings:    findings,
		vault:       v,
		webform:     webform,
		mailSender:  mailSender,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
}

// WithConcurrency overrides the default fan-out width.
func (w *Worker) WithConcurrency(n int) *Worker {
	if n > 0 {
		w.concurrency = n
	}
	return w
}

// WithNotifier attaches a Notifier that receives removal:update events each
// time the worker persists an attempt's outcome (Submitted, Failed, or
// quarantined), published on the given vault's topic.
func (w *Worker) WithNotifier(n Notifier, vaultID string) *Worker {
	w.notifier = n
	w.vaultID = vaultID
	return w
}

func (w *Worker) notify(attempt *db.RemovalAttempt) {
	if w.notifier == nil {
		return
	}
	w.notifier.Publish("removal:"+w.vaultID, "removal:update", map[string]any{
		"attempt_id": attempt.ID.String(),
		"finding_id": attempt.FindingID.String(),
		"status":     attempt.Status,
	})
}

// SubmitRemovalsForConfirmed implements submit_removals_for(scan_job_id):
// it creates one Pending RemovalAttempt per Confirmed finding in the job
// lacking one, links it to the finding, and returns the created attempt
// ids. Processing itself is started separately via ProcessBatch so
// callers can control when the semaphore-bound work runs.
func (w *Worker) SubmitRemovalsForConfirmed(ctx context.Context, scanJobID uuid.UUID) ([]uuid.UUID, error) {
	confirmed, err := w.findings.ListConfirmedWithoutRemoval(ctx, scanJobID)
	if err != nil {
		return nil, fmt.Errorf("removal: list confirmed findings: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(confirmed))
	for _, finding := range confirmed {
		attempt := &db.RemovalAttempt{
			FindingID: finding.ID,
			BrokerID:  finding.BrokerID,
			Status:    db.RemovalStatusPending,
		}
		if err := w.attempts.Create(ctx, attempt); err != nil {
			return ids, fmt.Errorf("removal: create removal attempt for finding %s: %w", finding.ID, err)
		}
		if err := w.findings.AttachRemovalAttempt(ctx, finding.ID, attempt.ID); err != nil {
			return ids, fmt.Errorf("removal: attach removal attempt to finding %s: %w", finding.ID, err)
		}
		ids = append(ids, attempt.ID)
	}
	return ids, nil
}

// ProcessBatch runs every listed attempt through the per-attempt algorithm,
// bounded by w.concurrency shared across the whole batch.
func (w *Worker) ProcessBatch(ctx context.Context, attemptIDs []uuid.UUID) {
	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup

	for _, id := range attemptIDs {
		id := id
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.processAttempt(ctx, id)
		}()
	}
	wg.Wait()
}

// processAttempt drives one removal attempt through submission, outcome
// classification, and persistence.
func (w *Worker) processAttempt(ctx context.Context, attemptID uuid.UUID) {
	logger := w.logger.With(zap.String("removal_attempt_id", attemptID.String()))

	attempt, err := w.attempts.GetByID(ctx, attemptID)
	if err != nil {
		logger.Error("removal: failed to load attempt", zap.Error(err))
		return
	}
	if isQuarantined(attempt) {
		logger.Debug("removal: skipping CAPTCHA-quarantined attempt")
		return
	}

	finding, err := w.findings.GetByID(ctx, attempt.FindingID)
	if err != nil {
		w.markFailed(ctx, attempt, fmt.Sprintf("failed to load finding: %v", err))
		return
	}

	profile, err := w.vault.LoadProfile(finding.ProfileID)
	if err != nil {
		w.markFailed(ctx, attempt, fmt.Sprintf("failed to load profile: %v", err))
		return
	}

	def, err := w.registry.Get(attempt.BrokerID)
	if err != nil {
		w.markFailed(ctx, attempt, fmt.Sprintf("unknown broker: %v", err))
		return
	}

	fieldValues, err := buildFieldValues(profile, finding.ListingURL)
	if err != nil {
		w.markFailed(ctx, attempt, err.Error())
		return
	}

	var outcome Outcome
	retryErr := withRetry(ctx, func(attemptNum int) error {
		var submitErr error
		outcome, submitErr = w.submit(ctx, def, fieldValues)
		return submitErr
	})

	if retryErr != nil {
		w.markFailed(ctx, attempt, retryErr.Error())
		return
	}

	w.applyOutcome(ctx, attempt, outcome)
}

func (w *Worker) submit(ctx context.Context, def broker.Definition, fieldValues map[string]string) (Outcome, error) {
	switch def.Removal.Kind {
	case broker.RemovalWebForm:
		metrics.RemovalAttemptsSubmitted.WithLabelValues("web_form").Inc()
		return w.webform.Submit(ctx, def, fieldValues)
	case broker.RemovalEmail:
		if w.mailSender == nil {
			return Outcome{}, fmt.Errorf("removal: broker %q requires email but no mail sender is configured", def.Broker.ID)
		}
		metrics.RemovalAttemptsSubmitted.WithLabelValues("email").Inc()
		return SubmitEmail(ctx, w.mailSender, def, fieldValues)
	case broker.RemovalPhone, broker.RemovalManual:
		metrics.RemovalAttemptsSubmitted.WithLabelValues("manual").Inc()
		return Outcome{Kind: KindSubmitted}, nil
	default:
		return Outcome{}, fmt.Errorf("removal: broker %q has an unrecognized removal method", def.Broker.ID)
	}
}

// applyOutcome updates the attempt row per the outcome mapping: Submitted
// and RequiresEmailVerification both resolve to the
// Submitted status (a verification poller later advances it to Completed);
// RequiresCaptcha stays Pending, quarantined by its error message;
// RequiresAccountCreation is treated as a Failed outcome since the system
// cannot create broker accounts on the user's behalf.
func (w *Worker) applyOutcome(ctx context.Context, attempt *db.RemovalAttempt, outcome Outcome) {
	switch outcome.Kind {
	case KindSubmitted, KindRequiresEmailVerification:
		now := time.Now().UTC()
		attempt.Status = db.RemovalStatusSubmitted
		attempt.SubmittedAt = &now
		attempt.ErrorMessage = ""
	case KindRequiresCaptcha:
		attempt.Status = db.RemovalStatusPending
		attempt.ErrorMessage = captchaPrefix + outcome.CaptchaURL
	case KindRequiresAccountCreation:
		attempt.Status = db.RemovalStatusFailed
		attempt.ErrorMessage = "account creation required (not supported)"
	case KindFailed:
		attempt.Status = db.RemovalStatusFailed
		attempt.ErrorMessage = outcome.Reason
	}

	if err := w.attempts.Update(ctx, attempt); err != nil {
		w.logger.Error("removal: failed to persist attempt outcome", zap.String("removal_attempt_id", attempt.ID.String()), zap.Error(err))
		return
	}
	metrics.RemovalAttemptsTerminal.WithLabelValues(attempt.Status).Inc()
	w.notify(attempt)
}

func (w *Worker) markFailed(ctx context.Context, attempt *db.RemovalAttempt, reason string) {
	attempt.Status = db.RemovalStatusFailed
	attempt.ErrorMessage = reason
	if err := w.attempts.Update(ctx, attempt); err != nil {
		w.logger.Error("removal: failed to mark attempt failed", zap.String("removal_attempt_id", attempt.ID.String()), zap.Error(err))
		return
	}
	metrics.RemovalAttemptsTerminal.WithLabelValues(attempt.Status).Inc()
	w.notify(attempt)
}

// isQuarantined reports whether attempt is a Pending removal sitting in the
// CAPTCHA queue, which must not be retried automatically.
func isQuarantined(attempt *db.RemovalAttempt) bool {
	return attempt.Status == db.RemovalStatusPending &&
		len(attempt.ErrorMessage) >= len(captchaPrefix) &&
		attempt.ErrorMessage[:len(captchaPrefix)] == captchaPrefix
}

// IsQuarantined reports whether attempt is sitting in the CAPTCHA queue.
// Exported for callers (the command boundary's get_captcha_queue) that
// need to filter a list of attempts without duplicating the prefix check.
func IsQuarantined(attempt *db.RemovalAttempt) bool {
	return isQuarantined(attempt)
}

// buildFieldValues extracts the fields a removal submission needs from the
// profile and finding: listing_url plus required email/first_name/
// last_name.
func buildFieldValues(profile vault.ProfileData, listingURL string) (map[string]string, error) {
	if profile.Email == "" {
		return nil, fmt.Errorf("removal: missing required field: email")
	}
	if profile.FirstName == "" {
		return nil, fmt.Errorf("removal: missing required field: first_name")
	}
	if profile.LastName == "" {
		return nil, fmt.Errorf("removal: missing required field: last_name")
	}
	return map[string]string{
		"listing_url": listingURL,
		"email":       profile.Email,
		"first_name":  profile.FirstName,
		"last_name":   profile.LastName,
	}, nil
}

// withRetry runs fn up to maxAttempts times, sleeping the matching
// retryDelays entry between attempts. Every error
// returned by fn is treated as transient — CAPTCHA and Failed outcomes are
// not errors, they're an Outcome value the caller handles without retrying.
func withRetry(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryDelays[attempt-1]
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}
