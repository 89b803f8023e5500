// Package scanner implements the bounded-concurrency broker scan pipeline:
// resolving broker definitions, gating on profile completeness, fanning
// out per-broker searches, parsing results, and deduplicating findings
// into the vault's encrypted store.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/broker"
	"github.com/infiniteinsight/spectral/internal/browser"
	"github.com/infiniteinsight/spectral/internal/db"
	"github.com/infiniteinsight/spectral/internal/metrics"
	"github.com/infiniteinsight/spectral/internal/repositories"
	"github.com/infiniteinsight/spectral/internal/vault"
)

// DefaultConcurrency is the default number of brokers scanned in parallel.
const DefaultConcurrency = 3

// DefaultRateLimit is the default minimum delay between requests to the
// same domain.
const DefaultRateLimit = 1000 * time.Millisecond

// Notifier publishes scan progress events to the shell. Implementations
// must not block the caller; a nil Notifier is valid and simply drops
// events (the scan still completes normally, only the live UI update is
// lost).
type Notifier interface {
	Publish(topic string, msgType string, payload any)
}

// Orchestrator drives scan jobs across a registry of broker definitions.
type Orchestrator struct {
	registry     *broker.Registry
	scanJobs     repositories.ScanJobRepository
	brokerScans  repositories.BrokerScanRepository
	findings     repositories.FindingRepository
	actions      browser.Actions
	rateLimiter  *DomainRateLimiter
	concurrency  int
	notifier     Notifier
	logger       *zap.Logger
}

// New returns an Orchestrator with the default concurrency and rate limit.
func New(
	registry *broker.Registry,
	scanJobs repositories.ScanJobRepository,
	brokerScans repositories.BrokerScanRepository,
	findings repositories.FindingRepository,
	actions browser.Actions,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		scanJobs:    scanJobs,
		brokerScans: brokerScans,
		findings:    findings,
		actions:     actions,
		rateLimiter: NewDomainRateLimiter(DefaultRateLimit),
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
}

// WithConcurrency overrides the default fan-out width.
func (o *Orchestrator) WithConcurrency(n int) *Orchestrator {
	if n > 0 {
		o.concurrency = n
	}
	return o
}

// WithNotifier attaches a Notifier that receives scan:progress/scan:complete
// events as broker scans finish.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// StartScan resolves brokers against filter, creates the ScanJob row, and
// launches the per-broker fan-out in a background goroutine, returning the
// job id immediately: scanning itself runs asynchronously.
func (o *Orchestrator) StartScan(ctx context.Context, profileID string, profile vault.ProfileData, filter broker.Filter) (uuid.UUID, error) {
	candidates := o.registry.Resolve(filter)

	job := &db.ScanJob{
		ProfileID:    profileID,
		StartedAt:    time.Now().UTC(),
		Status:       db.ScanJobStatusInProgress,
		TotalBrokers: len(candidates),
	}
	if err := o.scanJobs.Create(ctx, job); err != nil {
		return uuid.UUID{}, fmt.Errorf("scanner: create scan job: %w", err)
	}
	metrics.ScansStarted.Inc()

	if len(candidates) == 0 {
		if err := o.scanJobs.MarkFailed(ctx, job.ID, "no brokers matched the filter"); err != nil {
			o.logger.Warn("scanner: failed to mark empty scan job", zap.Error(err))
		}
		return job.ID, nil
	}

	go o.run(context.WithoutCancel(ctx), job.ID, profileID, profile, candidates)

	return job.ID, nil
}

func (o *Orchestrator) run(ctx context.Context, jobID uuid.UUID, profileID string, profile vault.ProfileData, candidates []broker.Definition) {
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for _, def := range candidates {
		def := def
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			o.scanOneBroker(ctx, jobID, profileID, profile, def)
		}()
	}
	wg.Wait()
}

// scanOneBroker scans a single broker: gate on profile completeness,
// build the URL, fetch, parse, dedupe, persist.
func (o *Orchestrator) scanOneBroker(ctx context.Context, jobID uuid.UUID, profileID string, profile vault.ProfileData, def broker.Definition) {
	logger := o.logger.With(zap.String("broker_id", def.Broker.ID), zap.String("scan_job_id", jobID.String()))

	if missing := missingRequiredFields(profile, def.Search); len(missing) > 0 {
		scan := &db.BrokerScan{
			ScanJobID:    jobID,
			BrokerID:     def.Broker.ID,
			Status:       db.BrokerScanStatusSkipped,
			ErrorMessage: fmt.Sprintf("missing required profile fields: %s", strings.Join(missing, ", ")),
		}
		o.finishBrokerScan(ctx, scan)
		return
	}

	now := time.Now().UTC()
	scan := &db.BrokerScan{
		ScanJobID: jobID,
		BrokerID:  def.Broker.ID,
		Status:    db.BrokerScanStatusPending,
		StartedAt: &now,
	}
	if err := o.brokerScans.Create(ctx, scan); err != nil {
		logger.Error("scanner: failed to create broker scan row", zap.Error(err))
		return
	}

	if def.Search.Kind != broker.SearchURLTemplate {
		scan.Status = db.BrokerScanStatusSkipped
		scan.ErrorMessage = "search method not supported by the automated scanner"
		o.finishBrokerScan(ctx, scan)
		return
	}

	searchURL := BuildSearchURL(def.Search.Template, profile)

	err := withRetry(ctx, isTransientScanError, func(attempt int) error {
		if err := o.rateLimiter.Wait(ctx, searchURL); err != nil {
			return err
		}
		html, err := o.actions.FetchHTML(ctx, searchURL)
		if err != nil {
			return err
		}
		matches, err := ParseResults(def.Broker.ID, "https://"+def.Broker.Domain, def.Search.ResultSelectors, html)
		if err != nil {
			return err
		}

		inserted := 0
		for _, match := range matches {
			finding := &db.Finding{
				BrokerScanID:  scan.ID,
				BrokerID:      def.Broker.ID,
				ProfileID:     profileID,
				ListingURL:    match.ListingURL,
				DiscoveredAt:  time.Now().UTC(),
				ExtractedData: marshalExtractedData(match.ExtractedData),
			}
			if err := o.findings.Create(ctx, finding); err != nil {
				if err == repositories.ErrConflict {
					continue // already recorded for this scan job
				}
				return err
			}
			inserted++
		}

		scan.Status = db.BrokerScanStatusSuccess
		scan.FindingsCount = inserted
		return nil
	})

	if err != nil {
		scan.Status = db.BrokerScanStatusFailed
		scan.ErrorMessage = classifyScanError(err)
		logger.Warn("scanner: broker scan failed", zap.Error(err))
	}

	o.finishBrokerScan(ctx, scan)
}

func (o *Orchestrator) finishBrokerScan(ctx context.Context, scan *db.BrokerScan) {
	now := time.Now().UTC()
	scan.CompletedAt = &now

	outcome := "error"
	switch scan.Status {
	case db.BrokerScanStatusSuccess:
		outcome = "found"
	case db.BrokerScanStatusSkipped:
		outcome = "skipped"
	}
	metrics.BrokerScansCompleted.WithLabelValues(outcome).Inc()
	if scan.StartedAt != nil {
		metrics.BrokerScanDuration.Observe(now.Sub(*scan.StartedAt).Seconds())
	}

	if scan.ID == uuid.Nil {
		if err := o.brokerScans.Create(ctx, scan); err != nil {
			o.logger.Error("scanner: failed to persist skipped broker scan", zap.Error(err))
			return
		}
	} else if err := o.brokerScans.Update(ctx, scan); err != nil {
		o.logger.Error("scanner: failed to update broker scan", zap.Error(err))
		return
	}

	job, err := o.scanJobs.IncrementCompleted(ctx, scan.ScanJobID)
	if err != nil {
		o.logger.Error("scanner: failed to increment completed brokers", zap.Error(err))
		return
	}

	if o.notifier == nil {
		return
	}
	topic := "scan:" + scan.ScanJobID.String()
	o.notifier.Publish(topic, "scan:progress", map[string]any{
		"scan_job_id":       job.ID.String(),
		"completed_brokers": job.CompletedBrokers,
		"total_brokers":     job.TotalBrokers,
	})
	if job.Status == db.ScanJobStatusCompleted || job.Status == db.ScanJobStatusFailed {
		o.notifier.Publish(topic, "scan:complete", map[string]any{
			"scan_job_id": job.ID.String(),
			"status":      job.Status,
		})
	}
}

// classifyScanError reduces an error from the fetch/parse pipeline to the
// short error_message stored on the BrokerScan row.
func classifyScanError(err error) string {
	if _, ok := err.(*ErrCaptchaRequired); ok {
		return "CAPTCHA_REQUIRED"
	}
	if outdated, ok := err.(*ErrSelectorsOutdated); ok {
		return outdated.Error()
	}
	return err.Error()
}

// isTransientScanError reports whether err is worth retrying. CAPTCHA and
// outdated-selector failures are terminal; anything else (network errors,
// browser timeouts) is treated as transient.
func isTransientScanError(err error) bool {
	switch err.(type) {
	case *ErrCaptchaRequired, *ErrSelectorsOutdated:
		return false
	default:
		return true
	}
}

// missingRequiredFields checks the profile-completeness gate against a
// broker's declared required search fields.
func missingRequiredFields(profile vault.ProfileData, method broker.SearchMethod) []string {
	return profile.MissingFields(method.RequiresFields)
}

// BuildSearchURL substitutes {first}, {last}, {state}, {city} placeholders
// in a url-template search method: names and city are lowercased, and
// spaces in city become hyphens.
func BuildSearchURL(template string, profile vault.ProfileData) string {
	city := strings.ReplaceAll(strings.ToLower(profile.City), " ", "-")
	replacer := strings.NewReplacer(
		"{first}", strings.ToLower(profile.FirstName),
		"{last}", strings.ToLower(profile.LastName),
		"{state}", strings.ToLower(profile.Region),
		"{city}", city,
	)
	return replacer.Replace(template)
}

func marshalExtractedData(data ExtractedData) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
