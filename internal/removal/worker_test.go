package removal_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/broker"
	"github.com/infiniteinsight/spectral/internal/browser"
	"github.com/infiniteinsight/spectral/internal/db"
	"github.com/infiniteinsight/spectral/internal/removal"
	"github.com/infiniteinsight/spectral/internal/repositories"
	"github.com/infiniteinsight/spectral/internal/vault"
)

func strPtr(s string) *string { return &s }

type fakeSender struct {
	sentTo      string
	sentSubject string
	sentBody    string
	err         error
}

func (s *fakeSender) Send(ctx context.Context, to, subject, body string) error {
	s.sentTo = to
	s.sentSubject = subject
	s.sentBody = body
	return s.err
}

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	dataDir := t.TempDir()
	v, err := vault.Create(dataDir, "test-vault", "Test Vault", "correct horse battery staple", zap.NewNop())
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	return v
}

func webFormDefinition() broker.Definition {
	return broker.Definition{
		Broker: broker.Metadata{ID: "optout-broker", Domain: "optout.example.com"},
		Removal: broker.RemovalMethod{
			Kind: broker.RemovalWebForm,
			URL:  "https://optout.example.com/remove",
			Fields: map[string]string{
				"listing_url": "listing_url",
				"email":       "email",
			},
			FormSelectors: &broker.FormSelectors{
				ListingURLInput:  strPtr("#listing-url"),
				EmailInput:       strPtr("#email"),
				FirstNameInput:   strPtr("#first-name"),
				LastNameInput:    strPtr("#last-name"),
				SubmitButton:     "#submit",
				SuccessIndicator: strPtr(".success-message"),
			},
		},
	}
}

// TestWorkerSubmitsConfirmedFindingViaWebForm exercises the full pipeline:
// a Confirmed finding with no removal attempt is picked up by
// SubmitRemovalsForConfirmed, processed by ProcessBatch, and ends up
// Submitted once the fake browser reports a success indicator.
func TestWorkerSubmitsConfirmedFindingViaWebForm(t *testing.T) {
	v := newTestVault(t)
	database, err := v.DB()
	if err != nil {
		t.Fatalf("get vault db: %v", err)
	}

	profileID, err := v.SaveProfile("", vault.ProfileData{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
	})
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}

	scanJobs := repositories.NewScanJobRepository(database)
	brokerScans := repositories.NewBrokerScanRepository(database)
	findings := repositories.NewFindingRepository(database)
	attempts := repositories.NewRemovalAttemptRepository(database)

	job := &db.ScanJob{ProfileID: profileID, StartedAt: time.Now().UTC(), Status: db.ScanJobStatusInProgress, TotalBrokers: 1}
	if err := scanJobs.Create(context.Background(), job); err != nil {
		t.Fatalf("create scan job: %v", err)
	}
	scan := &db.BrokerScan{ScanJobID: job.ID, BrokerID: "optout-broker", Status: db.BrokerScanStatusSuccess}
	if err := brokerScans.Create(context.Background(), scan); err != nil {
		t.Fatalf("create broker scan: %v", err)
	}
	finding := &db.Finding{
		BrokerScanID:       scan.ID,
		BrokerID:           "optout-broker",
		ProfileID:          profileID,
		ListingURL:         "https://optout.example.com/profile/jane-doe",
		VerificationStatus: db.FindingStatusConfirmed,
		DiscoveredAt:       time.Now().UTC(),
	}
	if err := findings.Create(context.Background(), finding); err != nil {
		t.Fatalf("create finding: %v", err)
	}

	registry := broker.NewRegistry()
	registry.Add(webFormDefinition())

	fake := browser.NewFakeActions()
	fake.SetPage("https://optout.example.com/remove", `<html><body><div class="success-message">Request received</div></body></html>`)

	webform := removal.NewWebFormSubmitter(fake)
	worker := removal.NewWorker(registry, attempts, findings, v, webform, nil, zap.NewNop()).WithConcurrency(1)

	ids, err := worker.SubmitRemovalsForConfirmed(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("submit removals for confirmed: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one created attempt, got %d", len(ids))
	}

	worker.ProcessBatch(context.Background(), ids)

	attempt, err := attempts.GetByID(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if attempt.Status != db.RemovalStatusSubmitted {
		t.Fatalf("expected attempt to be Submitted, got %q (error=%q)", attempt.Status, attempt.ErrorMessage)
	}
	if attempt.SubmittedAt == nil {
		t.Fatalf("expected submitted_at to be set")
	}

	submissions := fake.Submissions()
	if len(submissions) != 1 {
		t.Fatalf("expected one form submission, got %d", len(submissions))
	}
	if submissions[0].Fields["#email"] != "jane@example.com" {
		t.Fatalf("unexpected submitted fields: %+v", submissions[0].Fields)
	}

	updatedFinding, err := findings.GetByID(context.Background(), finding.ID)
	if err != nil {
		t.Fatalf("get finding: %v", err)
	}
	if updatedFinding.RemovalAttemptID == nil || *updatedFinding.RemovalAttemptID != ids[0] {
		t.Fatalf("expected finding to be linked to the removal attempt, got %+v", updatedFinding.RemovalAttemptID)
	}
}

// TestWorkerQuarantinesCaptchaRequiredAttempt confirms a CAPTCHA response
// leaves the attempt Pending with the quarantine prefix rather than
// Failed, and that a second ProcessBatch call doesn't resubmit it.
func TestWorkerQuarantinesCaptchaRequiredAttempt(t *testing.T) {
	v := newTestVault(t)
	database, err := v.DB()
	if err != nil {
		t.Fatalf("get vault db: %v", err)
	}

	profileID, err := v.SaveProfile("", vault.ProfileData{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"})
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}

	scanJobs := repositories.NewScanJobRepository(database)
	brokerScans := repositories.NewBrokerScanRepository(database)
	findings := repositories.NewFindingRepository(database)
	attempts := repositories.NewRemovalAttemptRepository(database)

	job := &db.ScanJob{ProfileID: profileID, StartedAt: time.Now().UTC(), Status: db.ScanJobStatusInProgress, TotalBrokers: 1}
	if err := scanJobs.Create(context.Background(), job); err != nil {
		t.Fatalf("create scan job: %v", err)
	}
	scan := &db.BrokerScan{ScanJobID: job.ID, BrokerID: "optout-broker", Status: db.BrokerScanStatusSuccess}
	if err := brokerScans.Create(context.Background(), scan); err != nil {
		t.Fatalf("create broker scan: %v", err)
	}
	finding := &db.Finding{
		BrokerScanID:       scan.ID,
		BrokerID:           "optout-broker",
		ProfileID:          profileID,
		ListingURL:         "https://optout.example.com/profile/jane-doe",
		VerificationStatus: db.FindingStatusConfirmed,
		DiscoveredAt:       time.Now().UTC(),
	}
	if err := findings.Create(context.Background(), finding); err != nil {
		t.Fatalf("create finding: %v", err)
	}

	def := webFormDefinition()
	def.Removal.FormSelectors.CaptchaFrame = strPtr(".captcha-frame")
	registry := broker.NewRegistry()
	registry.Add(def)

	fake := browser.NewFakeActions()
	fake.SetPage("https://optout.example.com/remove", `<html><body><div class="captcha-frame"></div></body></html>`)

	webform := removal.NewWebFormSubmitter(fake)
	worker := removal.NewWorker(registry, attempts, findings, v, webform, nil, zap.NewNop()).WithConcurrency(1)

	ids, err := worker.SubmitRemovalsForConfirmed(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("submit removals for confirmed: %v", err)
	}
	worker.ProcessBatch(context.Background(), ids)

	attempt, err := attempts.GetByID(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if attempt.Status != db.RemovalStatusPending {
		t.Fatalf("expected attempt to stay Pending, got %q", attempt.Status)
	}
	if attempt.ErrorMessage != "CAPTCHA_REQUIRED:https://optout.example.com/remove" {
		t.Fatalf("unexpected error message: %q", attempt.ErrorMessage)
	}

	worker.ProcessBatch(context.Background(), ids)
	if len(fake.Submissions()) != 1 {
		t.Fatalf("expected the quarantined attempt not to be resubmitted, got %d submissions", len(fake.Submissions()))
	}
}

func TestWorkerSubmitEmailRemoval(t *testing.T) {
	def := broker.Definition{
		Broker: broker.Metadata{ID: "email-broker", Domain: "email.example.com"},
		Removal: broker.RemovalMethod{
			Kind:         broker.RemovalEmail,
			To:           "privacy@email.example.com",
			Subject:      "Opt-out request for {first_name} {last_name}",
			Body:         "Please remove the listing at {listing_url} for {email}.",
			ResponseDays: 30,
		},
	}

	sender := &fakeSender{}
	outcome, err := removal.SubmitEmail(context.Background(), sender, def, map[string]string{
		"first_name":  "Jane",
		"last_name":   "Doe",
		"email":       "jane@example.com",
		"listing_url": "https://email.example.com/profile/jane-doe",
	})
	if err != nil {
		t.Fatalf("submit email: %v", err)
	}
	if !outcome.IsSuccess() {
		t.Fatalf("expected a Submitted outcome, got %+v", outcome)
	}
	if sender.sentTo != "privacy@email.example.com" {
		t.Fatalf("unexpected recipient: %q", sender.sentTo)
	}
	if sender.sentSubject != "Opt-out request for Jane Doe" {
		t.Fatalf("unexpected subject: %q", sender.sentSubject)
	}
	if sender.sentBody != "Please remove the listing at https://email.example.com/profile/jane-doe for jane@example.com." {
		t.Fatalf("unexpected body: %q", sender.sentBody)
	}
}

func TestWorkerMarksFailedWhenProfileMissingRequiredFields(t *testing.T) {
	v := newTestVault(t)
	database, err := v.DB()
	if err != nil {
		t.Fatalf("get vault db: %v", err)
	}

	profileID, err := v.SaveProfile("", vault.ProfileData{FirstName: "Jane", LastName: "Doe"})
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}

	scanJobs := repositories.NewScanJobRepository(database)
	brokerScans := repositories.NewBrokerScanRepository(database)
	findings := repositories.NewFindingRepository(database)
	attempts := repositories.NewRemovalAttemptRepository(database)

	job := &db.ScanJob{ProfileID: profileID, StartedAt: time.Now().UTC(), Status: db.ScanJobStatusInProgress, TotalBrokers: 1}
	if err := scanJobs.Create(context.Background(), job); err != nil {
		t.Fatalf("create scan job: %v", err)
	}
	scan := &db.BrokerScan{ScanJobID: job.ID, BrokerID: "optout-broker", Status: db.BrokerScanStatusSuccess}
	if err := brokerScans.Create(context.Background(), scan); err != nil {
		t.Fatalf("create broker scan: %v", err)
	}
	finding := &db.Finding{
		BrokerScanID:       scan.ID,
		BrokerID:           "optout-broker",
		ProfileID:          profileID,
		ListingURL:         "https://optout.example.com/profile/jane-doe",
		VerificationStatus: db.FindingStatusConfirmed,
		DiscoveredAt:       time.Now().UTC(),
	}
	if err := findings.Create(context.Background(), finding); err != nil {
		t.Fatalf("create finding: %v", err)
	}

	registry := broker.NewRegistry()
	registry.Add(webFormDefinition())

	fake := browser.NewFakeActions()
	webform := removal.NewWebFormSubmitter(fake)
	worker := removal.NewWorker(registry, attempts, findings, v, webform, nil, zap.NewNop()).WithConcurrency(1)

	ids, err := worker.SubmitRemovalsForConfirmed(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("submit removals for confirmed: %v", err)
	}
	worker.ProcessBatch(context.Background(), ids)

	attempt, err := attempts.GetByID(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if attempt.Status != db.RemovalStatusFailed {
		t.Fatalf("expected attempt to be Failed, got %q", attempt.Status)
	}
	if len(fake.Fetched())+len(fake.Submissions()) != 0 {
		t.Fatalf("expected no browser interaction when the profile is incomplete")
	}
}
