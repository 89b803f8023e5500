package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/broker"
	"github.com/infiniteinsight/spectral/internal/browser"
	"github.com/infiniteinsight/spectral/internal/db"
	"github.com/infiniteinsight/spectral/internal/repositories"
	"github.com/infiniteinsight/spectral/internal/scanner"
	"github.com/infiniteinsight/spectral/internal/scheduler"
	"github.com/infiniteinsight/spectral/internal/vault"
)

type countingVerifier struct {
	calls int
}

func (c *countingVerifier) PollSubmitted(ctx context.Context) error {
	c.calls++
	return nil
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

func TestStartCreatesDefaultStandingJobs(t *testing.T) {
	v := newTestVault(t)
	database, err := v.DB()
	if err != nil {
		t.Fatalf("get vault db: %v", err)
	}
	jobs := repositories.NewScheduledJobRepository(database)

	registry := broker.NewRegistry()
	scanJobs := repositories.NewScanJobRepository(database)
	brokerScans := repositories.NewBrokerScanRepository(database)
	findings := repositories.NewFindingRepository(database)
	orch := scanner.New(registry, scanJobs, brokerScans, findings, browser.NewFakeActions(), zap.NewNop())

	s, err := scheduler.New(jobs, v, orch, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	defer s.Stop()

	all, err := jobs.List(context.Background())
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 standing jobs, got %d", len(all))
	}

	scanAll, err := jobs.GetByType(context.Background(), db.ScheduledJobTypeScanAll)
	if err != nil {
		t.Fatalf("get scan_all job: %v", err)
	}
	if scanAll.IntervalDays != 30 || !scanAll.Enabled {
		t.Fatalf("unexpected scan_all job: %+v", scanAll)
	}

	verifyRemovals, err := jobs.GetByType(context.Background(), db.ScheduledJobTypeVerifyRemovals)
	if err != nil {
		t.Fatalf("get verify_removals job: %v", err)
	}
	if verifyRemovals.IntervalDays != 1 || !verifyRemovals.Enabled {
		t.Fatalf("unexpected verify_removals job: %+v", verifyRemovals)
	}
}

func TestRunJobNowAdvancesNextRunAt(t *testing.T) {
	v := newTestVault(t)
	database, err := v.DB()
	if err != nil {
		t.Fatalf("get vault db: %v", err)
	}
	jobs := repositories.NewScheduledJobRepository(database)

	registry := broker.NewRegistry()
	scanJobs := repositories.NewScanJobRepository(database)
	brokerScans := repositories.NewBrokerScanRepository(database)
	findings := repositories.NewFindingRepository(database)
	orch := scanner.New(registry, scanJobs, brokerScans, findings, browser.NewFakeActions(), zap.NewNop())

	verifier := &countingVerifier{}
	s, err := scheduler.New(jobs, v, orch, verifier, zap.NewNop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	defer s.Stop()

	before, err := jobs.GetByType(context.Background(), db.ScheduledJobTypeVerifyRemovals)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	originalNextRun := before.NextRunAt

	if err := s.RunJobNow(context.Background(), db.ScheduledJobTypeVerifyRemovals); err != nil {
		t.Fatalf("run job now: %v", err)
	}

	if verifier.calls != 1 {
		t.Fatalf("expected verifier to be polled once, got %d calls", verifier.calls)
	}

	after, err := jobs.GetByType(context.Background(), db.ScheduledJobTypeVerifyRemovals)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if !after.NextRunAt.After(originalNextRun) {
		t.Fatalf("expected next_run_at to advance: before=%v after=%v", originalNextRun, after.NextRunAt)
	}
	if after.LastRunAt == nil {
		t.Fatalf("expected last_run_at to be set")
	}
}

func TestUpdateJobDisablingPushesNextRunFar(t *testing.T) {
	v := newTestVault(t)
	database, err := v.DB()
	if err != nil {
		t.Fatalf("get vault db: %v", err)
	}
	jobs := repositories.NewScheduledJobRepository(database)

	registry := broker.NewRegistry()
	scanJobs := repositories.NewScanJobRepository(database)
	brokerScans := repositories.NewBrokerScanRepository(database)
	findings := repositories.NewFindingRepository(database)
	orch := scanner.New(registry, scanJobs, brokerScans, findings, browser.NewFakeActions(), zap.NewNop())

	s, err := scheduler.New(jobs, v, orch, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	defer s.Stop()

	job, err := jobs.GetByType(context.Background(), db.ScheduledJobTypeScanAll)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}

	if err := s.UpdateJob(context.Background(), job.ID, 30, false); err != nil {
		t.Fatalf("update job: %v", err)
	}

	updated, err := jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if updated.Enabled {
		t.Fatalf("expected job to be disabled")
	}
	if updated.NextRunAt.Before(time.Now().AddDate(50, 0, 0)) {
		t.Fatalf("expected next_run_at to be pushed far into the future, got %v", updated.NextRunAt)
	}
}

func TestUpdateJobUnknownIDReturnsNotFound(t *testing.T) {
	v := newTestVault(t)
	database, err := v.DB()
	if err != nil {
		t.Fatalf("get vault db: %v", err)
	}
	jobs := repositories.NewScheduledJobRepository(database)

	registry := broker.NewRegistry()
	scanJobs := repositories.NewScanJobRepository(database)
	brokerScans := repositories.NewBrokerScanRepository(database)
	findings := repositories.NewFindingRepository(database)
	orch := scanner.New(registry, scanJobs, brokerScans, findings, browser.NewFakeActions(), zap.NewNop())

	s, err := scheduler.New(jobs, v, orch, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if err := s.UpdateJob(context.Background(), uuid.New(), 7, true); err == nil {
		t.Fatalf("expected an error for an unknown job id")
	}
}
