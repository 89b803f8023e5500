// Package repositories collects the GORM-backed data access objects for
// everything in the vault schema that isn't a Profile (handled directly by
// internal/vault, since profile blobs need the vault's freshly-derived key
// before any repository call can run). Each repository is a thin interface
// around a *gorm.DB so callers can be tested against an in-memory sqlite
// instance without touching disk.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/infiniteinsight/spectral/internal/cipher"
	"github.com/infiniteinsight/spectral/internal/db"
)

// ListOptions contains common pagination options for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// -----------------------------------------------------------------------------
// ScanJobRepository
// -----------------------------------------------------------------------------

type ScanJobRepository interface {
	Create(ctx context.Context, job *db.ScanJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.ScanJob, error)
	ListByProfile(ctx context.Context, profileID string, opts ListOptions) ([]db.ScanJob, error)

	// IncrementCompleted atomically bumps completed_brokers by one and, if
	// the running total now equals total_brokers, marks the job Completed
	// with completed_at set. Returns the refreshed row.
	IncrementCompleted(ctx context.Context, id uuid.UUID) (*db.ScanJob, error)

	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// -----------------------------------------------------------------------------
// BrokerScanRepository
// -----------------------------------------------------------------------------

type BrokerScanRepository interface {
	Create(ctx context.Context, scan *db.BrokerScan) error
	Update(ctx context.Context, scan *db.BrokerScan) error
	ListByScanJob(ctx context.Context, scanJobID uuid.UUID) ([]db.BrokerScan, error)
	ListByStatus(ctx context.Context, scanJobID uuid.UUID, status string) ([]db.BrokerScan, error)
}

// -----------------------------------------------------------------------------
// FindingRepository
// -----------------------------------------------------------------------------

type FindingRepository interface {
	// Create inserts a finding. If a row already exists for the same
	// (broker_scan_id, listing_url) pair, Create returns ErrConflict and the
	// caller should skip it rather than treat it as a hard failure.
	Create(ctx context.Context, finding *db.Finding) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Finding, error)
	ListByProfile(ctx context.Context, profileID string, opts ListOptions) ([]db.Finding, error)
	ListByStatus(ctx context.Context, profileID, status string) ([]db.Finding, error)
	UpdateVerification(ctx context.Context, id uuid.UUID, status, verifiedBy string, verifiedAt time.Time) error
	AttachRemovalAttempt(ctx context.Context, id uuid.UUID, removalAttemptID uuid.UUID) error

	// ListConfirmedWithoutRemoval returns every Confirmed finding belonging
	// to scanJobID (via its broker scan) that has no removal_attempt_id yet
	// — the selection submit_removals_for_confirmed batches.
	ListConfirmedWithoutRemoval(ctx context.Context, scanJobID uuid.UUID) ([]db.Finding, error)
}

// -----------------------------------------------------------------------------
// RemovalAttemptRepository
// -----------------------------------------------------------------------------

type RemovalAttemptRepository interface {
	Create(ctx context.Context, attempt *db.RemovalAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.RemovalAttempt, error)
	Update(ctx context.Context, attempt *db.RemovalAttempt) error
	ListByStatus(ctx context.Context, status string) ([]db.RemovalAttempt, error)
	ListByFinding(ctx context.Context, findingID uuid.UUID) ([]db.RemovalAttempt, error)
}

// -----------------------------------------------------------------------------
// DiscoveryFindingRepository
// -----------------------------------------------------------------------------

type DiscoveryFindingRepository interface {
	Create(ctx context.Context, finding *db.DiscoveryFinding) error
	ListUnremediated(ctx context.Context) ([]db.DiscoveryFinding, error)
	List(ctx context.Context, opts ListOptions) ([]db.DiscoveryFinding, error)
	MarkRemediated(ctx context.Context, id uuid.UUID, at time.Time) error
}

// -----------------------------------------------------------------------------
// ScheduledJobRepository
// -----------------------------------------------------------------------------

type ScheduledJobRepository interface {
	Create(ctx context.Context, job *db.ScheduledJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.ScheduledJob, error)
	GetByType(ctx context.Context, jobType string) (*db.ScheduledJob, error)
	List(ctx context.Context) ([]db.ScheduledJob, error)
	ListDue(ctx context.Context, now time.Time) ([]db.ScheduledJob, error)
	Update(ctx context.Context, job *db.ScheduledJob) error
	RecordRun(ctx context.Context, id uuid.UUID, ranAt, nextRunAt time.Time) error
}

// -----------------------------------------------------------------------------
// AuditEntryRepository — append only: no Update or Delete method exists.
// -----------------------------------------------------------------------------

type AuditEntryRepository interface {
	Create(ctx context.Context, entry *db.AuditEntry) error
	List(ctx context.Context, opts ListOptions) ([]db.AuditEntry, error)
	ListByPermission(ctx context.Context, permission string, opts ListOptions) ([]db.AuditEntry, error)
}

// -----------------------------------------------------------------------------
// SettingsRepository
// -----------------------------------------------------------------------------

type SettingsRepository interface {
	Get(ctx context.Context, key string) (*db.Setting, error)
	Set(ctx context.Context, key string, value cipher.EncryptedString) error
	GetMany(ctx context.Context, prefix string) ([]db.Setting, error)
	Delete(ctx context.Context, key string) error
}
