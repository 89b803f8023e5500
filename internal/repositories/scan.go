package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/infiniteinsight/spectral/internal/db"
)

// -----------------------------------------------------------------------------
// ScanJobRepository
// -----------------------------------------------------------------------------

type gormScanJobRepository struct {
	database *gorm.DB
}

// NewScanJobRepository returns a ScanJobRepository backed by the given *gorm.DB.
func NewScanJobRepository(database *gorm.DB) ScanJobRepository {
	return &gormScanJobRepository{database: database}
}

func (r *gormScanJobRepository) Create(ctx context.Context, job *db.ScanJob) error {
	if err := r.database.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("scanjobs: create: %w", err)
	}
	return nil
}

func (r *gormScanJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.ScanJob, error) {
	var job db.ScanJob
	if err := r.database.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanjobs: get by id: %w", err)
	}
	return &job, nil
}

func (r *gormScanJobRepository) ListByProfile(ctx context.Context, profileID string, opts ListOptions) ([]db.ScanJob, error) {
	var jobs []db.ScanJob
	q := r.database.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("started_at DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("scanjobs: list by profile: %w", err)
	}
	return jobs, nil
}

// IncrementCompleted atomically bumps completed_brokers and flips the job to
// Completed once every broker has reported. The increment happens inside a
// transaction so two concurrent broker-scan goroutines finishing at the
// same instant can't race each other's read of completed_brokers.
func (r *gormScanJobRepository) IncrementCompleted(ctx context.Context, id uuid.UUID) (*db.ScanJob, error) {
	var job db.ScanJob
	err := r.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			return err
		}
		job.CompletedBrokers++
		if job.CompletedBrokers >= job.TotalBrokers && job.Status == db.ScanJobStatusInProgress {
			job.Status = db.ScanJobStatusCompleted
			now := time.Now().UTC()
			job.CompletedAt = &now
		}
		return tx.Save(&job).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanjobs: increment completed: %w", err)
	}
	return &job, nil
}

func (r *gormScanJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	result := r.database.WithContext(ctx).
		Model(&db.ScanJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": db.ScanJobStatusFailed, "error_message": reason})
	if result.Error != nil {
		return fmt.Errorf("scanjobs: mark failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------
// BrokerScanRepository
// -----------------------------------------------------------------------------

type gormBrokerScanRepository struct {
	database *gorm.DB
}

// NewBrokerScanRepository returns a BrokerScanRepository backed by the given *gorm.DB.
func NewBrokerScanRepository(database *gorm.DB) BrokerScanRepository {
	return &gormBrokerScanRepository{database: database}
}

func (r *gormBrokerScanRepository) Create(ctx context.Context, scan *db.BrokerScan) error {
	if err := r.database.WithContext(ctx).Create(scan).Error; err != nil {
		return fmt.Errorf("brokerscans: create: %w", err)
	}
	return nil
}

func (r *gormBrokerScanRepository) Update(ctx context.Context, scan *db.BrokerScan) error {
	if err := r.database.WithContext(ctx).Save(scan).Error; err != nil {
		return fmt.Errorf("brokerscans: update: %w", err)
	}
	return nil
}

func (r *gormBrokerScanRepository) ListByScanJob(ctx context.Context, scanJobID uuid.UUID) ([]db.BrokerScan, error) {
	var scans []db.BrokerScan
	if err := r.database.WithContext(ctx).Where("scan_job_id = ?", scanJobID).Find(&scans).Error; err != nil {
		return nil, fmt.Errorf("brokerscans: list by scan job: %w", err)
	}
	return scans, nil
}

func (r *gormBrokerScanRepository) ListByStatus(ctx context.Context, scanJobID uuid.UUID, status string) ([]db.BrokerScan, error) {
	var scans []db.BrokerScan
	if err := r.database.WithContext(ctx).
		Where("scan_job_id = ? AND status = ?", scanJobID, status).
		Find(&scans).Error; err != nil {
		return nil, fmt.Errorf("brokerscans: list by status: %w", err)
	}
	return scans, nil
}

// -----------------------------------------------------------------------------
// FindingRepository
// -----------------------------------------------------------------------------

type gormFindingRepository struct {
	database *gorm.DB
}

// NewFindingRepository returns a FindingRepository backed by the given *gorm.DB.
func NewFindingRepository(database *gorm.DB) FindingRepository {
	return &gormFindingRepository{database: database}
}

func (r *gormFindingRepository) Create(ctx context.Context, finding *db.Finding) error {
	err := r.database.WithContext(ctx).Create(finding).Error
	if err == nil {
		return nil
	}
	if isUniqueConstraintErr(err) {
		return ErrConflict
	}
	return fmt.Errorf("findings: create: %w", err)
}

func (r *gormFindingRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Finding, error) {
	var finding db.Finding
	if err := r.database.WithContext(ctx).First(&finding, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("findings: get by id: %w", err)
	}
	return &finding, nil
}

func (r *gormFindingRepository) ListByProfile(ctx context.Context, profileID string, opts ListOptions) ([]db.Finding, error) {
	var findings []db.Finding
	q := r.database.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("discovered_at DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := q.Find(&findings).Error; err != nil {
		return nil, fmt.Errorf("findings: list by profile: %w", err)
	}
	return findings, nil
}

func (r *gormFindingRepository) ListByStatus(ctx context.Context, profileID, status string) ([]db.Finding, error) {
	var findings []db.Finding
	if err := r.database.WithContext(ctx).
		Where("profile_id = ? AND verification_status = ?", profileID, status).
		Order("discovered_at DESC").
		Find(&findings).Error; err != nil {
		return nil, fmt.Errorf("findings: list by status: %w", err)
	}
	return findings, nil
}

func (r *gormFindingRepository) UpdateVerification(ctx context.Context, id uuid.UUID, status, verifiedBy string, verifiedAt time.Time) error {
	result := r.database.WithContext(ctx).
		Model(&db.Finding{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"verification_status": status,
			"verified_by_user":    verifiedBy,
			"verified_at":         verifiedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("findings: update verification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormFindingRepository) ListConfirmedWithoutRemoval(ctx context.Context, scanJobID uuid.UUID) ([]db.Finding, error) {
	var findings []db.Finding
	err := r.database.WithContext(ctx).
		Joins("JOIN broker_scans ON broker_scans.id = findings.broker_scan_id").
		Where("broker_scans.scan_job_id = ? AND findings.verification_status = ? AND findings.removal_attempt_id IS NULL",
			scanJobID, db.FindingStatusConfirmed).
		Find(&findings).Error
	if err != nil {
		return nil, fmt.Errorf("findings: list confirmed without removal: %w", err)
	}
	return findings, nil
}

func (r *gormFindingRepository) AttachRemovalAttempt(ctx context.Context, id uuid.UUID, removalAttemptID uuid.UUID) error {
	result := r.database.WithContext(ctx).
		Model(&db.Finding{}).
		Where("id = ?", id).
		Update("removal_attempt_id", removalAttemptID)
	if result.Error != nil {
		return fmt.Errorf("findings: attach removal attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueConstraintErr reports whether err looks like a sqlite unique
// constraint violation. modernc.org/sqlite wraps these as plain errors whose
// message contains "UNIQUE constraint failed", so a substring match is the
// portable way to detect the dedupe-key collision without importing the
// driver's internal error type.
func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
