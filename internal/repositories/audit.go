package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/infiniteinsight/spectral/internal/db"
)

// gormAuditEntryRepository is append-only: it exposes Create and two list
// methods and nothing else, matching AuditEntryRepository's contract that
// audit history can never be edited or removed by the application.
type gormAuditEntryRepository struct {
	database *gorm.DB
}

// NewAuditEntryRepository returns an AuditEntryRepository backed by the
// given *gorm.DB.
func NewAuditEntryRepository(database *gorm.DB) AuditEntryRepository {
	return &gormAuditEntryRepository{database: database}
}

func (r *gormAuditEntryRepository) Create(ctx context.Context, entry *db.AuditEntry) error {
	if err := r.database.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("auditentries: create: %w", err)
	}
	return nil
}

func (r *gormAuditEntryRepository) List(ctx context.Context, opts ListOptions) ([]db.AuditEntry, error) {
	var entries []db.AuditEntry
	q := r.database.WithContext(ctx).Order("timestamp DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("auditentries: list: %w", err)
	}
	return entries, nil
}

func (r *gormAuditEntryRepository) ListByPermission(ctx context.Context, permission string, opts ListOptions) ([]db.AuditEntry, error) {
	var entries []db.AuditEntry
	q := r.database.WithContext(ctx).
		Where("permission = ?", permission).
		Order("timestamp DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("auditentries: list by permission: %w", err)
	}
	return entries, nil
}
