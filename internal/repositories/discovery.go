package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/infiniteinsight/spectral/internal/db"
)

type gormDiscoveryFindingRepository struct {
	database *gorm.DB
}

// NewDiscoveryFindingRepository returns a DiscoveryFindingRepository backed
// by the given *gorm.DB.
func NewDiscoveryFindingRepository(database *gorm.DB) DiscoveryFindingRepository {
	return &gormDiscoveryFindingRepository{database: database}
}

func (r *gormDiscoveryFindingRepository) Create(ctx context.Context, finding *db.DiscoveryFinding) error {
	if err := r.database.WithContext(ctx).Create(finding).Error; err != nil {
		return fmt.Errorf("discoveryfindings: create: %w", err)
	}
	return nil
}

func (r *gormDiscoveryFindingRepository) ListUnremediated(ctx context.Context) ([]db.DiscoveryFinding, error) {
	var findings []db.DiscoveryFinding
	if err := r.database.WithContext(ctx).
		Where("remediated = ?", false).
		Order("created_at DESC").
		Find(&findings).Error; err != nil {
		return nil, fmt.Errorf("discoveryfindings: list unremediated: %w", err)
	}
	return findings, nil
}

func (r *gormDiscoveryFindingRepository) List(ctx context.Context, opts ListOptions) ([]db.DiscoveryFinding, error) {
	var findings []db.DiscoveryFinding
	q := r.database.WithContext(ctx).Order("created_at DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := q.Find(&findings).Error; err != nil {
		return nil, fmt.Errorf("discoveryfindings: list: %w", err)
	}
	return findings, nil
}

func (r *gormDiscoveryFindingRepository) MarkRemediated(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.database.WithContext(ctx).
		Model(&db.DiscoveryFinding{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"remediated": true, "remediated_at": at})
	if result.Error != nil {
		return fmt.Errorf("discoveryfindings: mark remediated: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
