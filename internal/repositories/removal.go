package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/infiniteinsight/spectral/internal/db"
)

type gormRemovalAttemptRepository struct {
	database *gorm.DB
}

// NewRemovalAttemptRepository returns a RemovalAttemptRepository backed by
// the given *gorm.DB.
func NewRemovalAttemptRepository(database *gorm.DB) RemovalAttemptRepository {
	return &gormRemovalAttemptRepository{database: database}
}

func (r *gormRemovalAttemptRepository) Create(ctx context.Context, attempt *db.RemovalAttempt) error {
	if err := r.database.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("removalattempts: create: %w", err)
	}
	return nil
}

func (r *gormRemovalAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.RemovalAttempt, error) {
	var attempt db.RemovalAttempt
	if err := r.database.WithContext(ctx).First(&attempt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("removalattempts: get by id: %w", err)
	}
	return &attempt, nil
}

func (r *gormRemovalAttemptRepository) Update(ctx context.Context, attempt *db.RemovalAttempt) error {
	if err := r.database.WithContext(ctx).Save(attempt).Error; err != nil {
		return fmt.Errorf("removalattempts: update: %w", err)
	}
	return nil
}

func (r *gormRemovalAttemptRepository) ListByStatus(ctx context.Context, status string) ([]db.RemovalAttempt, error) {
	var attempts []db.RemovalAttempt
	if err := r.database.WithContext(ctx).Where("status = ?", status).Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("removalattempts: list by status: %w", err)
	}
	return attempts, nil
}

func (r *gormRemovalAttemptRepository) ListByFinding(ctx context.Context, findingID uuid.UUID) ([]db.RemovalAttempt, error) {
	var attempts []db.RemovalAttempt
	if err := r.database.WithContext(ctx).
		Where("finding_id = ?", findingID).
		Order("created_at DESC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("removalattempts: list by finding: %w", err)
	}
	return attempts, nil
}
