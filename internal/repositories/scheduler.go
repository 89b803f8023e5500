package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/infiniteinsight/spectral/internal/db"
)

type gormScheduledJobRepository struct {
	database *gorm.DB
}

// NewScheduledJobRepository returns a ScheduledJobRepository backed by the
// given *gorm.DB.
func NewScheduledJobRepository(database *gorm.DB) ScheduledJobRepository {
	return &gormScheduledJobRepository{database: database}
}

func (r *gormScheduledJobRepository) Create(ctx context.Context, job *db.ScheduledJob) error {
	if err := r.database.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("scheduledjobs: create: %w", err)
	}
	return nil
}

func (r *gormScheduledJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.ScheduledJob, error) {
	var job db.ScheduledJob
	if err := r.database.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scheduledjobs: get by id: %w", err)
	}
	return &job, nil
}

func (r *gormScheduledJobRepository) GetByType(ctx context.Context, jobType string) (*db.ScheduledJob, error) {
	var job db.ScheduledJob
	if err := r.database.WithContext(ctx).First(&job, "job_type = ?", jobType).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scheduledjobs: get by type: %w", err)
	}
	return &job, nil
}

func (r *gormScheduledJobRepository) List(ctx context.Context) ([]db.ScheduledJob, error) {
	var jobs []db.ScheduledJob
	if err := r.database.WithContext(ctx).Order("job_type").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("scheduledjobs: list: %w", err)
	}
	return jobs, nil
}

func (r *gormScheduledJobRepository) ListDue(ctx context.Context, now time.Time) ([]db.ScheduledJob, error) {
	var jobs []db.ScheduledJob
	if err := r.database.WithContext(ctx).
		Where("enabled = ? AND next_run_at <= ?", true, now).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("scheduledjobs: list due: %w", err)
	}
	return jobs, nil
}

func (r *gormScheduledJobRepository) Update(ctx context.Context, job *db.ScheduledJob) error {
	if err := r.database.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("scheduledjobs: update: %w", err)
	}
	return nil
}

func (r *gormScheduledJobRepository) RecordRun(ctx context.Context, id uuid.UUID, ranAt, nextRunAt time.Time) error {
	result := r.database.WithContext(ctx).
		Model(&db.ScheduledJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"last_run_at": ranAt, "next_run_at": nextRunAt})
	if result.Error != nil {
		return fmt.Errorf("scheduledjobs: record run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
