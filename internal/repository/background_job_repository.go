package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trungvu/bridge-worker/internal/models"
	"gorm.io/gorm"
)

type BackgroundJobRepository struct {
	db *gorm.DB
}

func NewBackgroundJobRepository(db *gorm.DB) *BackgroundJobRepository {
	return &BackgroundJobRepository{db: db}
}

// CancelRunning marks every still-running job of a kind cancelled and
// returns how many were displaced. Single-flight per kind hangs off this.
func (r *BackgroundJobRepository) CancelRunning(ctx context.Context, kind string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.BackgroundJob{}).
		Where("kind = ? AND status = ?", kind, models.JobRunning).
		Updates(map[string]interface{}{
			"status":     models.JobCancelled,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cancel running jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Create inserts a new running job row
func (r *BackgroundJobRepository) Create(ctx context.Context, kind string, total int) (*models.BackgroundJob, error) {
	now := time.Now()
	job := models.BackgroundJob{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    models.JobRunning,
		Total:     total,
		StartedAt: &now,
	}
	result := r.db.WithContext(ctx).Create(&job)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create background job: %w", result.Error)
	}
	return &job, nil
}

// GetByID retrieves a single job
func (r *BackgroundJobRepository) GetByID(ctx context.Context, id string) (*models.BackgroundJob, error) {
	var job models.BackgroundJob
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get background job: %w", result.Error)
	}
	return &job, nil
}

// IncrementProgress atomically bumps the progress counters. Parallel batch
// workers call this concurrently; the increments happen in SQL, not in a
// read-modify-write cycle.
func (r *BackgroundJobRepository) IncrementProgress(ctx context.Context, id string, processed, successful, failed int) error {
	result := r.db.WithContext(ctx).Model(&models.BackgroundJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":  gorm.Expr("processed + ?", processed),
			"successful": gorm.Expr("successful + ?", successful),
			"failed":     gorm.Expr("failed + ?", failed),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to increment job progress: %w", result.Error)
	}
	return nil
}

// Finish sets the terminal status. A job that was cancelled by a newer run
// of the same kind keeps its cancelled status.
func (r *BackgroundJobRepository) Finish(ctx context.Context, id string, status models.JobStatus, jobError *string, metadata models.JSONB) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.BackgroundJob{}).
		Where("id = ? AND status = ?", id, models.JobRunning).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": &now,
			"error":        jobError,
			"metadata":     metadata,
			"updated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish background job: %w", result.Error)
	}
	return nil
}
