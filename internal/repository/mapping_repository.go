package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trungvu/bridge-worker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// RejectedByOperatorError is the fixed sync_error stored on rejected mappings.
const RejectedByOperatorError = "rejected by operator"

// MaxSyncErrorLength bounds stored error strings.
const MaxSyncErrorLength = 500

type MappingRepository struct {
	db *gorm.DB
}

func NewMappingRepository(db *gorm.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Create inserts a mapping, relying on the source_id unique index for
// idempotence. A duplicate insert is not an error: it reports created=false
// so concurrent or repeated matcher runs converge on one row.
func (r *MappingRepository) Create(ctx context.Context, mapping models.Mapping) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}},
			DoNothing: true,
		}).
		Create(&mapping)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create mapping: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetByID retrieves a single mapping
func (r *MappingRepository) GetByID(ctx context.Context, id string) (*models.Mapping, error) {
	var mapping models.Mapping
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&mapping)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mapping: %w", result.Error)
	}
	return &mapping, nil
}

// GetByIDs retrieves mappings by id, preserving only rows that exist
func (r *MappingRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Mapping, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var mappings []models.Mapping
	result := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&mappings)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get mappings: %w", result.Error)
	}
	return mappings, nil
}

// ListByStatuses retrieves mappings of one kind in the given statuses,
// oldest update first so retries are served fairly.
func (r *MappingRepository) ListByStatuses(ctx context.Context, kind models.MappingKind, statuses []models.MappingStatus, limit int) ([]models.Mapping, error) {
	var mappings []models.Mapping
	query := r.db.WithContext(ctx).
		Where("kind = ? AND status IN ?", kind, statuses).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Find(&mappings)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", result.Error)
	}
	return mappings, nil
}

// MappedSourceIDs returns the set of source ids that already have a mapping
// of the given kind. The matcher uses this to restrict itself to unmatched
// source records.
func (r *MappingRepository) MappedSourceIDs(ctx context.Context, kind models.MappingKind) (map[string]bool, error) {
	var ids []string
	result := r.db.WithContext(ctx).Model(&models.Mapping{}).
		Where("kind = ?", kind).
		Pluck("source_id", &ids)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query mapped source ids: %w", result.Error)
	}
	mapped := make(map[string]bool, len(ids))
	for _, id := range ids {
		mapped[id] = true
	}
	return mapped, nil
}

// MarkSynced applies the success transition: status synced, timestamps and
// last pushed value refreshed, error cleared, attempt counter bumped.
func (r *MappingRepository) MarkSynced(ctx context.Context, id string, value float64) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Mapping{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            models.MappingSynced,
			"last_synced_at":    &now,
			"last_synced_value": value,
			"sync_error":        nil,
			"sync_attempts":     gorm.Expr("sync_attempts + 1"),
			"updated_at":        now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark mapping synced: %w", result.Error)
	}
	return nil
}

// MarkFailed applies the failure transition, truncating the stored error.
func (r *MappingRepository) MarkFailed(ctx context.Context, id string, syncError string) error {
	truncated := TruncateError(syncError)
	result := r.db.WithContext(ctx).Model(&models.Mapping{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.MappingFailed,
			"sync_error":    &truncated,
			"sync_attempts": gorm.Expr("sync_attempts + 1"),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark mapping failed: %w", result.Error)
	}
	return nil
}

// Approve moves mappings from pending_approval to pending. Mappings in any
// other status are left untouched; the affected-row count tells the caller
// how many transitions actually happened.
func (r *MappingRepository) Approve(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&models.Mapping{}).
		Where("id IN ? AND status = ?", ids, models.MappingPendingApproval).
		Updates(map[string]interface{}{
			"status":     models.MappingPending,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to approve mappings: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Reject moves mappings from pending_approval to failed with the fixed
// operator-rejection error. Other statuses are left untouched.
func (r *MappingRepository) Reject(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	rejected := RejectedByOperatorError
	result := r.db.WithContext(ctx).Model(&models.Mapping{}).
		Where("id IN ? AND status = ?", ids, models.MappingPendingApproval).
		Updates(map[string]interface{}{
			"status":     models.MappingFailed,
			"sync_error": &rejected,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reject mappings: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// TruncateError bounds an error string for storage.
func TruncateError(msg string) string {
	if len(msg) > MaxSyncErrorLength {
		return msg[:MaxSyncErrorLength]
	}
	return msg
}
