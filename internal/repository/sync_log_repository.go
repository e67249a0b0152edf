package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/trungvu/bridge-worker/internal/models"
	"gorm.io/gorm"
)

type SyncLogRepository struct {
	db *gorm.DB
}

func NewSyncLogRepository(db *gorm.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Append writes one audit entry for a mapping transition attempt
func (r *SyncLogRepository) Append(ctx context.Context, mappingID, action, status, message string, metadata models.JSONB) error {
	entry := models.SyncLogEntry{
		ID:        uuid.NewString(),
		MappingID: mappingID,
		Action:    action,
		Status:    status,
		Message:   message,
		Metadata:  metadata,
	}
	result := r.db.WithContext(ctx).Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("failed to append sync log entry: %w", result.Error)
	}
	return nil
}

// ListByMapping retrieves the audit trail for one mapping, newest first
func (r *SyncLogRepository) ListByMapping(ctx context.Context, mappingID string, limit int) ([]models.SyncLogEntry, error) {
	var entries []models.SyncLogEntry
	query := r.db.WithContext(ctx).
		Where("mapping_id = ?", mappingID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query sync log entries: %w", result.Error)
	}
	return entries, nil
}
