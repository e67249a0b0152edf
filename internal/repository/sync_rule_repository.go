package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/trungvu/bridge-worker/internal/models"
	"gorm.io/gorm"
)

type SyncRuleRepository struct {
	db *gorm.DB
}

func NewSyncRuleRepository(db *gorm.DB) *SyncRuleRepository {
	return &SyncRuleRepository{db: db}
}

// ListEnabled retrieves enabled rules covering the given kind, highest
// priority first. Ties break on creation order for stable evaluation.
func (r *SyncRuleRepository) ListEnabled(ctx context.Context, kind models.MappingKind) ([]models.SyncRule, error) {
	var rules []models.SyncRule
	result := r.db.WithContext(ctx).
		Where("enabled = ? AND target_kind IN ?", true, []string{string(kind), models.RuleTargetBoth}).
		Order("priority DESC, created_at ASC").
		Find(&rules)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query sync rules: %w", result.Error)
	}
	return rules, nil
}

// RecordTrigger increments a rule's trigger counter and stamps the trigger
// time. Safe under concurrent evaluations.
func (r *SyncRuleRepository) RecordTrigger(ctx context.Context, ruleID string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.SyncRule{}).
		Where("id = ?", ruleID).
		Updates(map[string]interface{}{
			"trigger_count":     gorm.Expr("trigger_count + 1"),
			"last_triggered_at": &now,
			"updated_at":        now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record rule trigger: %w", result.Error)
	}
	return nil
}
