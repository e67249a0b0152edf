package models

import "time"

// Sync log actions
const (
	LogActionMatch   = "match"
	LogActionSync    = "sync"
	LogActionApprove = "approve"
	LogActionReject  = "reject"
)

// Sync log statuses
const (
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
	LogStatusSkipped = "skipped"
)

// SyncLogEntry is the append-only audit trail for a mapping. One entry is
// written for every transition attempt, including failures and rule skips.
type SyncLogEntry struct {
	ID        string    `gorm:"column:id;primaryKey"`
	MappingID string    `gorm:"column:mapping_id;index"`
	Action    string    `gorm:"column:action"`
	Status    string    `gorm:"column:status"`
	Message   string    `gorm:"column:message"`
	Metadata  JSONB     `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (SyncLogEntry) TableName() string {
	return "sync_log_entry"
}
