package models

import "time"

type MappingKind string

const (
	KindCustomer MappingKind = "customer"
	KindProduct  MappingKind = "product"
)

type MappingStatus string

const (
	MappingPendingApproval MappingStatus = "pending_approval"
	MappingPending         MappingStatus = "pending"
	MappingSynced          MappingStatus = "synced"
	MappingFailed          MappingStatus = "failed"
)

// Mapping links one source-platform record to one target-platform record.
// source_id carries a unique index: re-running the matcher over the same
// snapshot can never create a second mapping for the same source record.
type Mapping struct {
	ID              string        `gorm:"column:id;primaryKey"`
	Kind            MappingKind   `gorm:"column:kind;index"`
	SourceID        string        `gorm:"column:source_id;uniqueIndex"`
	TargetID        *string       `gorm:"column:target_id;index"`
	SourceName      string        `gorm:"column:source_name"`
	TargetName      string        `gorm:"column:target_name"`
	Status          MappingStatus `gorm:"column:status;index"`
	LastSyncedAt    *time.Time    `gorm:"column:last_synced_at"`
	LastSyncedValue *float64      `gorm:"column:last_synced_value"`
	SyncError       *string       `gorm:"column:sync_error"`
	SyncAttempts    int           `gorm:"column:sync_attempts"`
	CreatedAt       time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Mapping) TableName() string {
	return "mapping"
}
