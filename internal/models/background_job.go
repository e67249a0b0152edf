package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Background job kinds
const (
	JobKindMatchCustomers = "match_customers"
	JobKindMatchProducts  = "match_products"
	JobKindSyncCustomers  = "sync_customers"
	JobKindSyncProducts   = "sync_products"
	JobKindRetryCustomers = "retry_customers"
	JobKindRetryProducts  = "retry_products"
)

// JSONB type for GORM to handle PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Value implements driver.Valuer for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// BackgroundJob tracks aggregate progress of one long-running batch run.
// Readers poll this row; it is the only inter-process progress channel.
// At most one job per kind is running: starting a new one marks the old
// one cancelled.
type BackgroundJob struct {
	ID          string     `gorm:"column:id;primaryKey"`
	Kind        string     `gorm:"column:kind;index"`
	Status      JobStatus  `gorm:"column:status;index"`
	Total       int        `gorm:"column:total"`
	Processed   int        `gorm:"column:processed"`
	Successful  int        `gorm:"column:successful"`
	Failed      int        `gorm:"column:failed"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	Error       *string    `gorm:"column:error"`
	Metadata    JSONB      `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (BackgroundJob) TableName() string {
	return "background_job"
}

// Terminal reports whether the job can no longer change status.
func (j BackgroundJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}
