package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Rule condition operators
const (
	OpEquals      = "eq"
	OpNotEquals   = "neq"
	OpGreater     = "gt"
	OpGreaterEq   = "gte"
	OpLess        = "lt"
	OpLessEq      = "lte"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpIsEmpty     = "is_empty"
	OpIsNotEmpty  = "is_not_empty"
)

// Rule action types
const (
	ActionSkipSync         = "SKIP_SYNC"
	ActionRequireApproval  = "REQUIRE_APPROVAL"
	ActionAddTag           = "ADD_TAG"
	ActionRemoveTag        = "REMOVE_TAG"
	ActionSendNotification = "SEND_NOTIFICATION"
	ActionLog              = "LOG"
)

// Condition combinators
const (
	CombineAnd = "AND"
	CombineOr  = "OR"
)

// RuleTargetBoth applies a rule to customer and product mappings alike.
const RuleTargetBoth = "both"

type RuleCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

type RuleAction struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// ConditionList is stored as a JSONB column, order preserved.
type ConditionList []RuleCondition

// Value implements driver.Valuer for ConditionList
func (c ConditionList) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner for ConditionList
func (c *ConditionList) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, c)
}

// ActionList is stored as a JSONB column, order preserved.
type ActionList []RuleAction

// Value implements driver.Valuer for ActionList
func (a ActionList) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner for ActionList
func (a *ActionList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, a)
}

// SyncRule gates and augments sync behavior. Rules are evaluated for every
// mapping of the matching kind, highest priority first; all matching rules
// contribute to the merged outcome.
type SyncRule struct {
	ID                string        `gorm:"column:id;primaryKey"`
	Name              string        `gorm:"column:name"`
	Enabled           bool          `gorm:"column:enabled;index"`
	Priority          int           `gorm:"column:priority"`
	TargetKind        string        `gorm:"column:target_kind"`
	Conditions        ConditionList `gorm:"column:conditions;type:jsonb"`
	ConditionOperator string        `gorm:"column:condition_operator"`
	Actions           ActionList    `gorm:"column:actions;type:jsonb"`
	TriggerCount      int           `gorm:"column:trigger_count"`
	LastTriggeredAt   *time.Time    `gorm:"column:last_triggered_at"`
	CreatedAt         time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (SyncRule) TableName() string {
	return "sync_rule"
}

// AppliesTo reports whether the rule covers mappings of the given kind.
func (r SyncRule) AppliesTo(kind MappingKind) bool {
	return r.TargetKind == RuleTargetBoth || r.TargetKind == string(kind)
}
