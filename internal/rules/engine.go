package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/trungvu/bridge-worker/internal/models"
)

// RuleSource provides the enabled rules for a kind, highest priority
// first, and records trigger stats.
type RuleSource interface {
	ListEnabled(ctx context.Context, kind models.MappingKind) ([]models.SyncRule, error)
	RecordTrigger(ctx context.Context, ruleID string) error
}

// Result is the merged outcome of evaluating every matching rule. Flags
// are OR'd across rules, so the merge is commutative for them; the ordered
// action lists keep priority order and are not.
type Result struct {
	SkipSync        bool
	RequireApproval bool
	ApprovalReason  string
	AddTags         []string
	RemoveTags      []string
	Notifications   []string
	LogMessages     []string
	MatchedRuleIDs  []string
}

type Engine struct {
	rules RuleSource
}

func NewEngine(rules RuleSource) *Engine {
	return &Engine{rules: rules}
}

// Evaluate runs every enabled rule for the kind against the fields and
// folds the matches into one Result. Matching is not short-circuited: a
// later rule still fires, and still counts a trigger, even when an earlier
// rule already decided the skip/approval flags.
func (e *Engine) Evaluate(ctx context.Context, kind models.MappingKind, fields Fields) (Result, error) {
	enabled, err := e.rules.ListEnabled(ctx, kind)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load sync rules: %w", err)
	}

	var result Result
	for _, rule := range enabled {
		if !rule.AppliesTo(kind) {
			continue
		}
		if !RuleMatches(rule, fields) {
			continue
		}

		result = mergeRule(result, rule)

		if err := e.rules.RecordTrigger(ctx, rule.ID); err != nil {
			log.Printf("Warning: failed to record trigger for rule %s: %v", rule.ID, err)
		}
		log.Printf("Rule %q matched (priority %d)", rule.Name, rule.Priority)
	}

	return result, nil
}

// mergeRule folds one matching rule into the accumulated result.
func mergeRule(result Result, rule models.SyncRule) Result {
	result.MatchedRuleIDs = append(result.MatchedRuleIDs, rule.ID)

	for _, action := range rule.Actions {
		switch action.Type {
		case models.ActionSkipSync:
			result.SkipSync = true
		case models.ActionRequireApproval:
			result.RequireApproval = true
			if result.ApprovalReason == "" {
				if reason := paramString(action, "reason"); reason != "" {
					result.ApprovalReason = reason
				} else {
					result.ApprovalReason = rule.Name
				}
			}
		case models.ActionAddTag:
			if tag := paramString(action, "tag"); tag != "" {
				result.AddTags = append(result.AddTags, tag)
			}
		case models.ActionRemoveTag:
			if tag := paramString(action, "tag"); tag != "" {
				result.RemoveTags = append(result.RemoveTags, tag)
			}
		case models.ActionSendNotification:
			if msg := paramString(action, "message"); msg != "" {
				result.Notifications = append(result.Notifications, msg)
			}
		case models.ActionLog:
			if msg := paramString(action, "message"); msg != "" {
				result.LogMessages = append(result.LogMessages, msg)
			}
		}
	}

	return result
}

// paramString reads a string action parameter; missing or non-string
// params read as empty.
func paramString(action models.RuleAction, key string) string {
	if action.Params == nil {
		return ""
	}
	if s, ok := action.Params[key].(string); ok {
		return s
	}
	return ""
}

// RuleMatches reports whether the rule's condition list, under its
// combinator, holds for the fields. A rule with no conditions matches
// unconditionally.
func RuleMatches(rule models.SyncRule, fields Fields) bool {
	if len(rule.Conditions) == 0 {
		return true
	}

	if rule.ConditionOperator == models.CombineOr {
		for _, cond := range rule.Conditions {
			if evalCondition(cond, fields) {
				return true
			}
		}
		return false
	}

	// AND is the default combinator
	for _, cond := range rule.Conditions {
		if !evalCondition(cond, fields) {
			return false
		}
	}
	return true
}

func evalCondition(cond models.RuleCondition, fields Fields) bool {
	value, ok := fields.Get(cond.Field)

	switch cond.Operator {
	case models.OpIsEmpty:
		return !ok || asString(value) == ""
	case models.OpIsNotEmpty:
		return ok && asString(value) != ""
	}

	if !ok {
		return false
	}

	switch cond.Operator {
	case models.OpEquals:
		return compareEqual(value, cond.Value)
	case models.OpNotEquals:
		return !compareEqual(value, cond.Value)
	case models.OpGreater, models.OpGreaterEq, models.OpLess, models.OpLessEq:
		left, lok := asNumber(value)
		right, rok := asNumber(cond.Value)
		if !lok || !rok {
			return false
		}
		switch cond.Operator {
		case models.OpGreater:
			return left > right
		case models.OpGreaterEq:
			return left >= right
		case models.OpLess:
			return left < right
		default:
			return left <= right
		}
	case models.OpContains:
		return strings.Contains(asString(value), asString(cond.Value))
	case models.OpNotContains:
		return !strings.Contains(asString(value), asString(cond.Value))
	case models.OpStartsWith:
		return strings.HasPrefix(asString(value), asString(cond.Value))
	case models.OpEndsWith:
		return strings.HasSuffix(asString(value), asString(cond.Value))
	default:
		return false
	}
}

func compareEqual(left, right interface{}) bool {
	if ln, lok := asNumber(left); lok {
		if rn, rok := asNumber(right); rok {
			return ln == rn
		}
	}
	return asString(left) == asString(right)
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
		return "false"
	case float64:
		return trimFloat(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
