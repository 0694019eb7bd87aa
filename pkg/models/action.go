package models

import (
	"fmt"
	"time"
)

// ActionType identifies the optimization strategy an action belongs to
type ActionType string

const (
	ActionScaleToZero  ActionType = "scale_to_zero"
	ActionRightsize    ActionType = "rightsize"
	ActionCostOptimize ActionType = "cost_optimize"
)

// ActionStatus tracks the lifecycle of an action
type ActionStatus string

const (
	StatusPending    ActionStatus = "pending"
	StatusExecuting  ActionStatus = "executing"
	StatusCompleted  ActionStatus = "completed"
	StatusFailed     ActionStatus = "failed"
	StatusRolledBack ActionStatus = "rolled_back"
)

// RiskLevel represents the risk of executing an action
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// StateMap is a snapshot of observed or desired workload values.
// Values are scalars (numbers, strings, bools) so Copy is a key copy.
type StateMap map[string]interface{}

// Copy returns an independent copy of the state map
func (s StateMap) Copy() StateMap {
	if s == nil {
		return nil
	}
	out := make(StateMap, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Int64 reads a numeric state value, tolerating the numeric types
// that survive a JSON round trip
func (s StateMap) Int64(key string) (int64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// Float64 reads a numeric state value
func (s StateMap) Float64(key string) (float64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// RollbackOp is one templated step of a rollback procedure
type RollbackOp struct {
	Operation string   `json:"operation"` // e.g. restore_replicas, restore_resources
	Params    StateMap `json:"params"`
}

// RollbackPlan captures everything needed to restore a workload to its
// pre-mutation state. It is built when the action is proposed, not when it
// executes, so rollback is possible even if execution never starts.
type RollbackPlan struct {
	OriginalState      StateMap      `json:"original_state"`
	Operations         []RollbackOp  `json:"operations"`
	VerificationChecks []string      `json:"verification_checks"`
	Timeout            time.Duration `json:"timeout"`
}

// OptimizationAction is one proposed, independently executable mutation
// against a workload.
type OptimizationAction struct {
	ID                 string        `json:"id"`
	Strategy           string        `json:"strategy"`
	Workload           string        `json:"workload"`
	Namespace          string        `json:"namespace"`
	Type               ActionType    `json:"action_type"`
	CurrentState       StateMap      `json:"current_state"`
	TargetState        StateMap      `json:"target_state"`
	EstimatedSavings   float64       `json:"estimated_savings"` // USD/month, never negative
	Risk               RiskLevel     `json:"risk_level"`
	Confidence         float64       `json:"confidence"` // 0..1
	PrerequisiteChecks []string      `json:"prerequisite_checks"`
	Rollback           *RollbackPlan `json:"rollback_plan"`
	CreatedAt          time.Time     `json:"created_at"`
	Status             ActionStatus  `json:"status"`
}

// validTransitions encodes the one-way action lifecycle:
// pending -> executing -> completed|failed -> rolled_back.
// An action never re-enters pending.
var validTransitions = map[ActionStatus][]ActionStatus{
	StatusPending:   {StatusExecuting},
	StatusExecuting: {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRolledBack},
	StatusFailed:    {StatusRolledBack},
}

// Transition advances the action status, rejecting any move the lifecycle
// does not allow
func (a *OptimizationAction) Transition(to ActionStatus) error {
	for _, allowed := range validTransitions[a.Status] {
		if allowed == to {
			a.Status = to
			return nil
		}
	}
	return fmt.Errorf("invalid status transition %s -> %s for action %s", a.Status, to, a.ID)
}

// Validate checks the fields an executor needs before touching the cluster
func (a *OptimizationAction) Validate() error {
	if a.Workload == "" {
		return fmt.Errorf("action %s: workload name is required", a.ID)
	}
	if a.Namespace == "" {
		return fmt.Errorf("action %s: namespace is required", a.ID)
	}
	switch a.Type {
	case ActionScaleToZero, ActionRightsize, ActionCostOptimize:
	default:
		return fmt.Errorf("action %s: unknown action type %q", a.ID, a.Type)
	}
	return nil
}
