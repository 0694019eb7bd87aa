package models

import "time"

// PlanStatus tracks the lifecycle of a plan
type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanExecuting PlanStatus = "executing"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// OptimizationPlan is an ordered batch of actions produced by analyzing a
// cluster. Immutable once created except for Status.
type OptimizationPlan struct {
	ID               string                `json:"id"`
	ClusterID        string                `json:"cluster_id"`
	CreatedAt        time.Time             `json:"created_at"`
	Actions          []*OptimizationAction `json:"actions"`
	EstimatedSavings float64               `json:"estimated_savings"` // sum over actions
	RiskAssessment   RiskLevel             `json:"risk_assessment"`
	SafetyChecks     []string              `json:"safety_checks"`
	Status           PlanStatus            `json:"status"`
}

// AggregateRisk computes overall plan risk: high if any action is high risk,
// medium if more than 30% of actions are medium risk, otherwise low.
func AggregateRisk(actions []*OptimizationAction) RiskLevel {
	if len(actions) == 0 {
		return RiskLow
	}
	medium := 0
	for _, a := range actions {
		switch a.Risk {
		case RiskHigh:
			return RiskHigh
		case RiskMedium:
			medium++
		}
	}
	if float64(medium)/float64(len(actions)) > 0.30 {
		return RiskMedium
	}
	return RiskLow
}
