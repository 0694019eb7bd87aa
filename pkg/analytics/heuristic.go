package analytics

import (
	"context"
	"time"
)

// HeuristicPredictor is the in-tree Predictor: a deterministic scoring of
// idleness and over-provisioning. It stands in where no ML service is wired.
type HeuristicPredictor struct{}

func NewHeuristicPredictor() *HeuristicPredictor {
	return &HeuristicPredictor{}
}

// Predict scores confidence from observed idle duration and utilization, and
// prediction value from the over-provisioning headroom. Both saturate at 1.
func (p *HeuristicPredictor) Predict(ctx context.Context, usage WorkloadUsage) (Prediction, error) {
	// Confidence rises with idle time: 8h idle and near-zero utilization
	// scores close to 1.
	idleScore := float64(usage.IdleDuration) / float64(8*time.Hour)
	if idleScore > 1 {
		idleScore = 1
	}
	utilization := (usage.CPUUtilizationPercent + usage.MemoryUtilizationPercent) / 2
	quietScore := 1 - utilization/100
	if quietScore < 0 {
		quietScore = 0
	}
	confidence := 0.7*idleScore + 0.3*quietScore

	// Prediction value tracks how much of the requested footprint is unused
	headroom := 0.0
	if usage.RequestedCPU > 0 {
		headroom += 1 - float64(usage.UsageCPU)/float64(usage.RequestedCPU)
	}
	if usage.RequestedMemory > 0 {
		headroom += 1 - float64(usage.UsageMemory)/float64(usage.RequestedMemory)
	}
	value := headroom / 2
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}

	return Prediction{Confidence: confidence, PredictionValue: value}, nil
}
