// Package analytics defines the usage-feature and prediction boundary the
// optimization engine consumes. Predictions are opaque to the engine: it only
// ever reads the confidence and prediction value, never blocks on how they
// were computed.
package analytics

import (
	"context"
	"time"
)

// WorkloadUsage holds the per-workload features fed to a Predictor and to
// the engine's Action Proposal Policy
type WorkloadUsage struct {
	Workload  string
	Namespace string

	Replicas        int32
	RequestedCPU    int64 // millicores
	RequestedMemory int64 // bytes
	LimitCPU        int64
	LimitMemory     int64
	UsageCPU        int64
	UsageMemory     int64

	CPUUtilizationPercent    float64
	MemoryUtilizationPercent float64
	IdleDuration             time.Duration
}

// Prediction is an opaque scoring of a workload's optimization potential
type Prediction struct {
	Confidence      float64 // 0..1
	PredictionValue float64 // 0..1
}

// Predictor scores workload usage. Implementations may be heuristic or
// ML-backed; the engine treats them identically.
type Predictor interface {
	Predict(ctx context.Context, usage WorkloadUsage) (Prediction, error)
}
