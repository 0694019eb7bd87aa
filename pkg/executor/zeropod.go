package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opscart/k8s-auto-optimizer/pkg/cluster"
	"github.com/opscart/k8s-auto-optimizer/pkg/config"
	"github.com/opscart/k8s-auto-optimizer/pkg/models"
	"github.com/opscart/k8s-auto-optimizer/pkg/safety"
)

// ZeroPodScaler drives a workload's replica count to zero. Scaling back up
// is the rollback path, owned by the safety manager.
type ZeroPodScaler struct {
	runner  *Runner
	cluster cluster.Interface
	cfg     config.ScalingConfig

	mu      sync.Mutex
	results []models.ScalingResult
}

func NewZeroPodScaler(c cluster.Interface, sm *safety.Manager, cfg config.ScalingConfig) *ZeroPodScaler {
	z := &ZeroPodScaler{
		cluster: c,
		cfg:     cfg,
	}
	z.runner = newRunner(&zeroPodStrategy{z}, sm, z.recordResult)
	return z
}

func (z *ZeroPodScaler) Type() models.ActionType {
	return models.ActionScaleToZero
}

func (z *ZeroPodScaler) Execute(ctx context.Context, action *models.OptimizationAction) *models.ExecutionResult {
	return z.runner.Execute(ctx, action)
}

func (z *ZeroPodScaler) Metrics() models.OperationMetrics {
	return z.runner.Metrics()
}

// Results returns the finalized scaling records
func (z *ZeroPodScaler) Results() []models.ScalingResult {
	z.mu.Lock()
	defer z.mu.Unlock()
	out := make([]models.ScalingResult, len(z.results))
	copy(out, z.results)
	return out
}

func (z *ZeroPodScaler) recordResult(result *models.ExecutionResult, current, target models.StateMap) {
	record := models.ScalingResult{ExecutionResult: *result}
	if replicas, ok := current.Int64("replicas"); ok {
		record.OriginalReplicas = int32(replicas)
		record.AlreadyAtTarget = replicas == 0
	}
	if replicas, ok := target.Int64("replicas"); ok {
		record.TargetReplicas = int32(replicas)
	}

	z.mu.Lock()
	z.results = append(z.results, record)
	z.mu.Unlock()
}

// IsWorkloadEligible is an advisory query; it never gates execution. A
// workload already at zero replicas is reported ineligible.
func (z *ZeroPodScaler) IsWorkloadEligible(ctx context.Context, workload, namespace string) (bool, string, error) {
	info, err := z.cluster.GetDeploymentInfo(ctx, workload, namespace)
	if err != nil {
		return false, "", err
	}
	if info.Replicas == 0 {
		return false, "workload is already scaled to zero", nil
	}
	return true, fmt.Sprintf("workload has %d replicas", info.Replicas), nil
}

type zeroPodStrategy struct {
	z *ZeroPodScaler
}

func (s *zeroPodStrategy) Name() string                     { return "zero_pod_scaling" }
func (s *zeroPodStrategy) Type() models.ActionType          { return models.ActionScaleToZero }
func (s *zeroPodStrategy) VerificationDelay() time.Duration { return s.z.cfg.VerificationDelay }
func (s *zeroPodStrategy) Timeout() time.Duration           { return s.z.cfg.ScalingTimeout }

// AlreadyAtTarget reports a workload that is already at zero replicas,
// which is exactly the state a previous scale-to-zero leaves behind
func (s *zeroPodStrategy) AlreadyAtTarget(ctx context.Context, action *models.OptimizationAction) (models.StateMap, bool, error) {
	info, err := s.z.cluster.GetDeploymentInfo(ctx, action.Workload, action.Namespace)
	if err != nil {
		return nil, false, err
	}
	if info.Replicas != 0 {
		return nil, false, nil
	}
	return models.StateMap{
		"replicas":           int64(0),
		"available_replicas": int64(info.AvailableReplicas),
	}, true, nil
}

func (s *zeroPodStrategy) Snapshot(ctx context.Context, action *models.OptimizationAction) (models.StateMap, error) {
	info, err := s.z.cluster.GetDeploymentInfo(ctx, action.Workload, action.Namespace)
	if err != nil {
		return nil, err
	}
	return models.StateMap{
		"replicas":           int64(info.Replicas),
		"available_replicas": int64(info.AvailableReplicas),
	}, nil
}

func (s *zeroPodStrategy) ComputeTarget(ctx context.Context, action *models.OptimizationAction, current models.StateMap) (models.StateMap, error) {
	replicas, ok := current.Int64("replicas")
	if !ok {
		return nil, fmt.Errorf("snapshot is missing replica count")
	}
	if replicas == 0 {
		return nil, ErrAlreadySatisfied
	}
	return models.StateMap{"replicas": int64(0)}, nil
}

func (s *zeroPodStrategy) Apply(ctx context.Context, action *models.OptimizationAction, target models.StateMap) error {
	return s.z.cluster.ScaleDeployment(ctx, action.Workload, action.Namespace, 0)
}

// Verify asserts the replica count held at zero. The usual ≥1 running pod
// health clause is waived: zero pods is the intended state.
func (s *zeroPodStrategy) Verify(ctx context.Context, action *models.OptimizationAction, target models.StateMap) error {
	info, err := s.z.cluster.GetDeploymentInfo(ctx, action.Workload, action.Namespace)
	if err != nil {
		return fmt.Errorf("verification read failed: %w", err)
	}
	if info.Replicas != 0 {
		return fmt.Errorf("replicas unexpectedly at %d after scale to zero", info.Replicas)
	}
	return nil
}
