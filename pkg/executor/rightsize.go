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

// Rightsizer recomputes CPU and memory requests and limits from observed
// usage, with a safety margin above usage and hard floors below which a
// request is never pushed.
type Rightsizer struct {
	runner  *Runner
	cluster cluster.Interface
	cfg     config.RightsizingConfig

	mu      sync.Mutex
	results []models.RightsizingResult
}

func NewRightsizer(c cluster.Interface, sm *safety.Manager, cfg config.RightsizingConfig) *Rightsizer {
	r := &Rightsizer{
		cluster: c,
		cfg:     cfg,
	}
	r.runner = newRunner(&rightsizeStrategy{r}, sm, r.recordResult)
	return r
}

func (r *Rightsizer) Type() models.ActionType {
	return models.ActionRightsize
}

func (r *Rightsizer) Execute(ctx context.Context, action *models.OptimizationAction) *models.ExecutionResult {
	return r.runner.Execute(ctx, action)
}

func (r *Rightsizer) Metrics() models.OperationMetrics {
	return r.runner.Metrics()
}

// Results returns the finalized rightsizing records
func (r *Rightsizer) Results() []models.RightsizingResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.RightsizingResult, len(r.results))
	copy(out, r.results)
	return out
}

func (r *Rightsizer) recordResult(result *models.ExecutionResult, current, target models.StateMap) {
	record := models.RightsizingResult{ExecutionResult: *result}
	record.OriginalCPUMillicores, _ = current.Int64("request_cpu_millicores")
	record.OriginalMemoryBytes, _ = current.Int64("request_memory_bytes")
	record.OptimizedCPUMillicores, _ = target.Int64("request_cpu_millicores")
	record.OptimizedMemoryBytes, _ = target.Int64("request_memory_bytes")

	r.mu.Lock()
	r.results = append(r.results, record)
	r.mu.Unlock()
}

// IsWorkloadEligible is an advisory query; a workload with no resource
// requests defined has nothing to rightsize.
func (r *Rightsizer) IsWorkloadEligible(ctx context.Context, workload, namespace string) (bool, string, error) {
	info, err := r.cluster.GetDeploymentInfo(ctx, workload, namespace)
	if err != nil {
		return false, "", err
	}
	if info.RequestedCPU == 0 && info.RequestedMemory == 0 {
		return false, "workload has no resource requests defined", nil
	}
	return true, fmt.Sprintf("requests: %dm CPU, %dMi memory", info.RequestedCPU, info.RequestedMemory/(1024*1024)), nil
}

// Optimized computes the rightsized request for one dimension:
// max(usage * (1+margin), floor). The result only replaces the current
// request when it undercuts it by more than the optimization threshold.
func (r *Rightsizer) Optimized(usage, currentRequest, floor int64) (int64, bool) {
	optimized := int64(float64(usage) * (1 + r.cfg.SafetyMargin))
	if optimized < floor {
		optimized = floor
	}
	worthIt := currentRequest > 0 && float64(optimized) < float64(currentRequest)*(1-r.cfg.OptimizationThreshold)
	return optimized, worthIt
}

type rightsizeStrategy struct {
	r *Rightsizer
}

func (s *rightsizeStrategy) Name() string                     { return "resource_rightsizing" }
func (s *rightsizeStrategy) Type() models.ActionType          { return models.ActionRightsize }
func (s *rightsizeStrategy) VerificationDelay() time.Duration { return s.r.cfg.VerificationDelay }
func (s *rightsizeStrategy) Timeout() time.Duration           { return s.r.cfg.OptimizationTimeout }

func (s *rightsizeStrategy) Snapshot(ctx context.Context, action *models.OptimizationAction) (models.StateMap, error) {
	info, err := s.r.cluster.GetDeploymentInfo(ctx, action.Workload, action.Namespace)
	if err != nil {
		return nil, err
	}
	usage, err := s.r.cluster.GetPodMetrics(ctx, action.Workload, action.Namespace)
	if err != nil {
		return nil, err
	}
	return models.StateMap{
		"request_cpu_millicores": info.RequestedCPU,
		"request_memory_bytes":   info.RequestedMemory,
		"limit_cpu_millicores":   info.LimitCPU,
		"limit_memory_bytes":     info.LimitMemory,
		"usage_cpu_millicores":   usage.CPUMillicores,
		"usage_memory_bytes":     usage.MemoryBytes,
	}, nil
}

func (s *rightsizeStrategy) ComputeTarget(ctx context.Context, action *models.OptimizationAction, current models.StateMap) (models.StateMap, error) {
	cfg := s.r.cfg

	currentCPU, _ := current.Int64("request_cpu_millicores")
	currentMem, _ := current.Int64("request_memory_bytes")
	usageCPU, _ := current.Int64("usage_cpu_millicores")
	usageMem, _ := current.Int64("usage_memory_bytes")

	targetCPU, cpuWorthIt := s.r.Optimized(usageCPU, currentCPU, cfg.MinCPUMillicores)
	targetMem, memWorthIt := s.r.Optimized(usageMem, currentMem, cfg.MinMemoryBytes)

	if !cpuWorthIt && !memWorthIt {
		return nil, ErrAlreadySatisfied
	}
	// Dimensions that don't clear the threshold keep their current request
	if !cpuWorthIt {
		targetCPU = currentCPU
	}
	if !memWorthIt {
		targetMem = currentMem
	}

	return models.StateMap{
		"request_cpu_millicores": targetCPU,
		"request_memory_bytes":   targetMem,
		"limit_cpu_millicores":   int64(float64(targetCPU) * cfg.CPULimitMultiplier),
		"limit_memory_bytes":     int64(float64(targetMem) * cfg.MemoryLimitMultiplier),
	}, nil
}

func (s *rightsizeStrategy) Apply(ctx context.Context, action *models.OptimizationAction, target models.StateMap) error {
	requests := models.ResourceSpec{}
	limits := models.ResourceSpec{}
	requests.CPUMillicores, _ = target.Int64("request_cpu_millicores")
	requests.MemoryBytes, _ = target.Int64("request_memory_bytes")
	limits.CPUMillicores, _ = target.Int64("limit_cpu_millicores")
	limits.MemoryBytes, _ = target.Int64("limit_memory_bytes")

	return s.r.cluster.PatchDeploymentResources(ctx, action.Workload, action.Namespace, requests, limits)
}

func (s *rightsizeStrategy) Verify(ctx context.Context, action *models.OptimizationAction, target models.StateMap) error {
	info, err := s.r.cluster.GetDeploymentInfo(ctx, action.Workload, action.Namespace)
	if err != nil {
		return fmt.Errorf("verification read failed: %w", err)
	}

	wantCPU, _ := target.Int64("request_cpu_millicores")
	wantMem, _ := target.Int64("request_memory_bytes")
	if info.RequestedCPU != wantCPU {
		return fmt.Errorf("CPU request is %dm, expected %dm", info.RequestedCPU, wantCPU)
	}
	if info.RequestedMemory != wantMem {
		return fmt.Errorf("memory request is %d bytes, expected %d", info.RequestedMemory, wantMem)
	}

	pods, err := s.r.cluster.ListPods(ctx, action.Namespace, "")
	if err != nil {
		return fmt.Errorf("verification pod listing failed: %w", err)
	}
	for _, pod := range cluster.PodsForWorkload(pods, action.Workload) {
		if pod.Phase == "Running" {
			return nil
		}
	}
	return fmt.Errorf("no running pods for %s/%s after resource patch", action.Namespace, action.Workload)
}
