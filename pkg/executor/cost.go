package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opscart/k8s-auto-optimizer/pkg/cluster"
	"github.com/opscart/k8s-auto-optimizer/pkg/config"
	"github.com/opscart/k8s-auto-optimizer/pkg/models"
	"github.com/opscart/k8s-auto-optimizer/pkg/pricing"
	"github.com/opscart/k8s-auto-optimizer/pkg/safety"
)

// CostOptimizer applies heuristic cost-reduction transforms across instance,
// storage, network and autoscaling categories, gated by a minimum-savings
// threshold. The cost configuration itself is held by this optimizer;
// cluster resources are untouched, which is why its rollback is a recorded
// restore rather than a cluster mutation.
type CostOptimizer struct {
	runner  *Runner
	cluster cluster.Interface
	pricing pricing.Provider
	cfg     config.CostConfig

	mu      sync.Mutex
	results []models.CostOptimizationResult
	applied map[string]models.StateMap // workload key -> active cost configuration
}

func NewCostOptimizer(c cluster.Interface, sm *safety.Manager, provider pricing.Provider, cfg config.CostConfig) *CostOptimizer {
	o := &CostOptimizer{
		cluster: c,
		pricing: provider,
		cfg:     cfg,
		applied: make(map[string]models.StateMap),
	}
	o.runner = newRunner(&costStrategy{o}, sm, o.recordResult)
	return o
}

func (o *CostOptimizer) Type() models.ActionType {
	return models.ActionCostOptimize
}

func (o *CostOptimizer) Execute(ctx context.Context, action *models.OptimizationAction) *models.ExecutionResult {
	return o.runner.Execute(ctx, action)
}

func (o *CostOptimizer) Metrics() models.OperationMetrics {
	return o.runner.Metrics()
}

// Results returns the finalized cost optimization records
func (o *CostOptimizer) Results() []models.CostOptimizationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.CostOptimizationResult, len(o.results))
	copy(out, o.results)
	return out
}

func (o *CostOptimizer) recordResult(result *models.ExecutionResult, current, target models.StateMap) {
	record := models.CostOptimizationResult{ExecutionResult: *result}
	record.CurrentMonthlyCost, _ = current.Float64("monthly_cost")
	record.OptimizedMonthlyCost, _ = target.Float64("monthly_cost")
	record.CostSavings, _ = target.Float64("cost_savings")
	for _, category := range o.enabledCategories() {
		record.Categories = append(record.Categories, category)
	}

	o.mu.Lock()
	o.results = append(o.results, record)
	o.mu.Unlock()
}

func (o *CostOptimizer) enabledCategories() []string {
	var categories []string
	if o.cfg.EnableInstance {
		categories = append(categories, "instance")
	}
	if o.cfg.EnableStorage {
		categories = append(categories, "storage")
	}
	if o.cfg.EnableNetwork {
		categories = append(categories, "network")
	}
	if o.cfg.EnableAutoscaling {
		categories = append(categories, "autoscaling")
	}
	return categories
}

// IsWorkloadEligible is an advisory query; a workload whose monthly cost
// cannot clear the savings threshold even at maximum reduction is reported
// ineligible.
func (o *CostOptimizer) IsWorkloadEligible(ctx context.Context, workload, namespace string) (bool, string, error) {
	breakdown, err := o.costBreakdown(ctx, workload, namespace)
	if err != nil {
		return false, "", err
	}
	total := breakdown.Total()
	if total*0.5 < o.cfg.CostThreshold {
		return false, fmt.Sprintf("monthly cost $%.2f cannot yield $%.2f savings", total, o.cfg.CostThreshold), nil
	}
	return true, fmt.Sprintf("monthly cost $%.2f", total), nil
}

// costBreakdown derives a per-category monthly cost for the workload from
// its requested resources and the pricing provider. Storage, network and
// autoscaling shares are heuristic fractions of the compute cost until real
// billing data is wired in.
func (o *CostOptimizer) costBreakdown(ctx context.Context, workload, namespace string) (models.CostBreakdown, error) {
	var breakdown models.CostBreakdown

	info, err := o.cluster.GetDeploymentInfo(ctx, workload, namespace)
	if err != nil {
		return breakdown, err
	}
	costInfo, err := o.pricing.GetCostInfo(ctx, "", "")
	if err != nil {
		return breakdown, err
	}

	compute := costInfo.MonthlyCost(info.RequestedCPU, info.RequestedMemory) * float64(max(info.Replicas, 1))
	breakdown.InstanceMonthly = compute
	breakdown.StorageMonthly = compute * 0.20
	breakdown.NetworkMonthly = compute * 0.10
	breakdown.AutoscalingMonthly = compute * 0.10
	return breakdown, nil
}

type costStrategy struct {
	o *CostOptimizer
}

func (s *costStrategy) Name() string                     { return "cost_optimization" }
func (s *costStrategy) Type() models.ActionType          { return models.ActionCostOptimize }
func (s *costStrategy) VerificationDelay() time.Duration { return s.o.cfg.VerificationDelay }
func (s *costStrategy) Timeout() time.Duration           { return s.o.cfg.OptimizationTimeout }

func (s *costStrategy) Snapshot(ctx context.Context, action *models.OptimizationAction) (models.StateMap, error) {
	breakdown, err := s.o.costBreakdown(ctx, action.Workload, action.Namespace)
	if err != nil {
		return nil, err
	}
	return models.StateMap{
		"monthly_cost":        breakdown.Total(),
		"instance_monthly":    breakdown.InstanceMonthly,
		"storage_monthly":     breakdown.StorageMonthly,
		"network_monthly":     breakdown.NetworkMonthly,
		"autoscaling_monthly": breakdown.AutoscalingMonthly,
	}, nil
}

func (s *costStrategy) ComputeTarget(ctx context.Context, action *models.OptimizationAction, current models.StateMap) (models.StateMap, error) {
	cfg := s.o.cfg
	currentCost, _ := current.Float64("monthly_cost")

	var totalSavings float64
	if cfg.EnableInstance {
		v, _ := current.Float64("instance_monthly")
		totalSavings += v * cfg.InstanceReduction
	}
	if cfg.EnableStorage {
		v, _ := current.Float64("storage_monthly")
		totalSavings += v * cfg.StorageReduction
	}
	if cfg.EnableNetwork {
		v, _ := current.Float64("network_monthly")
		totalSavings += v * cfg.NetworkReduction
	}
	if cfg.EnableAutoscaling {
		v, _ := current.Float64("autoscaling_monthly")
		totalSavings += v * cfg.AutoscalingReduction
	}

	// Optimized cost never drops below half the original
	optimized := currentCost - totalSavings
	if floor := currentCost * 0.5; optimized < floor {
		optimized = floor
	}
	savings := currentCost - optimized

	if savings < cfg.CostThreshold {
		return nil, fmt.Errorf("%w: $%.2f/month < $%.2f threshold", ErrBelowThreshold, savings, cfg.CostThreshold)
	}

	return models.StateMap{
		"monthly_cost": optimized,
		"cost_savings": savings,
	}, nil
}

// Apply records the cost configuration as active for the workload. There is
// no cluster-side mutation to issue for cost substitutions.
func (s *costStrategy) Apply(ctx context.Context, action *models.OptimizationAction, target models.StateMap) error {
	s.o.mu.Lock()
	s.o.applied[action.Namespace+"/"+action.Workload] = target.Copy()
	s.o.mu.Unlock()
	return nil
}

func (s *costStrategy) Verify(ctx context.Context, action *models.OptimizationAction, target models.StateMap) error {
	s.o.mu.Lock()
	_, configured := s.o.applied[action.Namespace+"/"+action.Workload]
	s.o.mu.Unlock()
	if !configured {
		return fmt.Errorf("cost configuration for %s/%s was not recorded", action.Namespace, action.Workload)
	}

	pods, err := s.o.cluster.ListPods(ctx, action.Namespace, "")
	if err != nil {
		return fmt.Errorf("verification pod listing failed: %w", err)
	}
	for _, pod := range cluster.PodsForWorkload(pods, action.Workload) {
		if pod.Phase == "Running" {
			return nil
		}
	}
	return fmt.Errorf("no running pods for %s/%s after cost optimization", action.Namespace, action.Workload)
}
