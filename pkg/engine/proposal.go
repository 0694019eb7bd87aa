package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opscart/k8s-auto-optimizer/pkg/analytics"
	"github.com/opscart/k8s-auto-optimizer/pkg/models"
	"github.com/sirupsen/logrus"
)

// AnalyzeCluster gathers usage features for every workload in the namespace
// (all namespaces when empty), scores them, and proposes actions per the
// proposal policy:
//
//   - scale_to_zero when the workload has been idle longer than the idle
//     threshold and the prediction confidence clears its threshold
//   - rightsize when CPU utilization or memory utilization is below its
//     threshold
//   - cost_optimize when the prediction value clears its threshold
//
// A workload may receive several actions. The returned plan is retained by
// the engine and can be executed later by ID.
func (e *Engine) AnalyzeCluster(ctx context.Context, clusterID, namespace string) (*models.OptimizationPlan, error) {
	features, err := e.collector.Collect(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("cluster analysis failed: %w", err)
	}

	costInfo, err := e.pricing.GetCostInfo(ctx, e.cfg.Region, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pricing: %w", err)
	}

	var actions []*models.OptimizationAction
	for _, usage := range features {
		prediction, err := e.predictor.Predict(ctx, usage)
		if err != nil {
			e.log.WithError(err).WithField("workload", usage.Workload).Warn("prediction failed, skipping workload")
			continue
		}

		if usage.IdleDuration > e.cfg.Engine.IdleThreshold && prediction.Confidence > e.cfg.Engine.ConfidenceThreshold {
			actions = append(actions, e.proposeScaleToZero(usage, prediction, costInfo))
		}
		if usage.CPUUtilizationPercent < e.cfg.Engine.CPUUtilThreshold ||
			usage.MemoryUtilizationPercent < e.cfg.Engine.MemoryUtilThreshold {
			if a := e.proposeRightsize(usage, prediction, costInfo); a != nil {
				actions = append(actions, a)
			}
		}
		if prediction.PredictionValue > e.cfg.Engine.PredictionThreshold {
			actions = append(actions, e.proposeCostOptimize(usage, prediction, costInfo))
		}
	}

	plan := &models.OptimizationPlan{
		ID:             uuid.New().String(),
		ClusterID:      clusterID,
		CreatedAt:      time.Now(),
		Actions:        actions,
		RiskAssessment: models.AggregateRisk(actions),
		SafetyChecks:   e.safety.CheckNames(),
		Status:         models.PlanPending,
	}
	for _, a := range actions {
		plan.EstimatedSavings += a.EstimatedSavings
	}

	e.mu.Lock()
	e.plans[plan.ID] = plan
	e.mu.Unlock()

	if e.telemetry != nil {
		e.telemetry.EstimatedSavings.Set(plan.EstimatedSavings)
	}

	if e.store != nil {
		if err := e.store.SavePlan(ctx, plan); err != nil {
			e.log.WithError(err).Warn("failed to persist plan")
		}
	}

	e.log.WithFields(logrus.Fields{
		"plan":      plan.ID,
		"workloads": len(features),
		"actions":   len(actions),
		"savings":   plan.EstimatedSavings,
		"risk":      plan.RiskAssessment,
	}).Info("cluster analysis complete")
	return plan, nil
}

// proposeScaleToZero builds a scale_to_zero action. Savings assume the whole
// requested footprint is released while the workload stays at zero.
func (e *Engine) proposeScaleToZero(usage analytics.WorkloadUsage, prediction analytics.Prediction, cost *models.CostInfo) *models.OptimizationAction {
	perReplica := cost.MonthlyCost(usage.RequestedCPU, usage.RequestedMemory)
	savings := perReplica * float64(max(usage.Replicas, 1))

	current := models.StateMap{
		"replicas":      usage.Replicas,
		"idle_duration": usage.IdleDuration.String(),
	}
	return &models.OptimizationAction{
		ID:           uuid.New().String(),
		Strategy:     "zero_pod_scaling",
		Workload:     usage.Workload,
		Namespace:    usage.Namespace,
		Type:         models.ActionScaleToZero,
		CurrentState: current,
		TargetState: models.StateMap{
			"replicas": int32(0),
		},
		EstimatedSavings: nonNegative(savings),
		// Scaling to zero makes the workload unreachable until something
		// scales it back up, so it is never low risk.
		Risk:               models.RiskMedium,
		Confidence:         prediction.Confidence,
		PrerequisiteChecks: e.safety.CheckNames(),
		Rollback: &models.RollbackPlan{
			OriginalState: current.Copy(),
			Operations: []models.RollbackOp{
				{Operation: "restore_replicas", Params: models.StateMap{"replicas": usage.Replicas}},
			},
			VerificationChecks: []string{"workload_health"},
			Timeout:            e.cfg.Scaling.RollbackTimeout,
		},
		CreatedAt: time.Now(),
		Status:    models.StatusPending,
	}
}

// proposeRightsize builds a rightsize action, precomputing the target
// requests with the same margin and floors the executor enforces. Returns
// nil when neither dimension clears the reduction threshold, which happens
// when utilization is low but the request is already near its floor.
func (e *Engine) proposeRightsize(usage analytics.WorkloadUsage, prediction analytics.Prediction, cost *models.CostInfo) *models.OptimizationAction {
	cfg := e.cfg.Rightsizing

	targetCPU, cpuWorth := e.rightsizer.Optimized(usage.UsageCPU, usage.RequestedCPU, cfg.MinCPUMillicores)
	targetMem, memWorth := e.rightsizer.Optimized(usage.UsageMemory, usage.RequestedMemory, cfg.MinMemoryBytes)
	if !cpuWorth && !memWorth {
		return nil
	}
	if !cpuWorth {
		targetCPU = usage.RequestedCPU
	}
	if !memWorth {
		targetMem = usage.RequestedMemory
	}

	replicas := max(usage.Replicas, 1)
	savings := (cost.MonthlyCost(usage.RequestedCPU, usage.RequestedMemory) -
		cost.MonthlyCost(targetCPU, targetMem)) * float64(replicas)

	current := models.StateMap{
		"request_cpu_millicores": usage.RequestedCPU,
		"request_memory_bytes":   usage.RequestedMemory,
		"usage_cpu_millicores":   usage.UsageCPU,
		"usage_memory_bytes":     usage.UsageMemory,
	}
	return &models.OptimizationAction{
		ID:           uuid.New().String(),
		Strategy:     "resource_rightsizing",
		Workload:     usage.Workload,
		Namespace:    usage.Namespace,
		Type:         models.ActionRightsize,
		CurrentState: current,
		TargetState: models.StateMap{
			"request_cpu_millicores": targetCPU,
			"request_memory_bytes":   targetMem,
		},
		EstimatedSavings:   nonNegative(savings),
		Risk:               models.RiskLow,
		Confidence:         prediction.Confidence,
		PrerequisiteChecks: e.safety.CheckNames(),
		Rollback: &models.RollbackPlan{
			OriginalState: models.StateMap{
				"request_cpu_millicores": usage.RequestedCPU,
				"request_memory_bytes":   usage.RequestedMemory,
				"limit_cpu_millicores":   usage.LimitCPU,
				"limit_memory_bytes":     usage.LimitMemory,
			},
			Operations: []models.RollbackOp{
				{Operation: "restore_resources", Params: models.StateMap{
					"request_cpu_millicores": usage.RequestedCPU,
					"request_memory_bytes":   usage.RequestedMemory,
					"limit_cpu_millicores":   usage.LimitCPU,
					"limit_memory_bytes":     usage.LimitMemory,
				}},
			},
			VerificationChecks: []string{"workload_health"},
			Timeout:            e.cfg.Safety.RollbackTimeout,
		},
		CreatedAt: time.Now(),
		Status:    models.StatusPending,
	}
}

// proposeCostOptimize builds a cost_optimize action. The estimate applies the
// configured per-category reductions to the workload's cost breakdown; the
// executor recomputes against live state and enforces the savings threshold.
func (e *Engine) proposeCostOptimize(usage analytics.WorkloadUsage, prediction analytics.Prediction, cost *models.CostInfo) *models.OptimizationAction {
	cfg := e.cfg.Cost
	compute := cost.MonthlyCost(usage.RequestedCPU, usage.RequestedMemory) * float64(max(usage.Replicas, 1))
	breakdown := models.CostBreakdown{
		InstanceMonthly:    compute,
		StorageMonthly:     compute * 0.20,
		NetworkMonthly:     compute * 0.10,
		AutoscalingMonthly: compute * 0.10,
	}

	var savings float64
	if cfg.EnableInstance {
		savings += breakdown.InstanceMonthly * cfg.InstanceReduction
	}
	if cfg.EnableStorage {
		savings += breakdown.StorageMonthly * cfg.StorageReduction
	}
	if cfg.EnableNetwork {
		savings += breakdown.NetworkMonthly * cfg.NetworkReduction
	}
	if cfg.EnableAutoscaling {
		savings += breakdown.AutoscalingMonthly * cfg.AutoscalingReduction
	}
	if floor := breakdown.Total() * 0.5; savings > floor {
		savings = floor
	}

	current := models.StateMap{
		"monthly_cost": breakdown.Total(),
	}
	return &models.OptimizationAction{
		ID:           uuid.New().String(),
		Strategy:     "cost_optimization",
		Workload:     usage.Workload,
		Namespace:    usage.Namespace,
		Type:         models.ActionCostOptimize,
		CurrentState: current,
		TargetState: models.StateMap{
			"monthly_cost": breakdown.Total() - savings,
		},
		EstimatedSavings:   nonNegative(savings),
		Risk:               models.RiskLow,
		Confidence:         prediction.PredictionValue,
		PrerequisiteChecks: e.safety.CheckNames(),
		Rollback: &models.RollbackPlan{
			OriginalState: current.Copy(),
			Operations: []models.RollbackOp{
				{Operation: "restore_cost_configuration", Params: current.Copy()},
			},
			VerificationChecks: []string{"workload_health"},
			Timeout:            e.cfg.Safety.RollbackTimeout,
		},
		CreatedAt: time.Now(),
		Status:    models.StatusPending,
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
