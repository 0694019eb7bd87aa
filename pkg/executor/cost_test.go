package executor

import (
	"context"
	"testing"

	"github.com/opscart/k8s-auto-optimizer/pkg/cluster"
	"github.com/opscart/k8s-auto-optimizer/pkg/config"
	"github.com/opscart/k8s-auto-optimizer/pkg/models"
	"github.com/opscart/k8s-auto-optimizer/pkg/pricing"
	"github.com/opscart/k8s-auto-optimizer/pkg/safety"
)

func costTestConfig() config.CostConfig {
	return config.CostConfig{
		CostThreshold:        100,
		InstanceReduction:    0.20,
		StorageReduction:     0.15,
		NetworkReduction:     0.10,
		AutoscalingReduction: 0.25,
		EnableInstance:       true,
		EnableStorage:        true,
		EnableNetwork:        true,
		EnableAutoscaling:    true,
	}
}

func newTestCostOptimizer(fake *cluster.Fake) *CostOptimizer {
	sm := safety.NewManager(fake, config.SafetyConfig{})
	provider := pricing.NewDefaultProvider(0.032, 0.004)
	return NewCostOptimizer(fake, sm, provider, costTestConfig())
}

func costAction(workload string) *models.OptimizationAction {
	return &models.OptimizationAction{
		ID:        "cost-" + workload,
		Workload:  workload,
		Namespace: "prod",
		Type:      models.ActionCostOptimize,
		Status:    models.StatusPending,
		Rollback: &models.RollbackPlan{
			OriginalState: models.StateMap{"monthly_cost": 500.0},
			Operations: []models.RollbackOp{
				{Operation: "restore_cost_configuration", Params: models.StateMap{}},
			},
		},
	}
}

func TestCostOptimizationSuccess(t *testing.T) {
	fake := cluster.NewFake()
	// A big footprint: 10 cores + 32 GiB across 2 replicas clears the
	// $100/month savings threshold comfortably
	fake.AddWorkload("warehouse", "prod", 2, 10000, 32*1024*1024*1024)
	o := newTestCostOptimizer(fake)

	result := o.Execute(context.Background(), costAction("warehouse"))

	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Error)
	}

	records := o.Results()
	if len(records) != 1 {
		t.Fatalf("expected 1 cost record, got %d", len(records))
	}
	record := records[0]
	if record.CostSavings < 100 {
		t.Errorf("savings $%.2f must clear the $100 threshold", record.CostSavings)
	}
	if record.OptimizedMonthlyCost >= record.CurrentMonthlyCost {
		t.Error("optimized cost must be below current cost")
	}
	if record.OptimizedMonthlyCost < record.CurrentMonthlyCost*0.5 {
		t.Errorf("optimized cost $%.2f dropped below the 50%% floor of $%.2f",
			record.OptimizedMonthlyCost, record.CurrentMonthlyCost*0.5)
	}
	if len(record.Categories) != 4 {
		t.Errorf("expected 4 enabled categories, got %v", record.Categories)
	}
}

func TestCostOptimizationBelowThreshold(t *testing.T) {
	fake := cluster.NewFake()
	// Tiny workload: potential savings are far below $100/month
	fake.AddWorkload("sidecar", "prod", 1, 100, 128*1024*1024)
	o := newTestCostOptimizer(fake)

	result := o.Execute(context.Background(), costAction("sidecar"))

	if result.Success {
		t.Fatal("sub-threshold savings must fail the action")
	}
	if result.FailureKind != models.FailureValidation {
		t.Errorf("failure kind = %s, want %s", result.FailureKind, models.FailureValidation)
	}
	if result.RollbackRequired {
		t.Error("a threshold abort happens before any mutation")
	}
}

func TestCostOptimizationDisabledCategories(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("warehouse", "prod", 2, 10000, 32*1024*1024*1024)
	sm := safety.NewManager(fake, config.SafetyConfig{})
	cfg := costTestConfig()
	cfg.EnableStorage = false
	cfg.EnableNetwork = false
	cfg.EnableAutoscaling = false
	o := NewCostOptimizer(fake, sm, pricing.NewDefaultProvider(0.032, 0.004), cfg)

	result := o.Execute(context.Background(), costAction("warehouse"))
	if !result.Success {
		t.Fatalf("instance-only optimization should still clear the threshold: %s", result.Error)
	}

	records := o.Results()
	if len(records[0].Categories) != 1 || records[0].Categories[0] != "instance" {
		t.Errorf("expected only the instance category, got %v", records[0].Categories)
	}
}

func TestCostEligibilityQuery(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("warehouse", "prod", 2, 10000, 32*1024*1024*1024)
	fake.AddWorkload("sidecar", "prod", 1, 100, 128*1024*1024)
	o := newTestCostOptimizer(fake)
	ctx := context.Background()

	eligible, _, err := o.IsWorkloadEligible(ctx, "warehouse", "prod")
	if err != nil {
		t.Fatal(err)
	}
	if !eligible {
		t.Error("a high-cost workload must be eligible")
	}

	eligible, reason, err := o.IsWorkloadEligible(ctx, "sidecar", "prod")
	if err != nil {
		t.Fatal(err)
	}
	if eligible {
		t.Errorf("a tiny workload must be ineligible, got: %s", reason)
	}
}
