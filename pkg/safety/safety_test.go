package safety

import (
	"context"
	"testing"

	"github.com/opscart/k8s-auto-optimizer/pkg/cluster"
	"github.com/opscart/k8s-auto-optimizer/pkg/config"
	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

func testConfig() config.SafetyConfig {
	// Zero delays keep rollback tests fast
	return config.SafetyConfig{}
}

func testAction(workload, namespace string, actionType models.ActionType) *models.OptimizationAction {
	return &models.OptimizationAction{
		ID:        "test-action",
		Workload:  workload,
		Namespace: namespace,
		Type:      actionType,
		Status:    models.StatusPending,
	}
}

func TestSafetyChecksPassOnHealthyCluster(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 3, 500, 512*1024*1024)
	m := NewManager(fake, testConfig())

	results := m.PerformSafetyChecks(context.Background(), testAction("api", "prod", models.ActionScaleToZero))

	if len(results) != 6 {
		t.Fatalf("expected 6 check results, got %d", len(results))
	}
	if failure := FirstCriticalFailure(results); failure != nil {
		t.Errorf("healthy cluster must pass all critical checks, failed: %s (%s)", failure.CheckName, failure.Detail)
	}
}

func TestSafetyChecksFailOnOverloadedCluster(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 3, 500, 512*1024*1024)
	fake.Cluster.CPUUsagePercent = 95
	m := NewManager(fake, testConfig())

	results := m.PerformSafetyChecks(context.Background(), testAction("api", "prod", models.ActionScaleToZero))

	failure := FirstCriticalFailure(results)
	if failure == nil {
		t.Fatal("overloaded cluster must fail a critical check")
	}
	if failure.CheckName != CheckClusterHealth {
		t.Errorf("expected %s to fail first, got %s", CheckClusterHealth, failure.CheckName)
	}
}

func TestFailureHookReportsFailedChecks(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 3, 500, 512*1024*1024)
	fake.Cluster.CPUUsagePercent = 95
	m := NewManager(fake, testConfig())

	var failed []string
	m.SetFailureHook(func(check string) {
		failed = append(failed, check)
	})

	m.PerformSafetyChecks(context.Background(), testAction("api", "prod", models.ActionScaleToZero))

	found := false
	for _, name := range failed {
		if name == CheckClusterHealth {
			found = true
		}
	}
	if !found {
		t.Errorf("failure hook must report %s, got %v", CheckClusterHealth, failed)
	}
}

func TestSafetyChecksFailOnMissingWorkload(t *testing.T) {
	fake := cluster.NewFake()
	m := NewManager(fake, testConfig())

	results := m.PerformSafetyChecks(context.Background(), testAction("ghost", "prod", models.ActionScaleToZero))

	failure := FirstCriticalFailure(results)
	if failure == nil {
		t.Fatal("a workload with no pods must fail workload health")
	}
	if failure.CheckName != CheckWorkloadHealth {
		t.Errorf("expected %s to fail, got %s", CheckWorkloadHealth, failure.CheckName)
	}
}

func TestInformationalChecksNeverGate(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 3, 500, 512*1024*1024)
	m := NewManager(fake, testConfig())

	results := m.PerformSafetyChecks(context.Background(), testAction("api", "prod", models.ActionScaleToZero))

	for _, r := range results {
		if r.CheckName == CheckBackupVerification || r.CheckName == CheckNetworkConnectivity {
			if r.Critical {
				t.Errorf("%s must not be critical", r.CheckName)
			}
			if !r.Passed {
				t.Errorf("%s stub must pass", r.CheckName)
			}
			if r.Detail == "" {
				t.Errorf("%s must flag itself as unverified in its detail", r.CheckName)
			}
		}
	}
}

func TestSetCheckEnabled(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 3, 500, 512*1024*1024)
	m := NewManager(fake, testConfig())

	m.SetCheckEnabled(CheckBackupVerification, false)

	results := m.PerformSafetyChecks(context.Background(), testAction("api", "prod", models.ActionScaleToZero))
	for _, r := range results {
		if r.CheckName == CheckBackupVerification {
			t.Error("disabled check must not run")
		}
	}
	if len(results) != 5 {
		t.Errorf("expected 5 results with one check disabled, got %d", len(results))
	}
}

func TestPerformanceBaselineCaptured(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 3, 500, 512*1024*1024)
	m := NewManager(fake, testConfig())

	m.PerformSafetyChecks(context.Background(), testAction("api", "prod", models.ActionRightsize))

	baseline, ok := m.Baseline("api", "prod")
	if !ok {
		t.Fatal("baseline check must record a usage snapshot")
	}
	if baseline.CPUMillicores != 250 {
		t.Errorf("baseline CPU = %dm, want 250m", baseline.CPUMillicores)
	}
}

func TestRollbackRestoresReplicas(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 3, 500, 512*1024*1024)
	m := NewManager(fake, testConfig())
	ctx := context.Background()

	// Simulate a completed scale to zero
	if err := fake.ScaleDeployment(ctx, "api", "prod", 0); err != nil {
		t.Fatal(err)
	}

	action := testAction("api", "prod", models.ActionScaleToZero)
	action.Status = models.StatusFailed
	action.Rollback = &models.RollbackPlan{
		OriginalState: models.StateMap{"replicas": int64(3)},
		Operations: []models.RollbackOp{
			{Operation: "restore_replicas", Params: models.StateMap{"replicas": int64(3)}},
		},
	}

	if err := m.RollbackAction(ctx, action); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	info, _ := fake.GetDeploymentInfo(ctx, "api", "prod")
	if info.Replicas != 3 {
		t.Errorf("rollback must restore 3 replicas, got %d", info.Replicas)
	}
}

func TestRollbackRestoresResources(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 2, 200, 256*1024*1024)
	m := NewManager(fake, testConfig())
	ctx := context.Background()

	action := testAction("api", "prod", models.ActionRightsize)
	action.Status = models.StatusFailed
	action.Rollback = &models.RollbackPlan{
		OriginalState: models.StateMap{
			"request_cpu_millicores": int64(500),
			"request_memory_bytes":   int64(512 * 1024 * 1024),
			"limit_cpu_millicores":   int64(1000),
			"limit_memory_bytes":     int64(768 * 1024 * 1024),
		},
	}

	if err := m.RollbackAction(ctx, action); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	info, _ := fake.GetDeploymentInfo(ctx, "api", "prod")
	if info.RequestedCPU != 500 {
		t.Errorf("rollback must restore 500m CPU, got %dm", info.RequestedCPU)
	}
	if info.RequestedMemory != 512*1024*1024 {
		t.Errorf("rollback must restore the original memory request, got %d", info.RequestedMemory)
	}
	if info.LimitCPU != 1000 {
		t.Errorf("rollback must restore the original 1000m CPU limit, got %dm", info.LimitCPU)
	}
	if info.LimitMemory != 768*1024*1024 {
		t.Errorf("rollback must restore the original memory limit, got %d", info.LimitMemory)
	}
}

func TestRollbackRejectsResourceStateWithoutLimits(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 2, 200, 256*1024*1024)
	m := NewManager(fake, testConfig())

	// A resource patch always writes both requests and limits; restoring
	// from a plan that never captured the limits would zero them out.
	action := testAction("api", "prod", models.ActionRightsize)
	action.Status = models.StatusFailed
	action.Rollback = &models.RollbackPlan{
		OriginalState: models.StateMap{
			"request_cpu_millicores": int64(500),
			"request_memory_bytes":   int64(512 * 1024 * 1024),
		},
	}

	if err := m.RollbackAction(context.Background(), action); err == nil {
		t.Fatal("rollback from a plan without limits must fail, not patch zeros")
	}
	if fake.PatchCalls != 0 {
		t.Errorf("incomplete rollback state must never reach the cluster, got %d patch calls", fake.PatchCalls)
	}

	info, _ := fake.GetDeploymentInfo(context.Background(), "api", "prod")
	if info.LimitCPU != 400 || info.LimitMemory != 512*1024*1024 {
		t.Errorf("live limits must be untouched, got %dm/%d", info.LimitCPU, info.LimitMemory)
	}
}

func TestRollbackFailsWithoutPlan(t *testing.T) {
	fake := cluster.NewFake()
	m := NewManager(fake, testConfig())

	action := testAction("api", "prod", models.ActionScaleToZero)
	if err := m.RollbackAction(context.Background(), action); err == nil {
		t.Error("rollback without a plan must fail")
	}

	metrics := m.Metrics()
	if metrics.Rollbacks != 1 {
		t.Errorf("failed rollback must still count, got %d", metrics.Rollbacks)
	}
}

func TestRollbackVerificationRequiresRunningPod(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 3, 500, 512*1024*1024)
	// Scale-ups silently fail to bring pods back
	fake.AfterScale = func(w *cluster.FakeWorkload) {
		for i := range w.Pods {
			w.Pods[i].Phase = "Pending"
		}
	}
	m := NewManager(fake, testConfig())

	action := testAction("api", "prod", models.ActionScaleToZero)
	action.Status = models.StatusFailed
	action.Rollback = &models.RollbackPlan{
		OriginalState: models.StateMap{"replicas": int64(3)},
	}

	if err := m.RollbackAction(context.Background(), action); err == nil {
		t.Error("rollback must fail verification when no pod comes back running")
	}
}

func TestRollbackToZeroReplicasSkipsPodCheck(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 2, 500, 512*1024*1024)
	m := NewManager(fake, testConfig())

	// The workload was originally at zero, so restoring it to zero is healthy
	action := testAction("api", "prod", models.ActionScaleToZero)
	action.Status = models.StatusFailed
	action.Rollback = &models.RollbackPlan{
		OriginalState: models.StateMap{"replicas": int64(0)},
	}

	if err := m.RollbackAction(context.Background(), action); err != nil {
		t.Errorf("restoring zero replicas must verify clean: %v", err)
	}
}
