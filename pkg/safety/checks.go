package safety

import (
	"context"
	"fmt"

	"github.com/opscart/k8s-auto-optimizer/pkg/cluster"
	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

// CheckFunc evaluates one precondition. It reports pass/fail with a
// human-readable detail; err is reserved for failures to evaluate (which
// count as check failures for gating purposes).
type CheckFunc func(ctx context.Context, action *models.OptimizationAction) (passed bool, detail string, err error)

// Check is a named, independently evaluable precondition. Critical checks
// block execution when they fail; informational checks never do.
type Check struct {
	Name     string
	Critical bool
	Enabled  bool
	Run      CheckFunc
}

const (
	CheckClusterHealth        = "cluster_health"
	CheckWorkloadHealth       = "workload_health"
	CheckResourceAvailability = "resource_availability"
	CheckPerformanceBaseline  = "performance_baseline"
	CheckBackupVerification   = "backup_verification"
	CheckNetworkConnectivity  = "network_connectivity"
)

// Gating thresholds for the built-in checks
const (
	maxClusterCPUPercent    = 90.0
	maxClusterMemoryPercent = 90.0
	minRunningPodFraction   = 0.5
	minFreeCPUMillicores    = 500
	minFreeMemoryBytes      = 512 * 1024 * 1024
)

func (m *Manager) defaultChecks() []Check {
	return []Check{
		{Name: CheckClusterHealth, Critical: true, Enabled: true, Run: m.checkClusterHealth},
		{Name: CheckWorkloadHealth, Critical: true, Enabled: true, Run: m.checkWorkloadHealth},
		{Name: CheckResourceAvailability, Critical: true, Enabled: true, Run: m.checkResourceAvailability},
		{Name: CheckPerformanceBaseline, Critical: false, Enabled: true, Run: m.checkPerformanceBaseline},
		{Name: CheckBackupVerification, Critical: false, Enabled: true, Run: m.checkBackupVerification},
		{Name: CheckNetworkConnectivity, Critical: false, Enabled: true, Run: m.checkNetworkConnectivity},
	}
}

func (m *Manager) checkClusterHealth(ctx context.Context, action *models.OptimizationAction) (bool, string, error) {
	metrics, err := m.cluster.GetClusterMetrics(ctx)
	if err != nil {
		return false, "cluster metrics unavailable", err
	}

	if metrics.NodeCount <= 0 {
		return false, "no nodes reported by the cluster", nil
	}
	if metrics.CPUUsagePercent >= maxClusterCPUPercent {
		return false, fmt.Sprintf("cluster CPU at %.1f%%, above %.0f%% ceiling", metrics.CPUUsagePercent, maxClusterCPUPercent), nil
	}
	if metrics.MemoryUsagePercent >= maxClusterMemoryPercent {
		return false, fmt.Sprintf("cluster memory at %.1f%%, above %.0f%% ceiling", metrics.MemoryUsagePercent, maxClusterMemoryPercent), nil
	}
	return true, fmt.Sprintf("%d nodes, CPU %.1f%%, memory %.1f%%", metrics.NodeCount, metrics.CPUUsagePercent, metrics.MemoryUsagePercent), nil
}

func (m *Manager) checkWorkloadHealth(ctx context.Context, action *models.OptimizationAction) (bool, string, error) {
	pods, err := m.cluster.ListPods(ctx, action.Namespace, "")
	if err != nil {
		return false, "pod listing failed", err
	}

	workloadPods := cluster.PodsForWorkload(pods, action.Workload)
	if len(workloadPods) == 0 {
		return false, fmt.Sprintf("no pods found for %s/%s", action.Namespace, action.Workload), nil
	}

	running := 0
	for _, pod := range workloadPods {
		if pod.Phase == "Running" {
			running++
		}
	}
	fraction := float64(running) / float64(len(workloadPods))
	detail := fmt.Sprintf("%d/%d pods running", running, len(workloadPods))
	return fraction >= minRunningPodFraction, detail, nil
}

func (m *Manager) checkResourceAvailability(ctx context.Context, action *models.OptimizationAction) (bool, string, error) {
	metrics, err := m.cluster.GetClusterMetrics(ctx)
	if err != nil {
		return false, "cluster metrics unavailable", err
	}

	if metrics.FreeCPUMillicores < minFreeCPUMillicores {
		return false, fmt.Sprintf("only %dm CPU free, need %dm", metrics.FreeCPUMillicores, int64(minFreeCPUMillicores)), nil
	}
	if metrics.FreeMemoryBytes < minFreeMemoryBytes {
		return false, fmt.Sprintf("only %dMi memory free, need %dMi", metrics.FreeMemoryBytes/(1024*1024), int64(minFreeMemoryBytes/(1024*1024))), nil
	}
	return true, fmt.Sprintf("%dm CPU and %dMi memory free", metrics.FreeCPUMillicores, metrics.FreeMemoryBytes/(1024*1024)), nil
}

// checkPerformanceBaseline snapshots current usage for post-change comparison.
// It passes whenever metrics are retrievable.
func (m *Manager) checkPerformanceBaseline(ctx context.Context, action *models.OptimizationAction) (bool, string, error) {
	podMetrics, err := m.cluster.GetPodMetrics(ctx, action.Workload, action.Namespace)
	if err != nil {
		return false, "usage metrics unavailable", err
	}

	m.mu.Lock()
	m.baselines[action.Namespace+"/"+action.Workload] = *podMetrics
	m.mu.Unlock()

	return true, fmt.Sprintf("baseline captured: %dm CPU, %dMi memory", podMetrics.CPUMillicores, podMetrics.MemoryBytes/(1024*1024)), nil
}

// checkBackupVerification is an extension point. No backup system is wired
// yet, so the check passes but flags itself as unverified rather than
// claiming a backup exists.
func (m *Manager) checkBackupVerification(ctx context.Context, action *models.OptimizationAction) (bool, string, error) {
	return true, "no backup system configured, state capture unverified", nil
}

// checkNetworkConnectivity is an extension point like backup verification
func (m *Manager) checkNetworkConnectivity(ctx context.Context, action *models.OptimizationAction) (bool, string, error) {
	return true, "no network probe configured, connectivity unverified", nil
}
