// Package safety gates mutations before they happen and restores original
// state after a failed one. It is the one component every strategy executor
// depends on.
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opscart/k8s-auto-optimizer/pkg/cluster"
	"github.com/opscart/k8s-auto-optimizer/pkg/config"
	"github.com/opscart/k8s-auto-optimizer/pkg/models"
	"github.com/sirupsen/logrus"
)

// Manager runs named pre-flight checks against cluster and workload state,
// and executes rollback procedures with verification.
type Manager struct {
	cluster   cluster.Interface
	cfg       config.SafetyConfig
	checks    []Check
	log       *logrus.Entry
	onFailure func(check string)

	mu        sync.Mutex
	history   []models.SafetyCheckResult
	baselines map[string]models.PodMetrics
	rollbacks rollbackStats
}

type rollbackStats struct {
	total     int
	succeeded int
	failed    int
}

func NewManager(c cluster.Interface, cfg config.SafetyConfig) *Manager {
	m := &Manager{
		cluster:   c,
		cfg:       cfg,
		log:       logrus.WithField("component", "safety"),
		baselines: make(map[string]models.PodMetrics),
	}
	m.checks = m.defaultChecks()
	return m
}

// SetFailureHook registers a callback invoked with the name of every failed
// check. Callers wire it to their metrics; set it before running checks.
func (m *Manager) SetFailureHook(hook func(check string)) {
	m.onFailure = hook
}

// SetCheckEnabled toggles a registered check by name
func (m *Manager) SetCheckEnabled(name string, enabled bool) {
	for i := range m.checks {
		if m.checks[i].Name == name {
			m.checks[i].Enabled = enabled
		}
	}
}

// CheckNames lists the registered check names, for plan metadata
func (m *Manager) CheckNames() []string {
	names := make([]string, 0, len(m.checks))
	for _, c := range m.checks {
		if c.Enabled {
			names = append(names, c.Name)
		}
	}
	return names
}

// PerformSafetyChecks runs every enabled registered check against the
// action's workload. All enabled checks run regardless of earlier outcomes;
// the caller decides whether a critical failure aborts the action.
func (m *Manager) PerformSafetyChecks(ctx context.Context, action *models.OptimizationAction) []models.SafetyCheckResult {
	results := make([]models.SafetyCheckResult, 0, len(m.checks))

	for _, check := range m.checks {
		if !check.Enabled {
			continue
		}

		start := time.Now()
		passed, detail, err := check.Run(ctx, action)
		result := models.SafetyCheckResult{
			CheckName:  check.Name,
			Passed:     passed && err == nil,
			Critical:   check.Critical,
			Detail:     detail,
			Duration:   time.Since(start),
			ExecutedAt: start,
		}
		if err != nil {
			result.Error = err.Error()
		}
		if !result.Passed && m.onFailure != nil {
			m.onFailure(check.Name)
		}

		m.log.WithFields(logrus.Fields{
			"check":    check.Name,
			"passed":   result.Passed,
			"critical": check.Critical,
			"workload": action.Workload,
		}).Debug("safety check evaluated")

		results = append(results, result)
	}

	m.mu.Lock()
	m.history = append(m.history, results...)
	m.mu.Unlock()

	return results
}

// FirstCriticalFailure returns the first failed critical check, or nil when
// the action is safe to execute
func FirstCriticalFailure(results []models.SafetyCheckResult) *models.SafetyCheckResult {
	for i := range results {
		if results[i].Critical && !results[i].Passed {
			return &results[i]
		}
	}
	return nil
}

// RollbackAction restores a workload to the state captured in the action's
// rollback plan, waits for the cluster to settle, and verifies the workload
// came back healthy. A rollback that cannot restore health is reported as an
// error but is terminal: no retry is attempted.
func (m *Manager) RollbackAction(ctx context.Context, action *models.OptimizationAction) error {
	m.mu.Lock()
	m.rollbacks.total++
	m.mu.Unlock()

	err := m.rollback(ctx, action)

	m.mu.Lock()
	if err != nil {
		m.rollbacks.failed++
	} else {
		m.rollbacks.succeeded++
	}
	m.mu.Unlock()

	return err
}

func (m *Manager) rollback(ctx context.Context, action *models.OptimizationAction) error {
	if action.Rollback == nil {
		return fmt.Errorf("action %s has no rollback plan", action.ID)
	}

	log := m.log.WithFields(logrus.Fields{
		"action":    action.ID,
		"workload":  action.Workload,
		"namespace": action.Namespace,
		"type":      action.Type,
	})
	log.Warn("rolling back action")

	rollbackCtx := ctx
	if action.Rollback.Timeout > 0 {
		var cancel context.CancelFunc
		rollbackCtx, cancel = context.WithTimeout(ctx, action.Rollback.Timeout)
		defer cancel()
	}

	switch action.Type {
	case models.ActionScaleToZero:
		replicas, ok := action.Rollback.OriginalState.Int64("replicas")
		if !ok {
			return fmt.Errorf("rollback plan for %s is missing original replicas", action.ID)
		}
		if err := m.cluster.ScaleDeployment(rollbackCtx, action.Workload, action.Namespace, int32(replicas)); err != nil {
			return fmt.Errorf("rollback scale failed: %w", err)
		}

	case models.ActionRightsize:
		requests, limits, err := resourcesFromState(action.Rollback.OriginalState)
		if err != nil {
			return fmt.Errorf("rollback plan for %s: %w", action.ID, err)
		}
		if err := m.cluster.PatchDeploymentResources(rollbackCtx, action.Workload, action.Namespace, requests, limits); err != nil {
			return fmt.Errorf("rollback resource restore failed: %w", err)
		}

	case models.ActionCostOptimize:
		// Cost substitutions are configuration-level; restoring them is a
		// recorded no-op until a real cost mutation backend exists.
		log.Info("cost optimization rollback recorded, no cluster mutation to undo")

	default:
		return fmt.Errorf("no rollback procedure for action type %q", action.Type)
	}

	if err := waitSettle(rollbackCtx, m.cfg.RollbackSettleDelay); err != nil {
		return fmt.Errorf("rollback interrupted while settling: %w", err)
	}

	return m.verifyRollback(rollbackCtx, action)
}

// verifyRollback requires at least one Running pod after restore, except for
// actions whose original state was already zero replicas
func (m *Manager) verifyRollback(ctx context.Context, action *models.OptimizationAction) error {
	if replicas, ok := action.Rollback.OriginalState.Int64("replicas"); ok && replicas == 0 {
		return nil
	}

	pods, err := m.cluster.ListPods(ctx, action.Namespace, "")
	if err != nil {
		return fmt.Errorf("rollback verification failed to list pods: %w", err)
	}

	for _, pod := range cluster.PodsForWorkload(pods, action.Workload) {
		if pod.Phase == "Running" {
			return nil
		}
	}
	return fmt.Errorf("rollback of %s/%s did not restore a running pod", action.Namespace, action.Workload)
}

// resourcesFromState rejects incomplete state rather than defaulting: a
// resource patch always writes both requests and limits, so restoring from
// a plan that lacks either would overwrite live values with zeros.
func resourcesFromState(state models.StateMap) (models.ResourceSpec, models.ResourceSpec, error) {
	var requests, limits models.ResourceSpec
	var ok bool

	if requests.CPUMillicores, ok = state.Int64("request_cpu_millicores"); !ok {
		return requests, limits, fmt.Errorf("missing original CPU request")
	}
	if requests.MemoryBytes, ok = state.Int64("request_memory_bytes"); !ok {
		return requests, limits, fmt.Errorf("missing original memory request")
	}
	if limits.CPUMillicores, ok = state.Int64("limit_cpu_millicores"); !ok {
		return requests, limits, fmt.Errorf("missing original CPU limit")
	}
	if limits.MemoryBytes, ok = state.Int64("limit_memory_bytes"); !ok {
		return requests, limits, fmt.Errorf("missing original memory limit")
	}
	return requests, limits, nil
}

// Baseline returns the usage snapshot captured by the performance baseline
// check for a workload, if one exists
func (m *Manager) Baseline(workload, namespace string) (models.PodMetrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.baselines[namespace+"/"+workload]
	return b, ok
}

// History returns a copy of the accumulated check results for audit
func (m *Manager) History() []models.SafetyCheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SafetyCheckResult, len(m.history))
	copy(out, m.history)
	return out
}

// Metrics snapshots safety activity for external dashboards
func (m *Manager) Metrics() models.OperationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := models.OperationMetrics{
		Total:     len(m.history),
		Rollbacks: m.rollbacks.total,
	}
	var total time.Duration
	for _, r := range m.history {
		if r.Passed {
			metrics.Succeeded++
		} else {
			metrics.Failed++
		}
		total += r.Duration
	}
	if len(m.history) > 0 {
		metrics.AvgExecutionTime = total / time.Duration(len(m.history))
	}
	return metrics
}

// waitSettle sleeps for d unless the context is cancelled first
func waitSettle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
