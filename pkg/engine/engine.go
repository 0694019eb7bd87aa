// Package engine turns cluster analysis into optimization plans and executes
// them action by action through the strategy executors.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opscart/k8s-auto-optimizer/pkg/analytics"
	"github.com/opscart/k8s-auto-optimizer/pkg/cluster"
	"github.com/opscart/k8s-auto-optimizer/pkg/config"
	"github.com/opscart/k8s-auto-optimizer/pkg/executor"
	"github.com/opscart/k8s-auto-optimizer/pkg/models"
	"github.com/opscart/k8s-auto-optimizer/pkg/pricing"
	"github.com/opscart/k8s-auto-optimizer/pkg/safety"
	"github.com/opscart/k8s-auto-optimizer/pkg/storage"
	"github.com/opscart/k8s-auto-optimizer/pkg/telemetry"
	"github.com/sirupsen/logrus"
)

// Options wires the engine's collaborators. Cluster, Collector, Predictor,
// Pricing, Safety and the three executors are required; Store and Telemetry
// are optional.
type Options struct {
	Cluster   cluster.Interface
	Collector *analytics.Collector
	Predictor analytics.Predictor
	Pricing   pricing.Provider
	Safety    *safety.Manager
	ZeroPod   *executor.ZeroPodScaler
	Rightsize *executor.Rightsizer
	Cost      *executor.CostOptimizer
	Store     storage.Store
	Telemetry *telemetry.Collectors
	Config    *config.Config
}

// Engine owns plans and results for their whole lifetime. Executors own
// their in-flight records; the engine only ever aggregates their outcomes.
type Engine struct {
	cluster    cluster.Interface
	collector  *analytics.Collector
	predictor  analytics.Predictor
	pricing    pricing.Provider
	safety     *safety.Manager
	rightsizer *executor.Rightsizer
	executors  map[models.ActionType]executor.ActionExecutor
	store      storage.Store
	telemetry  *telemetry.Collectors
	cfg        *config.Config
	log        *logrus.Entry

	mu      sync.Mutex
	plans   map[string]*models.OptimizationPlan
	results []*models.OptimizationResult
}

func New(opts Options) (*Engine, error) {
	if opts.Cluster == nil {
		return nil, fmt.Errorf("engine requires a cluster interface")
	}
	if opts.Collector == nil {
		return nil, fmt.Errorf("engine requires a usage collector")
	}
	if opts.Predictor == nil {
		return nil, fmt.Errorf("engine requires a predictor")
	}
	if opts.Pricing == nil {
		return nil, fmt.Errorf("engine requires a pricing provider")
	}
	if opts.Safety == nil {
		return nil, fmt.Errorf("engine requires a safety manager")
	}
	if opts.ZeroPod == nil || opts.Rightsize == nil || opts.Cost == nil {
		return nil, fmt.Errorf("engine requires all three strategy executors")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("engine requires configuration")
	}

	// Closed dispatch: adding a strategy means adding a field to Options
	// and an entry here, checked at compile time.
	executors := map[models.ActionType]executor.ActionExecutor{
		models.ActionScaleToZero:  opts.ZeroPod,
		models.ActionRightsize:    opts.Rightsize,
		models.ActionCostOptimize: opts.Cost,
	}

	return &Engine{
		cluster:    opts.Cluster,
		collector:  opts.Collector,
		predictor:  opts.Predictor,
		pricing:    opts.Pricing,
		safety:     opts.Safety,
		rightsizer: opts.Rightsize,
		executors:  executors,
		store:      opts.Store,
		telemetry:  opts.Telemetry,
		cfg:        opts.Config,
		log:        logrus.WithField("component", "engine"),
		plans:      make(map[string]*models.OptimizationPlan),
	}, nil
}

// GetPlan returns a previously proposed plan
func (e *Engine) GetPlan(planID string) (*models.OptimizationPlan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, ok := e.plans[planID]
	if !ok {
		return nil, fmt.Errorf("plan %s not found", planID)
	}
	return plan, nil
}

// ExecutePlan runs a plan's actions in proposal order. One action's failure,
// including its rollback, is fully resolved before the next action starts
// and never aborts the remainder of the plan. The returned result is always
// complete, even when every action fails.
func (e *Engine) ExecutePlan(ctx context.Context, planID string, dryRun bool) (*models.OptimizationResult, error) {
	plan, err := e.GetPlan(planID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	plan.Status = models.PlanExecuting
	e.mu.Unlock()

	result := &models.OptimizationResult{
		ExecutionID: uuid.New().String(),
		PlanID:      plan.ID,
		StartedAt:   time.Now(),
		DryRun:      dryRun,
	}

	log := e.log.WithFields(logrus.Fields{
		"plan":    plan.ID,
		"actions": len(plan.Actions),
		"dry_run": dryRun,
	})
	log.Info("executing optimization plan")

	for i, action := range plan.Actions {
		prefix := fmt.Sprintf("[%d/%d] %s %s/%s", i+1, len(plan.Actions), action.Type, action.Namespace, action.Workload)

		if dryRun {
			result.SuccessfulActions++
			result.ExecutionLog = append(result.ExecutionLog,
				fmt.Sprintf("%s: simulated, would save $%.2f/month", prefix, action.EstimatedSavings))
			continue
		}

		outcome := e.executeAction(ctx, plan.ID, action)
		if outcome.RollbackRequired {
			result.RollbackCount++
			if e.telemetry != nil {
				e.telemetry.RollbacksTotal.Inc()
			}
		}

		if outcome.Success {
			result.SuccessfulActions++
			result.ExecutionLog = append(result.ExecutionLog,
				fmt.Sprintf("%s: completed and verified in %s", prefix, outcome.Duration.Round(time.Millisecond)))
		} else {
			result.FailedActions++
			line := fmt.Sprintf("%s: failed (%s): %s", prefix, outcome.FailureKind, outcome.Error)
			if outcome.RollbackRequired {
				if outcome.RollbackSucceeded {
					line += "; original state restored"
				} else {
					line += "; ROLLBACK FAILED, operator attention required"
				}
			}
			result.ExecutionLog = append(result.ExecutionLog, line)
		}

		if e.telemetry != nil {
			outcomeLabel := "success"
			if !outcome.Success {
				outcomeLabel = "failure"
			}
			e.telemetry.ActionsTotal.WithLabelValues(string(action.Type), outcomeLabel).Inc()
		}
	}

	// Conservative proration: mutation does not guarantee the estimated
	// savings actually materialize, so scale the estimate by the success
	// ratio instead of re-measuring.
	total := len(plan.Actions)
	if total > 0 {
		result.ActualSavings = plan.EstimatedSavings * float64(result.SuccessfulActions) / float64(total)
	}

	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	if total > 0 && result.SuccessfulActions == 0 && !dryRun {
		result.Status = models.PlanFailed
	} else {
		result.Status = models.PlanCompleted
	}

	e.mu.Lock()
	plan.Status = result.Status
	e.results = append(e.results, result)
	e.mu.Unlock()

	if e.telemetry != nil {
		e.telemetry.PlansTotal.Inc()
		e.telemetry.RealizedSavings.Add(result.ActualSavings)
	}

	if e.store != nil && !dryRun {
		if err := e.store.SaveResult(ctx, result); err != nil {
			log.WithError(err).Warn("failed to persist execution result")
		}
	}

	log.WithFields(logrus.Fields{
		"succeeded": result.SuccessfulActions,
		"failed":    result.FailedActions,
		"rollbacks": result.RollbackCount,
		"savings":   result.ActualSavings,
	}).Info("plan execution finished")
	return result, nil
}

// executeAction dispatches one action to its type-matched executor,
// containing panics and unknown types as per-action failures
func (e *Engine) executeAction(ctx context.Context, planID string, action *models.OptimizationAction) (outcome *models.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("action", action.ID).Errorf("executor panicked: %v", r)
			outcome = &models.ExecutionResult{
				ActionID:    action.ID,
				Workload:    action.Workload,
				Namespace:   action.Namespace,
				Error:       fmt.Sprintf("executor panicked: %v", r),
				FailureKind: models.FailureMutation,
			}
		}
	}()

	exec, ok := e.executors[action.Type]
	if !ok {
		e.log.WithFields(logrus.Fields{
			"action": action.ID,
			"type":   action.Type,
		}).Error("no executor registered for action type")
		return &models.ExecutionResult{
			ActionID:    action.ID,
			Workload:    action.Workload,
			Namespace:   action.Namespace,
			Error:       fmt.Sprintf("unknown action type %q", action.Type),
			FailureKind: models.FailureValidation,
		}
	}

	if e.telemetry != nil {
		e.telemetry.ActiveOperations.Inc()
		defer e.telemetry.ActiveOperations.Dec()
	}

	outcome = exec.Execute(ctx, action)

	if e.store != nil {
		entry := &models.AuditEntry{
			ID:         uuid.New().String(),
			ActionID:   action.ID,
			PlanID:     planID,
			Event:      "EXECUTED",
			Status:     "SUCCESS",
			ExecutedAt: time.Now(),
		}
		if !outcome.Success {
			entry.Status = "FAILED"
			entry.ErrorMessage = outcome.Error
		}
		if err := e.store.LogAudit(ctx, entry); err != nil {
			e.log.WithError(err).Warn("failed to write audit entry")
		}
		if outcome.RollbackRequired {
			rb := &models.AuditEntry{
				ID:         uuid.New().String(),
				ActionID:   action.ID,
				PlanID:     planID,
				Event:      "ROLLED_BACK",
				Status:     "SUCCESS",
				ExecutedAt: time.Now(),
			}
			if !outcome.RollbackSucceeded {
				rb.Status = "FAILED"
			}
			if err := e.store.LogAudit(ctx, rb); err != nil {
				e.log.WithError(err).Warn("failed to write rollback audit entry")
			}
		}
	}

	return outcome
}

// History returns the finalized execution results, newest last
func (e *Engine) History() []*models.OptimizationResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.OptimizationResult, len(e.results))
	copy(out, e.results)
	return out
}

// Metrics snapshots engine-level activity for dashboards
func (e *Engine) Metrics() models.OperationMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	metrics := models.OperationMetrics{Total: len(e.results)}
	var total time.Duration
	for _, r := range e.results {
		if r.Status == models.PlanCompleted {
			metrics.Succeeded++
		} else {
			metrics.Failed++
		}
		metrics.Rollbacks += r.RollbackCount
		total += r.Duration
	}
	if len(e.results) > 0 {
		metrics.AvgExecutionTime = total / time.Duration(len(e.results))
	}
	return metrics
}

// ExecutorMetrics exposes the per-strategy snapshots
func (e *Engine) ExecutorMetrics() map[models.ActionType]models.OperationMetrics {
	out := make(map[models.ActionType]models.OperationMetrics, len(e.executors))
	for t, exec := range e.executors {
		out[t] = exec.Metrics()
	}
	return out
}

// SafetyMetrics exposes the safety manager's snapshot
func (e *Engine) SafetyMetrics() models.OperationMetrics {
	return e.safety.Metrics()
}
