// Package executor implements the three optimization strategies behind one
// shared lifecycle: validate, gate on safety checks, snapshot, compute a
// target, apply, settle and verify, roll back on failure, record. Strategies
// differ only in the state they compute and the mutation they issue.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
	"github.com/opscart/k8s-auto-optimizer/pkg/safety"
	"github.com/sirupsen/logrus"
)

// ErrAlreadySatisfied signals that the workload is already in the target
// state; the action succeeds without issuing a mutation.
var ErrAlreadySatisfied = errors.New("workload already in target state")

// ErrBelowThreshold signals that the computed benefit does not clear the
// strategy's configured threshold; the action aborts without mutating.
var ErrBelowThreshold = errors.New("computed savings below threshold")

// Strategy supplies the state-specific pieces of the lifecycle
type Strategy interface {
	Name() string
	Type() models.ActionType

	// Snapshot reads the live state the strategy will mutate
	Snapshot(ctx context.Context, action *models.OptimizationAction) (models.StateMap, error)
	// ComputeTarget derives the desired state. May return ErrAlreadySatisfied
	// or ErrBelowThreshold to finish without mutating.
	ComputeTarget(ctx context.Context, action *models.OptimizationAction, current models.StateMap) (models.StateMap, error)
	// Apply issues the mutation
	Apply(ctx context.Context, action *models.OptimizationAction, target models.StateMap) error
	// Verify re-fetches state and asserts the mutation held and the workload
	// is healthy
	Verify(ctx context.Context, action *models.OptimizationAction, target models.StateMap) error

	VerificationDelay() time.Duration
	Timeout() time.Duration
}

// targetStateChecker is an optional strategy extension. A strategy whose
// target state can already hold before any mutation implements it so
// idempotent re-runs succeed before the safety gate; the gate's workload
// checks assume a live workload, which a completed scale-to-zero no
// longer has.
type targetStateChecker interface {
	AlreadyAtTarget(ctx context.Context, action *models.OptimizationAction) (models.StateMap, bool, error)
}

// ActionExecutor is the closed dispatch surface the engine sees
type ActionExecutor interface {
	Type() models.ActionType
	Execute(ctx context.Context, action *models.OptimizationAction) *models.ExecutionResult
	Metrics() models.OperationMetrics
}

// recordFunc lets a strategy executor keep its own typed result record
type recordFunc func(result *models.ExecutionResult, current, target models.StateMap)

// Runner drives the shared lifecycle for one strategy. Active operations and
// history are guarded so actions for different workloads may run
// concurrently.
type Runner struct {
	strategy Strategy
	safety   *safety.Manager
	record   recordFunc
	log      *logrus.Entry

	mu      sync.Mutex
	active  map[string]time.Time
	history []models.ExecutionResult
}

func newRunner(strategy Strategy, sm *safety.Manager, record recordFunc) *Runner {
	return &Runner{
		strategy: strategy,
		safety:   sm,
		record:   record,
		log:      logrus.WithField("strategy", strategy.Name()),
		active:   make(map[string]time.Time),
	}
}

// Execute runs the full lifecycle for one action. It always returns a result
// record; errors are folded into it rather than propagated, so one action's
// failure never aborts the caller's plan.
func (r *Runner) Execute(ctx context.Context, action *models.OptimizationAction) *models.ExecutionResult {
	result := &models.ExecutionResult{
		ActionID:  action.ID,
		Workload:  action.Workload,
		Namespace: action.Namespace,
		StartedAt: time.Now(),
	}

	r.mu.Lock()
	r.active[action.ID] = result.StartedAt
	r.mu.Unlock()

	defer func() {
		result.Duration = time.Since(result.StartedAt)
		r.mu.Lock()
		delete(r.active, action.ID)
		r.history = append(r.history, *result)
		r.mu.Unlock()
	}()

	if timeout := r.strategy.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log := r.log.WithFields(logrus.Fields{
		"action":    action.ID,
		"workload":  action.Workload,
		"namespace": action.Namespace,
	})

	// Step 1: validate before any cluster contact
	if err := r.validate(action); err != nil {
		r.fail(action, result, models.FailureValidation, err)
		return result
	}
	if err := action.Transition(models.StatusExecuting); err != nil {
		r.fail(action, result, models.FailureValidation, err)
		return result
	}

	// Idempotent re-runs finish before the gate: there is nothing left to
	// mutate, so there is nothing for the checks to protect.
	if checker, ok := r.strategy.(targetStateChecker); ok {
		if current, done, err := checker.AlreadyAtTarget(ctx, action); err == nil && done {
			result.Success = true
			result.VerificationPassed = true
			_ = action.Transition(models.StatusCompleted)
			if r.record != nil {
				r.record(result, current, current)
			}
			log.Info("workload already at target, nothing to do")
			return result
		}
	}

	// Step 2: safety gate
	checks := r.safety.PerformSafetyChecks(ctx, action)
	if failure := safety.FirstCriticalFailure(checks); failure != nil {
		err := fmt.Errorf("critical safety check %s failed: %s", failure.CheckName, failure.Detail)
		r.fail(action, result, models.FailureGating, err)
		log.WithField("check", failure.CheckName).Warn("action blocked by safety gate")
		return result
	}

	// Step 3: snapshot live state
	current, err := r.strategy.Snapshot(ctx, action)
	if err != nil {
		r.fail(action, result, models.FailureMutation, fmt.Errorf("state snapshot failed: %w", err))
		return result
	}

	// Step 4: compute target state
	target, err := r.strategy.ComputeTarget(ctx, action, current)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadySatisfied):
			result.Success = true
			result.VerificationPassed = true
			_ = action.Transition(models.StatusCompleted)
			if r.record != nil {
				r.record(result, current, current)
			}
			log.Info("workload already at target, nothing to do")
			return result
		case errors.Is(err, ErrBelowThreshold):
			r.fail(action, result, models.FailureValidation, err)
			log.Info("action skipped, benefit below threshold")
			return result
		default:
			r.fail(action, result, models.FailureMutation, fmt.Errorf("target computation failed: %w", err))
			return result
		}
	}

	// Step 5: apply the mutation
	if err := r.strategy.Apply(ctx, action, target); err != nil {
		// Nothing changed, no rollback needed
		r.fail(action, result, models.FailureMutation, err)
		return result
	}

	// Step 6: settle, then verify state and health
	if err := waitSettle(ctx, r.strategy.VerificationDelay()); err != nil {
		r.rollbackAfterFailure(ctx, action, result, fmt.Errorf("interrupted before verification: %w", err))
		if r.record != nil {
			r.record(result, current, target)
		}
		return result
	}
	if err := r.strategy.Verify(ctx, action, target); err != nil {
		r.rollbackAfterFailure(ctx, action, result, err)
		if r.record != nil {
			r.record(result, current, target)
		}
		return result
	}

	// Step 8: record success
	result.Success = true
	result.VerificationPassed = true
	_ = action.Transition(models.StatusCompleted)
	if r.record != nil {
		r.record(result, current, target)
	}
	log.Info("action completed and verified")
	return result
}

func (r *Runner) validate(action *models.OptimizationAction) error {
	if err := action.Validate(); err != nil {
		return err
	}
	if action.Type != r.strategy.Type() {
		return fmt.Errorf("action %s has type %q, executor handles %q", action.ID, action.Type, r.strategy.Type())
	}
	return nil
}

func (r *Runner) fail(action *models.OptimizationAction, result *models.ExecutionResult, kind string, err error) {
	result.Error = err.Error()
	result.FailureKind = kind
	if action.Status == models.StatusPending {
		_ = action.Transition(models.StatusExecuting)
	}
	_ = action.Transition(models.StatusFailed)
}

// rollbackAfterFailure handles step 7: verification failed after a mutation,
// so restoring the snapshot is mandatory
func (r *Runner) rollbackAfterFailure(ctx context.Context, action *models.OptimizationAction, result *models.ExecutionResult, verifyErr error) {
	result.RollbackRequired = true
	result.FailureKind = models.FailureVerification
	result.Error = verifyErr.Error()
	_ = action.Transition(models.StatusFailed)

	// Rollback runs on a fresh context: the action context may already be
	// past its deadline, and restoring state must still be attempted.
	rollbackCtx := context.WithoutCancel(ctx)
	if err := r.safety.RollbackAction(rollbackCtx, action); err != nil {
		result.FailureKind = models.FailureRollback
		result.Error = fmt.Sprintf("FATAL: verification failed (%v) and rollback failed: %v", verifyErr, err)
		r.log.WithField("action", action.ID).Error(result.Error)
		return
	}

	result.RollbackSucceeded = true
	_ = action.Transition(models.StatusRolledBack)
}

// Metrics snapshots this executor's history for dashboards
func (r *Runner) Metrics() models.OperationMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics := models.OperationMetrics{
		Total:            len(r.history),
		ActiveOperations: len(r.active),
	}
	var total time.Duration
	for _, res := range r.history {
		if res.Success {
			metrics.Succeeded++
		} else {
			metrics.Failed++
		}
		if res.RollbackRequired {
			metrics.Rollbacks++
		}
		total += res.Duration
	}
	if len(r.history) > 0 {
		metrics.AvgExecutionTime = total / time.Duration(len(r.history))
	}
	return metrics
}

// History returns a copy of the finalized generic result records
func (r *Runner) History() []models.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ExecutionResult, len(r.history))
	copy(out, r.history)
	return out
}

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
