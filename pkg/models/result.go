package models

import "time"

// OptimizationResult is the outcome of executing a plan. Append-only once
// finalized; stored in the engine's execution history.
type OptimizationResult struct {
	ExecutionID       string        `json:"execution_id"`
	PlanID            string        `json:"plan_id"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	SuccessfulActions int           `json:"successful_actions"`
	FailedActions     int           `json:"failed_actions"`
	ActualSavings     float64       `json:"actual_savings"` // prorated, not re-measured
	RollbackCount     int           `json:"rollback_count"`
	ExecutionLog      []string      `json:"execution_log"`
	Status            PlanStatus    `json:"status"`
	DryRun            bool          `json:"dry_run"`
	Duration          time.Duration `json:"duration"`
}

// FailureKind classifies how an action failed, mirroring the error taxonomy:
// validation and gating failures happen before any mutation, mutation
// failures leave the cluster untouched, verification failures trigger
// rollback, rollback failures are terminal.
const (
	FailureValidation   = "validation"
	FailureGating       = "gating"
	FailureMutation     = "mutation"
	FailureVerification = "verification"
	FailureRollback     = "rollback"
)

// ExecutionResult is the shared core of every per-strategy result record
type ExecutionResult struct {
	ActionID           string        `json:"action_id"`
	Workload           string        `json:"workload"`
	Namespace          string        `json:"namespace"`
	Success            bool          `json:"success"`
	VerificationPassed bool          `json:"verification_passed"`
	RollbackRequired   bool          `json:"rollback_required"`
	RollbackSucceeded  bool          `json:"rollback_succeeded"`
	Error              string        `json:"error,omitempty"`
	FailureKind        string        `json:"failure_kind,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
}

// ScalingResult records a zero-pod scaling cycle
type ScalingResult struct {
	ExecutionResult
	OriginalReplicas int32 `json:"original_replicas"`
	TargetReplicas   int32 `json:"target_replicas"`
	AlreadyAtTarget  bool  `json:"already_at_target"`
}

// RightsizingResult records a resource rightsizing cycle
type RightsizingResult struct {
	ExecutionResult
	OriginalCPUMillicores  int64 `json:"original_cpu_millicores"`
	OriginalMemoryBytes    int64 `json:"original_memory_bytes"`
	OptimizedCPUMillicores int64 `json:"optimized_cpu_millicores"`
	OptimizedMemoryBytes   int64 `json:"optimized_memory_bytes"`
}

// CostOptimizationResult records a cost optimization cycle
type CostOptimizationResult struct {
	ExecutionResult
	CurrentMonthlyCost   float64  `json:"current_monthly_cost"`
	OptimizedMonthlyCost float64  `json:"optimized_monthly_cost"`
	CostSavings          float64  `json:"cost_savings"`
	Categories           []string `json:"categories"`
}

// SafetyCheckResult is the outcome of one named safety check. Never mutated
// after creation; accumulated in the safety history for audit.
type SafetyCheckResult struct {
	CheckName  string        `json:"check_name"`
	Passed     bool          `json:"passed"`
	Critical   bool          `json:"critical"`
	Detail     string        `json:"detail"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	ExecutedAt time.Time     `json:"executed_at"`
}

// AuditEntry records an execution or rollback event for the audit trail
type AuditEntry struct {
	ID           string    `json:"id"`
	ActionID     string    `json:"action_id"`
	PlanID       string    `json:"plan_id"`
	Event        string    `json:"event"`  // EXECUTED, ROLLED_BACK
	Status       string    `json:"status"` // SUCCESS, FAILED
	ErrorMessage string    `json:"error_message,omitempty"`
	ExecutedBy   string    `json:"executed_by,omitempty"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// OperationMetrics is a read-only snapshot of a component's history for
// external dashboards
type OperationMetrics struct {
	Total            int           `json:"total"`
	Succeeded        int           `json:"succeeded"`
	Failed           int           `json:"failed"`
	Rollbacks        int           `json:"rollbacks"`
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	ActiveOperations int           `json:"active_operations"`
}
