package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store interface using PostgreSQL. Plan actions and
// execution logs are stored as JSONB so schema changes in the action payload
// do not force migrations.
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_postgres_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// SavePlan saves an optimization plan with its actions
func (s *PostgresStore) SavePlan(ctx context.Context, plan *models.OptimizationPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}

	actions, err := json.Marshal(plan.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}
	checks, err := json.Marshal(plan.SafetyChecks)
	if err != nil {
		return fmt.Errorf("failed to encode safety checks: %w", err)
	}

	query := `
		INSERT INTO optimization_plans (
			id, cluster_id, actions, estimated_savings_usd,
			risk_assessment, safety_checks, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			actions = EXCLUDED.actions,
			status = EXCLUDED.status
	`

	_, err = s.db.ExecContext(ctx, query,
		plan.ID, plan.ClusterID, actions, plan.EstimatedSavings,
		plan.RiskAssessment, checks, plan.Status, plan.CreatedAt,
	)

	return err
}

// GetPlan retrieves a plan by ID
func (s *PostgresStore) GetPlan(ctx context.Context, id string) (*models.OptimizationPlan, error) {
	query := `
		SELECT id, cluster_id, actions, estimated_savings_usd,
			risk_assessment, safety_checks, status, created_at
		FROM optimization_plans
		WHERE id = $1
	`

	plan, err := scanPlan(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan not found: %s", id)
	}
	return plan, err
}

// ListPlans retrieves plans for a cluster, newest first
func (s *PostgresStore) ListPlans(ctx context.Context, clusterID string, limit int) ([]*models.OptimizationPlan, error) {
	query := `
		SELECT id, cluster_id, actions, estimated_savings_usd,
			risk_assessment, safety_checks, status, created_at
		FROM optimization_plans
		WHERE cluster_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, clusterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*models.OptimizationPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	return plans, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*models.OptimizationPlan, error) {
	var plan models.OptimizationPlan
	var actions, checks []byte

	err := row.Scan(
		&plan.ID, &plan.ClusterID, &actions, &plan.EstimatedSavings,
		&plan.RiskAssessment, &checks, &plan.Status, &plan.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(actions, &plan.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions for plan %s: %w", plan.ID, err)
	}
	if err := json.Unmarshal(checks, &plan.SafetyChecks); err != nil {
		return nil, fmt.Errorf("failed to decode safety checks for plan %s: %w", plan.ID, err)
	}

	return &plan, nil
}

// SaveResult saves a finalized execution result
func (s *PostgresStore) SaveResult(ctx context.Context, result *models.OptimizationResult) error {
	if result.ExecutionID == "" {
		result.ExecutionID = uuid.New().String()
	}

	log, err := json.Marshal(result.ExecutionLog)
	if err != nil {
		return fmt.Errorf("failed to encode execution log: %w", err)
	}

	query := `
		INSERT INTO execution_results (
			execution_id, plan_id, successful_actions, failed_actions,
			actual_savings_usd, rollback_count, execution_log, status,
			dry_run, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		result.ExecutionID, result.PlanID, result.SuccessfulActions, result.FailedActions,
		result.ActualSavings, result.RollbackCount, log, result.Status,
		result.DryRun, result.StartedAt, result.FinishedAt,
	)

	return err
}

// ListResults retrieves execution results for a plan, newest first
func (s *PostgresStore) ListResults(ctx context.Context, planID string, limit int) ([]*models.OptimizationResult, error) {
	query := `
		SELECT execution_id, plan_id, successful_actions, failed_actions,
			actual_savings_usd, rollback_count, execution_log, status,
			dry_run, started_at, finished_at
		FROM execution_results
		WHERE plan_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, planID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.OptimizationResult
	for rows.Next() {
		var result models.OptimizationResult
		var log []byte

		err := rows.Scan(
			&result.ExecutionID, &result.PlanID, &result.SuccessfulActions, &result.FailedActions,
			&result.ActualSavings, &result.RollbackCount, &log, &result.Status,
			&result.DryRun, &result.StartedAt, &result.FinishedAt,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(log, &result.ExecutionLog); err != nil {
			return nil, fmt.Errorf("failed to decode execution log for %s: %w", result.ExecutionID, err)
		}
		result.Duration = result.FinishedAt.Sub(result.StartedAt)

		results = append(results, &result)
	}

	return results, rows.Err()
}

// LogAudit appends an entry to the audit trail
func (s *PostgresStore) LogAudit(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}

	query := `
		INSERT INTO audit_log (
			id, action_id, plan_id, event, status,
			error_message, executed_by, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.ActionID, entry.PlanID, entry.Event, entry.Status,
		entry.ErrorMessage, entry.ExecutedBy, entry.ExecutedAt,
	)

	return err
}

// GetAuditLog retrieves audit entries for an action
func (s *PostgresStore) GetAuditLog(ctx context.Context, actionID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, action_id, plan_id, event, status,
			error_message, executed_by, executed_at
		FROM audit_log
		WHERE action_id = $1
		ORDER BY executed_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var errorMessage, executedBy sql.NullString

		err := rows.Scan(
			&entry.ID, &entry.ActionID, &entry.PlanID, &entry.Event, &entry.Status,
			&errorMessage, &executedBy, &entry.ExecutedAt,
		)
		if err != nil {
			return nil, err
		}

		if errorMessage.Valid {
			entry.ErrorMessage = errorMessage.String
		}
		if executedBy.Valid {
			entry.ExecutedBy = executedBy.String
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
