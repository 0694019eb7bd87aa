// Package storage persists plans, execution results, and the audit trail.
package storage

import (
	"context"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

// Store defines the interface for persistent storage
type Store interface {
	SavePlan(ctx context.Context, plan *models.OptimizationPlan) error
	GetPlan(ctx context.Context, id string) (*models.OptimizationPlan, error)
	ListPlans(ctx context.Context, clusterID string, limit int) ([]*models.OptimizationPlan, error)

	SaveResult(ctx context.Context, result *models.OptimizationResult) error
	ListResults(ctx context.Context, planID string, limit int) ([]*models.OptimizationResult, error)

	LogAudit(ctx context.Context, entry *models.AuditEntry) error
	GetAuditLog(ctx context.Context, actionID string) ([]*models.AuditEntry, error)

	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	URL     string
	Timeout int
}
