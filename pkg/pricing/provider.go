package pricing

import (
	"context"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

// Provider defines the interface for cloud pricing data. Estimated savings
// must never be derived from hardcoded constants in the callers; they go
// through a Provider so real deployments can plug in provider-specific rates.
type Provider interface {
	GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error)
	Name() string
}

type Config struct {
	Provider       string
	Region         string
	DefaultCPUHour float64
	DefaultMemHour float64
}
