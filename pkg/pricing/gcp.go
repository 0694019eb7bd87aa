package pricing

import (
	"context"
	"time"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

// GCPProvider implements GKE pricing
type GCPProvider struct {
	region string
	cache  *PriceCache
}

func NewGCPProvider(region string) *GCPProvider {
	return &GCPProvider{
		region: region,
		cache:  NewPriceCache(24 * time.Hour),
	}
}

func (g *GCPProvider) Name() string {
	return "gcp"
}

func (g *GCPProvider) GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error) {
	// Typical GCP on-demand pricing (e2/n2 averages)
	return &models.CostInfo{
		Provider:        "gcp",
		Region:          region,
		CPUPerCoreHour:  0.044,
		MemoryPerGBHour: 0.0059,
		Currency:        "USD",
		LastUpdated:     time.Now(),
	}, nil
}
