package pricing

import (
	"context"
	"time"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

// DefaultProvider provides fallback pricing for on-prem or unknown clouds
type DefaultProvider struct {
	cpuHour float64
	memHour float64
}

func NewDefaultProvider(cpuHour, memHour float64) *DefaultProvider {
	if cpuHour == 0 {
		cpuHour = 0.032 // Conservative default, ~$23/core/month
	}
	if memHour == 0 {
		memHour = 0.004 // ~$3/GiB/month
	}
	return &DefaultProvider{
		cpuHour: cpuHour,
		memHour: memHour,
	}
}

func (d *DefaultProvider) Name() string {
	return "default"
}

func (d *DefaultProvider) GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error) {
	return &models.CostInfo{
		Provider:        "default",
		Region:          "unknown",
		CPUPerCoreHour:  d.cpuHour,
		MemoryPerGBHour: d.memHour,
		Currency:        "USD",
		LastUpdated:     time.Now(),
	}, nil
}
