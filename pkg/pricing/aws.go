package pricing

import (
	"context"
	"time"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

// AWSProvider implements AWS EKS pricing
type AWSProvider struct {
	region string
	cache  *PriceCache
}

func NewAWSProvider(region string) *AWSProvider {
	return &AWSProvider{
		region: region,
		cache:  NewPriceCache(24 * time.Hour),
	}
}

func (a *AWSProvider) Name() string {
	return "aws"
}

func (a *AWSProvider) GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error) {
	// Typical AWS on-demand pricing derived from the t3/m5 families.
	// TODO: query the AWS Pricing API once credentials plumbing lands.
	return &models.CostInfo{
		Provider:        "aws",
		Region:          region,
		CPUPerCoreHour:  0.045, // ~$33/core/month
		MemoryPerGBHour: 0.0062,
		Currency:        "USD",
		LastUpdated:     time.Now(),
	}, nil
}
