package pricing

import (
	"context"
	"fmt"

	"k8s.io/client-go/kubernetes"
)

// NewProvider creates a pricing provider based on cloud detection or config
func NewProvider(ctx context.Context, clientset kubernetes.Interface, config *Config) (Provider, error) {
	var provider string
	var region string

	if config.Provider != "" {
		provider = config.Provider
		region = config.Region
	} else if clientset != nil {
		var err error
		provider, region, err = DetectProvider(ctx, clientset)
		if err != nil {
			provider = "default"
			region = "unknown"
		}
	} else {
		provider = "default"
		region = "unknown"
	}

	switch provider {
	case "azure":
		return NewAzureProvider(region), nil
	case "aws":
		return NewAWSProvider(region), nil
	case "gcp":
		return NewGCPProvider(region), nil
	case "default":
		return NewDefaultProvider(config.DefaultCPUHour, config.DefaultMemHour), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
