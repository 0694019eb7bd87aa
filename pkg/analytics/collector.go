package analytics

import (
	"context"
	"fmt"

	"github.com/opscart/k8s-auto-optimizer/pkg/cluster"
	"github.com/opscart/k8s-auto-optimizer/pkg/datasource"
	"github.com/sirupsen/logrus"
)

// Collector builds WorkloadUsage features from live cluster state, enriched
// with idle durations from a historical usage source when one is available.
type Collector struct {
	cluster cluster.Interface
	usage   datasource.UsageSource // optional
	log     *logrus.Entry
}

func NewCollector(c cluster.Interface, usage datasource.UsageSource) *Collector {
	return &Collector{
		cluster: c,
		usage:   usage,
		log:     logrus.WithField("component", "collector"),
	}
}

// Collect gathers usage features for every deployment in the namespace.
// Workloads whose metrics cannot be read are skipped with a warning rather
// than failing the whole collection.
func (c *Collector) Collect(ctx context.Context, namespace string) ([]WorkloadUsage, error) {
	deployments, err := c.cluster.ListDeployments(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}

	var features []WorkloadUsage
	for _, deploy := range deployments {
		usage := WorkloadUsage{
			Workload:        deploy.Name,
			Namespace:       deploy.Namespace,
			Replicas:        deploy.Replicas,
			RequestedCPU:    deploy.RequestedCPU,
			RequestedMemory: deploy.RequestedMemory,
			LimitCPU:        deploy.LimitCPU,
			LimitMemory:     deploy.LimitMemory,
		}

		podMetrics, err := c.cluster.GetPodMetrics(ctx, deploy.Name, deploy.Namespace)
		if err != nil {
			c.log.WithError(err).WithField("workload", deploy.Name).Warn("skipping workload, metrics unreadable")
			continue
		}
		usage.UsageCPU = podMetrics.CPUMillicores
		usage.UsageMemory = podMetrics.MemoryBytes

		if deploy.RequestedCPU > 0 {
			usage.CPUUtilizationPercent = float64(podMetrics.CPUMillicores) / float64(deploy.RequestedCPU) * 100
		}
		if deploy.RequestedMemory > 0 {
			usage.MemoryUtilizationPercent = float64(podMetrics.MemoryBytes) / float64(deploy.RequestedMemory) * 100
		}

		if c.usage != nil {
			idle, err := c.usage.IdleDuration(ctx, deploy.Name, deploy.Namespace)
			if err != nil {
				c.log.WithError(err).WithField("workload", deploy.Name).Debug("no idle history")
			} else {
				usage.IdleDuration = idle
			}
		}

		features = append(features, usage)
	}

	return features, nil
}
