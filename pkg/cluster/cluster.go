package cluster

import (
	"context"
	"errors"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

// ErrNotFound is returned when a workload does not exist in the cluster
var ErrNotFound = errors.New("workload not found")

// PodsForWorkload filters a pod listing down to the pods owned by the named
// workload, matching the "workload-<hash>-<hash>" and "workload-<ordinal>"
// naming patterns
func PodsForWorkload(pods []models.PodInfo, workload string) []models.PodInfo {
	var out []models.PodInfo
	for _, pod := range pods {
		if podBelongsToWorkload(pod.Name, workload) {
			out = append(out, pod)
		}
	}
	return out
}

// Interface is the Kubernetes read/write surface the optimization core
// depends on. Every call may fail with a connectivity or not-found error;
// callers must treat any failure as "abort this step".
type Interface interface {
	ListDeployments(ctx context.Context, namespace string) ([]models.DeploymentInfo, error)
	GetDeploymentInfo(ctx context.Context, workload, namespace string) (*models.DeploymentInfo, error)
	ListPods(ctx context.Context, namespace, labelSelector string) ([]models.PodInfo, error)
	ScaleDeployment(ctx context.Context, workload, namespace string, replicas int32) error
	PatchDeploymentResources(ctx context.Context, workload, namespace string, requests, limits models.ResourceSpec) error
	GetClusterMetrics(ctx context.Context) (*models.ClusterMetrics, error)
	GetPodMetrics(ctx context.Context, workload, namespace string) (*models.PodMetrics, error)
}
