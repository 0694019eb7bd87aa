package cluster

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
	"github.com/sirupsen/logrus"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"
)

// KubeClient implements Interface against a live cluster using client-go
// and the metrics API.
type KubeClient struct {
	clientset     kubernetes.Interface
	metricsClient metricsv.Interface
	log           *logrus.Entry
}

// New builds a KubeClient from the local kubeconfig, falling back to
// in-cluster configuration when no kubeconfig is available.
func New() (*KubeClient, error) {
	var kubeconfig string
	if home := homedir.HomeDir(); home != "" {
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		config, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	metricsClient, err := metricsv.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}

	return NewWithClients(clientset, metricsClient), nil
}

// NewWithClients wires pre-built clientsets, used by tests and callers that
// manage their own configuration
func NewWithClients(clientset kubernetes.Interface, metricsClient metricsv.Interface) *KubeClient {
	return &KubeClient{
		clientset:     clientset,
		metricsClient: metricsClient,
		log:           logrus.WithField("component", "cluster"),
	}
}

// Clientset exposes the underlying clientset for provider detection
func (k *KubeClient) Clientset() kubernetes.Interface {
	return k.clientset
}

func (k *KubeClient) ListDeployments(ctx context.Context, namespace string) ([]models.DeploymentInfo, error) {
	list, err := k.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments in %s: %w", namespace, err)
	}

	infos := make([]models.DeploymentInfo, 0, len(list.Items))
	for i := range list.Items {
		infos = append(infos, deploymentInfo(&list.Items[i]))
	}
	return infos, nil
}

func (k *KubeClient) GetDeploymentInfo(ctx context.Context, workload, namespace string) (*models.DeploymentInfo, error) {
	deploy, err := k.clientset.AppsV1().Deployments(namespace).Get(ctx, workload, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("deployment %s/%s: %w", namespace, workload, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get deployment %s/%s: %w", namespace, workload, err)
	}

	info := deploymentInfo(deploy)
	return &info, nil
}

func (k *KubeClient) ListPods(ctx context.Context, namespace, labelSelector string) ([]models.PodInfo, error) {
	list, err := k.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}

	pods := make([]models.PodInfo, 0, len(list.Items))
	for _, pod := range list.Items {
		pods = append(pods, models.PodInfo{
			Name:  pod.Name,
			Phase: string(pod.Status.Phase),
		})
	}
	return pods, nil
}

func (k *KubeClient) ScaleDeployment(ctx context.Context, workload, namespace string, replicas int32) error {
	scale, err := k.clientset.AppsV1().Deployments(namespace).GetScale(ctx, workload, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("deployment %s/%s: %w", namespace, workload, ErrNotFound)
		}
		return fmt.Errorf("failed to read scale for %s/%s: %w", namespace, workload, err)
	}

	scale.Spec.Replicas = replicas
	if _, err := k.clientset.AppsV1().Deployments(namespace).UpdateScale(ctx, workload, scale, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to scale %s/%s to %d: %w", namespace, workload, replicas, err)
	}

	k.log.WithFields(logrus.Fields{
		"workload":  workload,
		"namespace": namespace,
		"replicas":  replicas,
	}).Info("scaled deployment")
	return nil
}

func (k *KubeClient) PatchDeploymentResources(ctx context.Context, workload, namespace string, requests, limits models.ResourceSpec) error {
	deploy, err := k.clientset.AppsV1().Deployments(namespace).Get(ctx, workload, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("deployment %s/%s: %w", namespace, workload, ErrNotFound)
		}
		return fmt.Errorf("failed to get deployment %s/%s: %w", namespace, workload, err)
	}
	if len(deploy.Spec.Template.Spec.Containers) == 0 {
		return fmt.Errorf("deployment %s/%s has no containers", namespace, workload)
	}

	// Resources are applied to the primary (first) container; sidecars keep
	// their own requests.
	container := &deploy.Spec.Template.Spec.Containers[0]
	container.Resources.Requests = corev1.ResourceList{
		corev1.ResourceCPU:    *resource.NewMilliQuantity(requests.CPUMillicores, resource.DecimalSI),
		corev1.ResourceMemory: *resource.NewQuantity(requests.MemoryBytes, resource.BinarySI),
	}
	container.Resources.Limits = corev1.ResourceList{
		corev1.ResourceCPU:    *resource.NewMilliQuantity(limits.CPUMillicores, resource.DecimalSI),
		corev1.ResourceMemory: *resource.NewQuantity(limits.MemoryBytes, resource.BinarySI),
	}

	if _, err := k.clientset.AppsV1().Deployments(namespace).Update(ctx, deploy, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to patch resources for %s/%s: %w", namespace, workload, err)
	}

	k.log.WithFields(logrus.Fields{
		"workload":    workload,
		"namespace":   namespace,
		"request_cpu": requests.CPUMillicores,
		"request_mem": requests.MemoryBytes,
	}).Info("patched deployment resources")
	return nil
}

func (k *KubeClient) GetClusterMetrics(ctx context.Context) (*models.ClusterMetrics, error) {
	nodes, err := k.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	var allocatableCPU, allocatableMem int64
	for _, node := range nodes.Items {
		allocatableCPU += node.Status.Allocatable.Cpu().MilliValue()
		allocatableMem += node.Status.Allocatable.Memory().Value()
	}

	nodeMetrics, err := k.metricsClient.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get node metrics: %w", err)
	}

	var usedCPU, usedMem int64
	for _, nm := range nodeMetrics.Items {
		usedCPU += nm.Usage.Cpu().MilliValue()
		usedMem += nm.Usage.Memory().Value()
	}

	metrics := &models.ClusterMetrics{
		NodeCount:         len(nodes.Items),
		FreeCPUMillicores: allocatableCPU - usedCPU,
		FreeMemoryBytes:   allocatableMem - usedMem,
	}
	if allocatableCPU > 0 {
		metrics.CPUUsagePercent = float64(usedCPU) / float64(allocatableCPU) * 100
	}
	if allocatableMem > 0 {
		metrics.MemoryUsagePercent = float64(usedMem) / float64(allocatableMem) * 100
	}
	return metrics, nil
}

// GetPodMetrics reports per-pod average usage for the workload. Requests
// and limits are per pod template, so usage must be on the same scale or
// multi-replica workloads would look N times busier than they are.
func (k *KubeClient) GetPodMetrics(ctx context.Context, workload, namespace string) (*models.PodMetrics, error) {
	podMetrics, err := k.metricsClient.MetricsV1beta1().PodMetricses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get pod metrics in %s: %w", namespace, err)
	}

	avg := &models.PodMetrics{CollectedAt: time.Now()}
	for _, pm := range podMetrics.Items {
		if !podBelongsToWorkload(pm.Name, workload) {
			continue
		}
		for _, container := range pm.Containers {
			avg.CPUMillicores += container.Usage.Cpu().MilliValue()
			avg.MemoryBytes += container.Usage.Memory().Value()
		}
		avg.PodCount++
	}

	if avg.PodCount == 0 {
		return nil, fmt.Errorf("no pod metrics for %s/%s: %w", namespace, workload, ErrNotFound)
	}
	avg.CPUMillicores /= int64(avg.PodCount)
	avg.MemoryBytes /= int64(avg.PodCount)
	return avg, nil
}

// podBelongsToWorkload matches pod names of the form
// "workload-<replicaset hash>-<pod hash>" or "workload-<ordinal>"
func podBelongsToWorkload(podName, workload string) bool {
	return podName == workload || strings.HasPrefix(podName, workload+"-")
}

func deploymentInfo(deploy *appsv1.Deployment) models.DeploymentInfo {
	info := models.DeploymentInfo{
		Name:              deploy.Name,
		Namespace:         deploy.Namespace,
		AvailableReplicas: deploy.Status.AvailableReplicas,
		ReadyReplicas:     deploy.Status.ReadyReplicas,
	}
	if deploy.Spec.Replicas != nil {
		info.Replicas = *deploy.Spec.Replicas
	}

	for _, container := range deploy.Spec.Template.Spec.Containers {
		if cpu, ok := container.Resources.Requests[corev1.ResourceCPU]; ok {
			info.RequestedCPU += cpu.MilliValue()
		}
		if mem, ok := container.Resources.Requests[corev1.ResourceMemory]; ok {
			info.RequestedMemory += mem.Value()
		}
		if cpu, ok := container.Resources.Limits[corev1.ResourceCPU]; ok {
			info.LimitCPU += cpu.MilliValue()
		}
		if mem, ok := container.Resources.Limits[corev1.ResourceMemory]; ok {
			info.LimitMemory += mem.Value()
		}
	}
	return info
}
