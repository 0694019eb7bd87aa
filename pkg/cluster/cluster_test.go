package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	kubefake "k8s.io/client-go/kubernetes/fake"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"
)

func TestPodsForWorkload(t *testing.T) {
	pods := []models.PodInfo{
		{Name: "api-7d9f8b-x2k4", Phase: "Running"},
		{Name: "api-7d9f8b-m1n9", Phase: "Pending"},
		{Name: "apiserver-abc123-p0q1", Phase: "Running"},
		{Name: "worker-0", Phase: "Running"},
	}

	matched := PodsForWorkload(pods, "api")
	if len(matched) != 2 {
		t.Fatalf("expected 2 pods for workload api, got %d", len(matched))
	}
	for _, pod := range matched {
		if pod.Name == "apiserver-abc123-p0q1" {
			t.Error("apiserver pods must not match workload api")
		}
	}

	if got := PodsForWorkload(pods, "worker"); len(got) != 1 {
		t.Errorf("expected 1 pod for workload worker, got %d", len(got))
	}
	if got := PodsForWorkload(pods, "missing"); len(got) != 0 {
		t.Errorf("expected no pods for unknown workload, got %d", len(got))
	}
}

func TestFakeScaleUpdatesState(t *testing.T) {
	fake := NewFake()
	fake.AddWorkload("api", "prod", 3, 500, 512*1024*1024)
	ctx := context.Background()

	if err := fake.ScaleDeployment(ctx, "api", "prod", 0); err != nil {
		t.Fatalf("scale failed: %v", err)
	}

	info, err := fake.GetDeploymentInfo(ctx, "api", "prod")
	if err != nil {
		t.Fatalf("GetDeploymentInfo failed: %v", err)
	}
	if info.Replicas != 0 {
		t.Errorf("replicas = %d after scale to zero", info.Replicas)
	}

	pods, _ := fake.ListPods(ctx, "prod", "")
	if len(PodsForWorkload(pods, "api")) != 0 {
		t.Error("pods must be removed when scaled to zero")
	}
}

func podMetricsFor(name string, cpu, memory string) *metricsv1beta1.PodMetrics {
	return &metricsv1beta1.PodMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "prod"},
		Containers: []metricsv1beta1.ContainerMetrics{
			{
				Name: "app",
				Usage: corev1.ResourceList{
					corev1.ResourceCPU:    resource.MustParse(cpu),
					corev1.ResourceMemory: resource.MustParse(memory),
				},
			},
		},
	}
}

func TestGetPodMetricsPerPodAverage(t *testing.T) {
	// Two replicas each using 100m and 128Mi. Requests and limits are per
	// pod template, so the usage snapshot must be per pod too, not the
	// 200m/256Mi workload aggregate.
	metricsClient := metricsfake.NewSimpleClientset()
	// The generated metrics fake reads resource "pods" (the real
	// metrics.k8s.io resource name), but NewSimpleClientset presets objects
	// under the guessed name "podmetricses", so seed the tracker directly.
	podsGVR := metricsv1beta1.SchemeGroupVersion.WithResource("pods")
	for _, pm := range []*metricsv1beta1.PodMetrics{
		podMetricsFor("api-7d9f8b-x2k4", "100m", "128Mi"),
		podMetricsFor("api-7d9f8b-m1n9", "100m", "128Mi"),
		podMetricsFor("worker-0", "900m", "1Gi"),
	} {
		if err := metricsClient.Tracker().Create(podsGVR, pm, pm.Namespace); err != nil {
			t.Fatalf("seeding pod metrics: %v", err)
		}
	}

	k := &KubeClient{
		clientset:     kubefake.NewSimpleClientset(),
		metricsClient: metricsClient,
		log:           logrus.WithField("component", "cluster"),
	}

	usage, err := k.GetPodMetrics(context.Background(), "api", "prod")
	if err != nil {
		t.Fatalf("GetPodMetrics failed: %v", err)
	}
	if usage.PodCount != 2 {
		t.Errorf("pod count = %d, want 2", usage.PodCount)
	}
	if usage.CPUMillicores != 100 {
		t.Errorf("CPU usage = %dm, want the 100m per-pod average", usage.CPUMillicores)
	}
	if usage.MemoryBytes != 128*1024*1024 {
		t.Errorf("memory usage = %d, want the per-pod 128Mi", usage.MemoryBytes)
	}
}

func TestFakeNotFound(t *testing.T) {
	fake := NewFake()
	_, err := fake.GetDeploymentInfo(context.Background(), "ghost", "prod")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFakeListAllNamespaces(t *testing.T) {
	fake := NewFake()
	fake.AddWorkload("api", "prod", 2, 500, 512*1024*1024)
	fake.AddWorkload("batch", "jobs", 1, 250, 256*1024*1024)

	all, err := fake.ListDeployments(context.Background(), "")
	if err != nil {
		t.Fatalf("ListDeployments failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("empty namespace must list all deployments, got %d", len(all))
	}

	prod, _ := fake.ListDeployments(context.Background(), "prod")
	if len(prod) != 1 || prod[0].Name != "api" {
		t.Errorf("namespace filter broken: %v", prod)
	}
}
