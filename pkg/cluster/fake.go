package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

// FakeWorkload is the mutable state backing one workload in a Fake cluster
type FakeWorkload struct {
	Info     models.DeploymentInfo
	Pods     []models.PodInfo
	PodUsage models.PodMetrics
}

// Fake is an in-memory Interface implementation for tests. Mutations update
// its state the way a healthy cluster would; hooks allow tests to inject
// failures or interfere after a mutation.
type Fake struct {
	mu        sync.Mutex
	Workloads map[string]*FakeWorkload // keyed namespace/name
	Cluster   models.ClusterMetrics

	ScaleCalls int
	PatchCalls int

	// FailScale / FailPatch make the next mutation call return an error
	FailScale bool
	FailPatch bool
	// MetricsErr makes metrics reads fail
	MetricsErr error
	// AfterScale runs under the lock after a successful scale, simulating an
	// external controller interfering with the workload
	AfterScale func(w *FakeWorkload)
	// AfterPatch runs under the lock after a successful resource patch
	AfterPatch func(w *FakeWorkload)
}

// NewFake returns an empty fake cluster with healthy cluster metrics
func NewFake() *Fake {
	return &Fake{
		Workloads: make(map[string]*FakeWorkload),
		Cluster: models.ClusterMetrics{
			CPUUsagePercent:    40,
			MemoryUsagePercent: 50,
			NodeCount:          3,
			FreeCPUMillicores:  4000,
			FreeMemoryBytes:    8 * 1024 * 1024 * 1024,
		},
	}
}

// AddWorkload registers a workload with the given replicas and requests,
// generating Running pods to match
func (f *Fake) AddWorkload(name, namespace string, replicas int32, cpuMillicores, memoryBytes int64) *FakeWorkload {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &FakeWorkload{
		Info: models.DeploymentInfo{
			Name:              name,
			Namespace:         namespace,
			Replicas:          replicas,
			AvailableReplicas: replicas,
			ReadyReplicas:     replicas,
			RequestedCPU:      cpuMillicores,
			RequestedMemory:   memoryBytes,
			LimitCPU:          cpuMillicores * 2,
			LimitMemory:       memoryBytes * 2,
		},
	}
	for i := int32(0); i < replicas; i++ {
		w.Pods = append(w.Pods, models.PodInfo{
			Name:  fmt.Sprintf("%s-%d", name, i),
			Phase: "Running",
		})
	}
	w.PodUsage = models.PodMetrics{
		CPUMillicores: cpuMillicores / 2,
		MemoryBytes:   memoryBytes / 2,
		PodCount:      int(replicas),
	}
	f.Workloads[namespace+"/"+name] = w
	return w
}

func (f *Fake) get(workload, namespace string) (*FakeWorkload, error) {
	w, ok := f.Workloads[namespace+"/"+workload]
	if !ok {
		return nil, fmt.Errorf("deployment %s/%s: %w", namespace, workload, ErrNotFound)
	}
	return w, nil
}

func (f *Fake) ListDeployments(ctx context.Context, namespace string) ([]models.DeploymentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var infos []models.DeploymentInfo
	for _, w := range f.Workloads {
		if namespace == "" || w.Info.Namespace == namespace {
			infos = append(infos, w.Info)
		}
	}
	return infos, nil
}

func (f *Fake) GetDeploymentInfo(ctx context.Context, workload, namespace string) (*models.DeploymentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, err := f.get(workload, namespace)
	if err != nil {
		return nil, err
	}
	info := w.Info
	return &info, nil
}

func (f *Fake) ListPods(ctx context.Context, namespace, labelSelector string) ([]models.PodInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pods []models.PodInfo
	for _, w := range f.Workloads {
		if namespace == "" || w.Info.Namespace == namespace {
			pods = append(pods, w.Pods...)
		}
	}
	return pods, nil
}

func (f *Fake) ScaleDeployment(ctx context.Context, workload, namespace string, replicas int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ScaleCalls++
	if f.FailScale {
		return fmt.Errorf("scale %s/%s: connection refused", namespace, workload)
	}

	w, err := f.get(workload, namespace)
	if err != nil {
		return err
	}

	w.Info.Replicas = replicas
	w.Info.AvailableReplicas = replicas
	w.Info.ReadyReplicas = replicas
	w.Pods = w.Pods[:0]
	for i := int32(0); i < replicas; i++ {
		w.Pods = append(w.Pods, models.PodInfo{
			Name:  fmt.Sprintf("%s-%d", workload, i),
			Phase: "Running",
		})
	}

	if f.AfterScale != nil {
		f.AfterScale(w)
	}
	return nil
}

func (f *Fake) PatchDeploymentResources(ctx context.Context, workload, namespace string, requests, limits models.ResourceSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.PatchCalls++
	if f.FailPatch {
		return fmt.Errorf("patch %s/%s: connection refused", namespace, workload)
	}

	w, err := f.get(workload, namespace)
	if err != nil {
		return err
	}

	w.Info.RequestedCPU = requests.CPUMillicores
	w.Info.RequestedMemory = requests.MemoryBytes
	w.Info.LimitCPU = limits.CPUMillicores
	w.Info.LimitMemory = limits.MemoryBytes

	if f.AfterPatch != nil {
		f.AfterPatch(w)
	}
	return nil
}

func (f *Fake) GetClusterMetrics(ctx context.Context) (*models.ClusterMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.MetricsErr != nil {
		return nil, f.MetricsErr
	}
	m := f.Cluster
	return &m, nil
}

func (f *Fake) GetPodMetrics(ctx context.Context, workload, namespace string) (*models.PodMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.MetricsErr != nil {
		return nil, f.MetricsErr
	}
	w, err := f.get(workload, namespace)
	if err != nil {
		return nil, err
	}
	usage := w.PodUsage
	return &usage, nil
}
