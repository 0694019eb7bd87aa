package models

import "time"

// DeploymentInfo is a read snapshot of a deployment-like workload
type DeploymentInfo struct {
	Name              string
	Namespace         string
	Replicas          int32
	AvailableReplicas int32
	ReadyReplicas     int32

	// Summed across containers. CPU in millicores, memory in bytes.
	RequestedCPU    int64
	RequestedMemory int64
	LimitCPU        int64
	LimitMemory     int64
}

// PodInfo is the minimal pod view the safety checks need
type PodInfo struct {
	Name  string
	Phase string // Running, Pending, Succeeded, Failed, Unknown
}

// ClusterMetrics is a cluster-wide utilization snapshot
type ClusterMetrics struct {
	CPUUsagePercent    float64
	MemoryUsagePercent float64
	NodeCount          int

	// Cluster-wide headroom, used by the resource availability check
	FreeCPUMillicores int64
	FreeMemoryBytes   int64
}

// PodMetrics holds per-pod average usage across a workload's pods, on the
// same scale as the pod template's requests and limits
type PodMetrics struct {
	CPUMillicores int64
	MemoryBytes   int64
	PodCount      int
	CollectedAt   time.Time
}

// ResourceSpec holds a request/limit pair for one dimension
type ResourceSpec struct {
	CPUMillicores int64
	MemoryBytes   int64
}
