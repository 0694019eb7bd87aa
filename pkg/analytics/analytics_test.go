package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/opscart/k8s-auto-optimizer/pkg/cluster"
)

func TestHeuristicScoresIdleQuietWorkloadHigh(t *testing.T) {
	p := NewHeuristicPredictor()
	pred, err := p.Predict(context.Background(), WorkloadUsage{
		IdleDuration:             8 * time.Hour,
		CPUUtilizationPercent:    0,
		MemoryUtilizationPercent: 0,
		RequestedCPU:             1000,
		RequestedMemory:          1024,
		UsageCPU:                 0,
		UsageMemory:              0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if pred.Confidence < 0.99 {
		t.Errorf("8h idle with zero utilization must score near 1, got %.2f", pred.Confidence)
	}
	if pred.PredictionValue < 0.99 {
		t.Errorf("fully unused footprint must score near 1, got %.2f", pred.PredictionValue)
	}
}

func TestHeuristicSaturatesAtOne(t *testing.T) {
	p := NewHeuristicPredictor()
	pred, err := p.Predict(context.Background(), WorkloadUsage{
		IdleDuration: 72 * time.Hour,
		RequestedCPU: 1000,
		UsageCPU:     0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if pred.Confidence > 1 || pred.PredictionValue > 1 {
		t.Errorf("scores must saturate at 1, got confidence=%.2f value=%.2f",
			pred.Confidence, pred.PredictionValue)
	}
}

func TestHeuristicScoresBusyWorkloadLow(t *testing.T) {
	p := NewHeuristicPredictor()
	pred, err := p.Predict(context.Background(), WorkloadUsage{
		CPUUtilizationPercent:    90,
		MemoryUtilizationPercent: 85,
		RequestedCPU:             1000,
		RequestedMemory:          1024,
		UsageCPU:                 900,
		UsageMemory:              870,
	})
	if err != nil {
		t.Fatal(err)
	}
	if pred.Confidence > 0.2 {
		t.Errorf("a busy workload must score low confidence, got %.2f", pred.Confidence)
	}
	if pred.PredictionValue > 0.2 {
		t.Errorf("a saturated footprint must score low value, got %.2f", pred.PredictionValue)
	}
}

func TestCollectorBuildsUtilization(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 2, 1000, 1024*1024*1024)
	fake.Workloads["prod/api"].PodUsage.CPUMillicores = 250
	fake.Workloads["prod/api"].PodUsage.MemoryBytes = 512 * 1024 * 1024

	c := NewCollector(fake, nil)
	features, err := c.Collect(context.Background(), "prod")
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != 1 {
		t.Fatalf("expected 1 workload, got %d", len(features))
	}

	usage := features[0]
	if usage.CPUUtilizationPercent != 25 {
		t.Errorf("CPU utilization = %.1f%%, want 25%%", usage.CPUUtilizationPercent)
	}
	if usage.MemoryUtilizationPercent != 50 {
		t.Errorf("memory utilization = %.1f%%, want 50%%", usage.MemoryUtilizationPercent)
	}
	if usage.IdleDuration != 0 {
		t.Errorf("no usage source means no idle signal, got %s", usage.IdleDuration)
	}
}

func TestCollectorSkipsUnreadableMetrics(t *testing.T) {
	fake := cluster.NewFake()
	fake.AddWorkload("api", "prod", 2, 1000, 1024*1024*1024)
	fake.MetricsErr = context.DeadlineExceeded

	c := NewCollector(fake, nil)
	features, err := c.Collect(context.Background(), "prod")
	if err != nil {
		t.Fatalf("unreadable metrics must not fail the collection: %v", err)
	}
	if len(features) != 0 {
		t.Errorf("workloads without metrics must be skipped, got %d", len(features))
	}
}
