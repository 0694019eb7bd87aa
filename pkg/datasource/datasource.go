package datasource

import (
	"context"
	"time"
)

// UsageSource provides historical usage signals for idle-workload detection.
// Implementations must answer from recorded history, never from a single
// instant sample.
type UsageSource interface {
	// IdleDuration reports how long the workload's CPU usage has stayed
	// below the idle threshold, counting back from now
	IdleDuration(ctx context.Context, workload, namespace string) (time.Duration, error)
	// AvgCPUMillicores reports average CPU usage over the lookback window
	AvgCPUMillicores(ctx context.Context, workload, namespace string, lookback time.Duration) (int64, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}

type Config struct {
	PrometheusURL    string
	Lookback         time.Duration
	IdleCPUThreshold float64 // cores; usage below this counts as idle
	Step             time.Duration
}
