package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"
)

// PrometheusSource implements UsageSource backed by a Prometheus server
// scraping cAdvisor metrics.
type PrometheusSource struct {
	client           v1.API
	url              string
	lookback         time.Duration
	idleCPUThreshold float64
	step             time.Duration
	log              *logrus.Entry
}

func NewPrometheusSource(cfg Config) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{
		Address: cfg.PrometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	lookback := cfg.Lookback
	if lookback == 0 {
		lookback = 24 * time.Hour
	}
	step := cfg.Step
	if step == 0 {
		step = 5 * time.Minute
	}
	threshold := cfg.IdleCPUThreshold
	if threshold == 0 {
		threshold = 0.005 // 5 millicores
	}

	return &PrometheusSource{
		client:           v1.NewAPI(client),
		url:              cfg.PrometheusURL,
		lookback:         lookback,
		idleCPUThreshold: threshold,
		step:             step,
		log:              logrus.WithField("component", "datasource"),
	}, nil
}

// IdleDuration walks the workload's CPU rate series backwards from now and
// reports how long the most recent run of below-threshold samples lasts.
func (p *PrometheusSource) IdleDuration(ctx context.Context, workload, namespace string) (time.Duration, error) {
	query := fmt.Sprintf(
		`sum(rate(container_cpu_usage_seconds_total{namespace=%q,pod=~%q}[5m]))`,
		namespace, workload+"-.*",
	)

	samples, err := p.queryRange(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return 0, fmt.Errorf("no usage history for %s/%s", namespace, workload)
	}

	var idle time.Duration
	for i := len(samples) - 1; i >= 0; i-- {
		if float64(samples[i].Value) >= p.idleCPUThreshold {
			break
		}
		idle += p.step
	}
	return idle, nil
}

func (p *PrometheusSource) AvgCPUMillicores(ctx context.Context, workload, namespace string, lookback time.Duration) (int64, error) {
	query := fmt.Sprintf(
		`sum(avg_over_time(rate(container_cpu_usage_seconds_total{namespace=%q,pod=~%q}[5m])[%s:5m]))`,
		namespace, workload+"-.*", model.Duration(lookback).String(),
	)

	result, warnings, err := p.client.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}
	if len(warnings) > 0 {
		p.log.WithField("warnings", warnings).Warn("prometheus query warnings")
	}

	vector, ok := result.(model.Vector)
	if !ok || len(vector) == 0 {
		return 0, fmt.Errorf("no data for query: %s", query)
	}

	sum := 0.0
	for _, sample := range vector {
		sum += float64(sample.Value)
	}
	return int64(sum * 1000), nil
}

func (p *PrometheusSource) queryRange(ctx context.Context, query string) ([]model.SamplePair, error) {
	now := time.Now()
	result, warnings, err := p.client.QueryRange(ctx, query, v1.Range{
		Start: now.Add(-p.lookback),
		End:   now,
		Step:  p.step,
	})
	if err != nil {
		return nil, fmt.Errorf("range query failed: %w", err)
	}
	if len(warnings) > 0 {
		p.log.WithField("warnings", warnings).Warn("prometheus query warnings")
	}

	matrix, ok := result.(model.Matrix)
	if !ok || len(matrix) == 0 {
		return nil, nil
	}
	return matrix[0].Values, nil
}

func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", time.Now())
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "prometheus"
}
