// Package telemetry exposes the optimizer's activity as Prometheus metrics
// for external dashboards.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors bundles the optimizer's Prometheus instruments on a private
// registry so embedding processes keep their own default registry clean.
type Collectors struct {
	registry *prometheus.Registry

	ActionsTotal      *prometheus.CounterVec
	RollbacksTotal    prometheus.Counter
	PlansTotal        prometheus.Counter
	ActiveOperations  prometheus.Gauge
	EstimatedSavings  prometheus.Gauge
	RealizedSavings   prometheus.Counter
	SafetyCheckFailed *prometheus.CounterVec
}

func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimizer_actions_total",
			Help: "Optimization actions executed, by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		RollbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimizer_rollbacks_total",
			Help: "Rollbacks attempted after verification failures",
		}),
		PlansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimizer_plans_total",
			Help: "Optimization plans executed",
		}),
		ActiveOperations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "optimizer_active_operations",
			Help: "Actions currently in flight",
		}),
		EstimatedSavings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "optimizer_estimated_savings_monthly_usd",
			Help: "Estimated monthly savings of the most recent plan",
		}),
		RealizedSavings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optimizer_realized_savings_monthly_usd_total",
			Help: "Prorated monthly savings accumulated over executed plans",
		}),
		SafetyCheckFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optimizer_safety_check_failures_total",
			Help: "Safety check failures, by check name",
		}, []string{"check"}),
	}

	c.registry.MustRegister(
		c.ActionsTotal,
		c.RollbacksTotal,
		c.PlansTotal,
		c.ActiveOperations,
		c.EstimatedSavings,
		c.RealizedSavings,
		c.SafetyCheckFailed,
	)
	return c
}

// Handler serves the registry for scraping
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for embedding processes
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}
