package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRegisterAndCount(t *testing.T) {
	c := New()

	c.ActionsTotal.WithLabelValues("zero_pod_scaling", "success").Inc()
	c.ActionsTotal.WithLabelValues("zero_pod_scaling", "success").Inc()
	c.RollbacksTotal.Inc()

	if got := testutil.ToFloat64(c.ActionsTotal.WithLabelValues("zero_pod_scaling", "success")); got != 2 {
		t.Errorf("actions counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.RollbacksTotal); got != 1 {
		t.Errorf("rollbacks counter = %v, want 1", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	c := New()
	c.PlansTotal.Inc()
	c.EstimatedSavings.Set(123.45)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if rec.Code != 200 {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	if !strings.Contains(body, "optimizer_plans_total 1") {
		t.Errorf("exposition missing plans counter:\n%s", body)
	}
	if !strings.Contains(body, "optimizer_estimated_savings_monthly_usd 123.45") {
		t.Errorf("exposition missing savings gauge:\n%s", body)
	}
}
