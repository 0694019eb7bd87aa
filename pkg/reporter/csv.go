package reporter

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

// renderCSV produces one row per action plus summary rows
func renderCSV(plan *models.OptimizationPlan) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)

	header := []string{
		"Namespace",
		"Workload",
		"Action",
		"Risk",
		"Confidence",
		"Monthly Savings ($)",
		"Status",
	}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, a := range plan.Actions {
		row := []string{
			a.Namespace,
			a.Workload,
			string(a.Type),
			string(a.Risk),
			fmt.Sprintf("%.2f", a.Confidence),
			fmt.Sprintf("%.2f", a.EstimatedSavings),
			string(a.Status),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	// Summary rows
	w.Write([]string{})
	w.Write([]string{"SUMMARY"})
	w.Write([]string{"Plan", plan.ID})
	w.Write([]string{"Cluster", plan.ClusterID})
	w.Write([]string{"Actions", fmt.Sprintf("%d", len(plan.Actions))})
	w.Write([]string{"Overall Risk", string(plan.RiskAssessment)})
	w.Write([]string{"Total Monthly Savings", fmt.Sprintf("$%.2f", plan.EstimatedSavings)})

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return b.String(), nil
}
