// Package reporter renders optimization plans for humans and spreadsheets.
package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatMarkdown ReportFormat = "markdown"
	FormatCSV      ReportFormat = "csv"
)

// Reporter renders optimization plans
type Reporter struct {
	format ReportFormat
}

// New creates a new reporter
func New(format ReportFormat) *Reporter {
	return &Reporter{
		format: format,
	}
}

// RenderPlan renders the plan in the reporter's format
func (r *Reporter) RenderPlan(plan *models.OptimizationPlan) (string, error) {
	switch r.format {
	case FormatMarkdown:
		return renderMarkdown(plan), nil
	case FormatCSV:
		return renderCSV(plan)
	default:
		return "", fmt.Errorf("unsupported report format: %s", r.format)
	}
}

func renderMarkdown(plan *models.OptimizationPlan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Optimization Plan %s\n\n", plan.ID)
	fmt.Fprintf(&b, "- Cluster: %s\n", plan.ClusterID)
	fmt.Fprintf(&b, "- Created: %s\n", plan.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Risk: %s\n", plan.RiskAssessment)
	fmt.Fprintf(&b, "- Estimated savings: $%.2f/month\n", plan.EstimatedSavings)
	fmt.Fprintf(&b, "- Safety checks: %s\n\n", strings.Join(plan.SafetyChecks, ", "))

	if len(plan.Actions) == 0 {
		b.WriteString("No optimization opportunities found.\n")
		return b.String()
	}

	b.WriteString("| # | Action | Workload | Namespace | Savings ($/mo) | Risk | Confidence |\n")
	b.WriteString("|---|--------|----------|-----------|----------------|------|------------|\n")
	for i, a := range plan.Actions {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %.2f | %s | %.2f |\n",
			i+1, a.Type, a.Workload, a.Namespace, a.EstimatedSavings, a.Risk, a.Confidence)
	}

	bySavings := savingsByType(plan)
	b.WriteString("\n## Savings by strategy\n\n")
	for _, t := range []models.ActionType{models.ActionScaleToZero, models.ActionRightsize, models.ActionCostOptimize} {
		if s, ok := bySavings[t]; ok {
			fmt.Fprintf(&b, "- %s: $%.2f/month\n", t, s)
		}
	}

	return b.String()
}

func savingsByType(plan *models.OptimizationPlan) map[models.ActionType]float64 {
	out := make(map[models.ActionType]float64)
	for _, a := range plan.Actions {
		out[a.Type] += a.EstimatedSavings
	}
	return out
}
