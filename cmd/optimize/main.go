package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/opscart/k8s-auto-optimizer/pkg/analytics"
	"github.com/opscart/k8s-auto-optimizer/pkg/cluster"
	"github.com/opscart/k8s-auto-optimizer/pkg/config"
	"github.com/opscart/k8s-auto-optimizer/pkg/datasource"
	"github.com/opscart/k8s-auto-optimizer/pkg/engine"
	"github.com/opscart/k8s-auto-optimizer/pkg/executor"
	"github.com/opscart/k8s-auto-optimizer/pkg/models"
	"github.com/opscart/k8s-auto-optimizer/pkg/pricing"
	"github.com/opscart/k8s-auto-optimizer/pkg/reporter"
	"github.com/opscart/k8s-auto-optimizer/pkg/safety"
	"github.com/opscart/k8s-auto-optimizer/pkg/storage"
	"github.com/opscart/k8s-auto-optimizer/pkg/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	namespace     string
	allNamespaces bool
	clusterID     string
	provider      string
	region        string
	dryRun        bool
	output        string
	metricsListen string
	planLimit     int
	actionID      string
	verbose       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Kubernetes workload auto-optimizer",
		Long:  "Analyzes cluster workloads and executes zero-pod scaling, resource rightsizing, and cost optimization actions with safety gating and automatic rollback.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "Namespace to analyze")
	rootCmd.PersistentFlags().BoolVarP(&allNamespaces, "all-namespaces", "A", false, "Analyze all namespaces")
	rootCmd.PersistentFlags().StringVar(&clusterID, "cluster-id", "default", "Cluster identifier for plans and history")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Cloud provider: azure, aws, gcp, default (empty = auto-detect)")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "Cloud region")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format: text, json, markdown, csv")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze workloads and propose an optimization plan",
		Run:   runAnalyze,
	}

	executeCmd := &cobra.Command{
		Use:   "execute",
		Short: "Analyze workloads and execute the resulting plan",
		Run:   runExecute,
	}
	executeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Simulate execution without mutating the cluster")
	executeCmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address during execution, e.g. :9102")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List stored plans and execution results",
		Run:   runHistory,
	}
	historyCmd.Flags().IntVar(&planLimit, "limit", 10, "Maximum plans to list")

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail for an action",
		Run:   runAudit,
	}
	auditCmd.Flags().StringVar(&actionID, "action", "", "Action ID to audit")

	rootCmd.AddCommand(analyzeCmd, executeCmd, historyCmd, auditCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func targetNamespace() string {
	if namespace == "" && !allNamespaces {
		fmt.Fprintln(os.Stderr, "Error: either --namespace or --all-namespaces must be specified")
		os.Exit(1)
	}
	return namespace // empty means all namespaces
}

// buildEngine wires the full optimizer: cluster access, usage collection,
// pricing, safety, the three executors, and optional persistence.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, storage.Store, *telemetry.Collectors) {
	kube, err := cluster.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to cluster: %v\n", err)
		os.Exit(1)
	}

	pricingProvider, err := pricing.NewProvider(ctx, kube.Clientset(), &pricing.Config{
		Provider:       cfg.Provider,
		Region:         cfg.Region,
		DefaultCPUHour: cfg.DefaultCPUHour,
		DefaultMemHour: cfg.DefaultMemHour,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating pricing provider: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("[INFO] Using %s pricing\n", pricingProvider.Name())

	var usage datasource.UsageSource
	prom, err := datasource.NewPrometheusSource(datasource.Config{
		PrometheusURL: cfg.PrometheusURL,
	})
	if err != nil {
		fmt.Printf("[WARN] Prometheus unavailable, idle detection disabled: %v\n", err)
	} else if !prom.IsAvailable(ctx) {
		fmt.Printf("[WARN] Prometheus at %s not responding, idle detection disabled\n", cfg.PrometheusURL)
	} else {
		usage = prom
	}

	var store storage.Store
	if cfg.StorageEnabled {
		store, err = storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to storage: %v\n", err)
			os.Exit(1)
		}
	}

	collectors := telemetry.New()
	safetyManager := safety.NewManager(kube, cfg.Safety)
	safetyManager.SetFailureHook(func(check string) {
		collectors.SafetyCheckFailed.WithLabelValues(check).Inc()
	})

	eng, err := engine.New(engine.Options{
		Cluster:   kube,
		Collector: analytics.NewCollector(kube, usage),
		Predictor: analytics.NewHeuristicPredictor(),
		Pricing:   pricingProvider,
		Safety:    safetyManager,
		ZeroPod:   executor.NewZeroPodScaler(kube, safetyManager, cfg.Scaling),
		Rightsize: executor.NewRightsizer(kube, safetyManager, cfg.Rightsizing),
		Cost:      executor.NewCostOptimizer(kube, safetyManager, pricingProvider, cfg.Cost),
		Store:     store,
		Telemetry: collectors,
		Config:    cfg,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	return eng, store, collectors
}

func loadConfig() *config.Config {
	cfg := config.NewConfig()
	if provider != "" {
		cfg.Provider = provider
	}
	if region != "" {
		cfg.Region = region
	}
	if verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func runAnalyze(cmd *cobra.Command, args []string) {
	ns := targetNamespace()
	ctx := context.Background()
	cfg := loadConfig()

	eng, store, _ := buildEngine(ctx, cfg)
	if store != nil {
		defer store.Close()
	}

	plan, err := eng.AnalyzeCluster(ctx, clusterID, ns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printPlan(plan)
}

func runExecute(cmd *cobra.Command, args []string) {
	ns := targetNamespace()
	ctx := context.Background()
	cfg := loadConfig()

	eng, store, collectors := buildEngine(ctx, cfg)
	if store != nil {
		defer store.Close()
	}

	if metricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", collectors.Handler())
			if err := http.ListenAndServe(metricsListen, mux); err != nil {
				fmt.Printf("[WARN] metrics endpoint failed: %v\n", err)
			}
		}()
		fmt.Printf("[INFO] Serving metrics on %s/metrics\n", metricsListen)
	}

	plan, err := eng.AnalyzeCluster(ctx, clusterID, ns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(plan.Actions) == 0 {
		fmt.Println("[INFO] No optimization opportunities found")
		return
	}

	printPlan(plan)
	if dryRun {
		fmt.Println("\n[INFO] Dry run: no cluster changes will be made")
	}

	result, err := eng.ExecutePlan(ctx, plan.ID, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printResult(result)
	if result.Status == models.PlanFailed {
		os.Exit(1)
	}
}

func runHistory(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg := loadConfig()
	if !cfg.StorageEnabled {
		fmt.Fprintln(os.Stderr, "Error: history requires STORAGE_ENABLED=true")
		os.Exit(1)
	}

	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	plans, err := store.ListPlans(ctx, clusterID, planLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if output == "json" {
		printJSON(plans)
		return
	}

	if len(plans) == 0 {
		fmt.Println("[INFO] No stored plans")
		return
	}
	for _, plan := range plans {
		fmt.Printf("%s  %s  actions=%d  savings=$%.2f/mo  risk=%s  status=%s\n",
			plan.CreatedAt.Format("2006-01-02 15:04"), plan.ID,
			len(plan.Actions), plan.EstimatedSavings, plan.RiskAssessment, plan.Status)
		results, err := store.ListResults(ctx, plan.ID, 5)
		if err != nil {
			fmt.Printf("  [WARN] could not load results: %v\n", err)
			continue
		}
		for _, r := range results {
			fmt.Printf("  run %s: %d ok, %d failed, %d rolled back, realized $%.2f/mo\n",
				r.ExecutionID, r.SuccessfulActions, r.FailedActions, r.RollbackCount, r.ActualSavings)
		}
	}
}

func runAudit(cmd *cobra.Command, args []string) {
	if actionID == "" {
		fmt.Fprintln(os.Stderr, "Error: --action is required")
		os.Exit(1)
	}
	ctx := context.Background()
	cfg := loadConfig()
	if !cfg.StorageEnabled {
		fmt.Fprintln(os.Stderr, "Error: audit requires STORAGE_ENABLED=true")
		os.Exit(1)
	}

	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	entries, err := store.GetAuditLog(ctx, actionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if output == "json" {
		printJSON(entries)
		return
	}

	if len(entries) == 0 {
		fmt.Printf("[INFO] No audit entries for action %s\n", actionID)
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-11s %s", e.ExecutedAt.Format("2006-01-02 15:04:05"), e.Event, e.Status)
		if e.ErrorMessage != "" {
			line += "  " + e.ErrorMessage
		}
		fmt.Println(line)
	}
}

func printPlan(plan *models.OptimizationPlan) {
	switch output {
	case "json":
		printJSON(plan)
	case "markdown", "csv":
		rep := reporter.New(reporter.ReportFormat(output))
		text, err := rep.RenderPlan(plan)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(text)
	default:
		fmt.Printf("\n=== Optimization Plan %s ===\n", plan.ID)
		fmt.Printf("Cluster: %s  Risk: %s  Estimated savings: $%.2f/month\n\n",
			plan.ClusterID, plan.RiskAssessment, plan.EstimatedSavings)
		for i, a := range plan.Actions {
			fmt.Printf("%d. [%s] %s/%s  savings=$%.2f/mo  risk=%s  confidence=%.2f\n",
				i+1, a.Type, a.Namespace, a.Workload, a.EstimatedSavings, a.Risk, a.Confidence)
		}
	}
}

func printResult(result *models.OptimizationResult) {
	if output == "json" {
		printJSON(result)
		return
	}

	fmt.Printf("\n=== Execution %s ===\n", result.ExecutionID)
	for _, line := range result.ExecutionLog {
		fmt.Println(line)
	}
	fmt.Printf("\nSucceeded: %d  Failed: %d  Rollbacks: %d\n",
		result.SuccessfulActions, result.FailedActions, result.RollbackCount)
	fmt.Printf("Realized savings: $%.2f/month (status: %s)\n", result.ActualSavings, result.Status)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
