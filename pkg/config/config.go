package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EngineConfig holds the Action Proposal Policy thresholds
type EngineConfig struct {
	IdleThreshold       time.Duration // scale_to_zero: minimum idle duration
	ConfidenceThreshold float64       // scale_to_zero: minimum prediction confidence
	CPUUtilThreshold    float64       // rightsize: propose below this CPU utilization %
	MemoryUtilThreshold float64       // rightsize: propose below this memory utilization %
	PredictionThreshold float64       // cost_optimize: minimum prediction value
}

// ScalingConfig configures the zero-pod scaler
type ScalingConfig struct {
	VerificationDelay time.Duration
	ScalingTimeout    time.Duration
	RollbackTimeout   time.Duration
}

// RightsizingConfig configures the resource rightsizer
type RightsizingConfig struct {
	SafetyMargin          float64 // buffer above observed usage, e.g. 0.20 = 20%
	OptimizationThreshold float64 // only act when new request is this much below current
	MinCPUMillicores      int64
	MinMemoryBytes        int64
	CPULimitMultiplier    float64
	MemoryLimitMultiplier float64
	VerificationDelay     time.Duration
	OptimizationTimeout   time.Duration
}

// CostConfig configures the cost optimizer
type CostConfig struct {
	CostThreshold        float64 // minimum $/month savings to act
	InstanceReduction    float64
	StorageReduction     float64
	NetworkReduction     float64
	AutoscalingReduction float64
	EnableInstance       bool
	EnableStorage        bool
	EnableNetwork        bool
	EnableAutoscaling    bool
	VerificationDelay    time.Duration
	OptimizationTimeout  time.Duration
}

// SafetyConfig configures the safety manager
type SafetyConfig struct {
	RollbackSettleDelay time.Duration
	RollbackTimeout     time.Duration
}

// Config holds application configuration
type Config struct {
	// Prometheus
	PrometheusURL       string
	MetricsLookbackDays int

	// Storage
	StorageEnabled bool
	DatabaseURL    string

	// Pricing
	Provider       string // aws, gcp, azure, default; empty = auto-detect
	Region         string
	DefaultCPUHour float64 // $/core-hour fallback
	DefaultMemHour float64 // $/GB-hour fallback

	Engine      EngineConfig
	Scaling     ScalingConfig
	Rightsizing RightsizingConfig
	Cost        CostConfig
	Safety      SafetyConfig

	Verbose bool
}

// NewConfig creates a new configuration with defaults, overridable from the
// environment
func NewConfig() *Config {
	return &Config{
		PrometheusURL:       getEnv("PROMETHEUS_URL", "http://localhost:9090"),
		MetricsLookbackDays: getEnvInt("METRICS_LOOKBACK_DAYS", 7),
		StorageEnabled:      getEnvBool("STORAGE_ENABLED", false),
		DatabaseURL:         getEnv("DATABASE_URL", "host=localhost port=5432 user=optimizer password=devpassword dbname=optimizer sslmode=disable"),
		Provider:            getEnv("PRICING_PROVIDER", ""),
		Region:              getEnv("PRICING_REGION", ""),
		DefaultCPUHour:      getEnvFloat("DEFAULT_CPU_COST_HOUR", 0.032),
		DefaultMemHour:      getEnvFloat("DEFAULT_MEMORY_COST_HOUR", 0.004),

		Engine: EngineConfig{
			IdleThreshold:       getEnvDuration("IDLE_THRESHOLD", 4*time.Hour),
			ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.8),
			CPUUtilThreshold:    getEnvFloat("CPU_UTIL_THRESHOLD", 30),
			MemoryUtilThreshold: getEnvFloat("MEMORY_UTIL_THRESHOLD", 40),
			PredictionThreshold: getEnvFloat("PREDICTION_THRESHOLD", 0.6),
		},
		Scaling: ScalingConfig{
			VerificationDelay: getEnvDuration("SCALING_VERIFICATION_DELAY", 60*time.Second),
			ScalingTimeout:    getEnvDuration("SCALING_TIMEOUT", 5*time.Minute),
			RollbackTimeout:   getEnvDuration("SCALING_ROLLBACK_TIMEOUT", 5*time.Minute),
		},
		Rightsizing: RightsizingConfig{
			SafetyMargin:          getEnvFloat("RIGHTSIZE_SAFETY_MARGIN", 0.20),
			OptimizationThreshold: getEnvFloat("RIGHTSIZE_THRESHOLD", 0.30),
			MinCPUMillicores:      100,
			MinMemoryBytes:        64 * 1024 * 1024,
			CPULimitMultiplier:    2.0,
			MemoryLimitMultiplier: 1.5,
			VerificationDelay:     getEnvDuration("RIGHTSIZE_VERIFICATION_DELAY", 90*time.Second),
			OptimizationTimeout:   getEnvDuration("RIGHTSIZE_TIMEOUT", 10*time.Minute),
		},
		Cost: CostConfig{
			CostThreshold:        getEnvFloat("COST_THRESHOLD", 100),
			InstanceReduction:    0.20,
			StorageReduction:     0.15,
			NetworkReduction:     0.10,
			AutoscalingReduction: 0.25,
			EnableInstance:       true,
			EnableStorage:        true,
			EnableNetwork:        true,
			EnableAutoscaling:    true,
			VerificationDelay:    getEnvDuration("COST_VERIFICATION_DELAY", 120*time.Second),
			OptimizationTimeout:  getEnvDuration("COST_TIMEOUT", 10*time.Minute),
		},
		Safety: SafetyConfig{
			RollbackSettleDelay: getEnvDuration("ROLLBACK_SETTLE_DELAY", 30*time.Second),
			RollbackTimeout:     getEnvDuration("ROLLBACK_TIMEOUT", 5*time.Minute),
		},

		Verbose: getEnvBool("VERBOSE", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when storage is enabled")
	}
	if c.Engine.ConfidenceThreshold < 0 || c.Engine.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1]")
	}
	if c.Engine.PredictionThreshold < 0 || c.Engine.PredictionThreshold > 1 {
		return fmt.Errorf("prediction threshold must be in [0,1]")
	}
	if c.Rightsizing.SafetyMargin < 0 {
		return fmt.Errorf("rightsizing safety margin must not be negative")
	}
	if c.Rightsizing.OptimizationThreshold <= 0 || c.Rightsizing.OptimizationThreshold >= 1 {
		return fmt.Errorf("rightsizing threshold must be in (0,1)")
	}
	if c.Cost.CostThreshold < 0 {
		return fmt.Errorf("cost threshold must not be negative")
	}
	return nil
}
