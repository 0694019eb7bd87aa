package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Engine.IdleThreshold != 4*time.Hour {
		t.Errorf("idle threshold = %s, want 4h", cfg.Engine.IdleThreshold)
	}
	if cfg.Engine.ConfidenceThreshold != 0.8 {
		t.Errorf("confidence threshold = %.2f, want 0.8", cfg.Engine.ConfidenceThreshold)
	}
	if cfg.Rightsizing.MinCPUMillicores != 100 || cfg.Rightsizing.MinMemoryBytes != 64*1024*1024 {
		t.Errorf("resource floors = %dm/%dB, want 100m/64MiB",
			cfg.Rightsizing.MinCPUMillicores, cfg.Rightsizing.MinMemoryBytes)
	}
	if cfg.Cost.CostThreshold != 100 {
		t.Errorf("cost threshold = %.0f, want 100", cfg.Cost.CostThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration must validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IDLE_THRESHOLD", "2h")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("COST_THRESHOLD", "50")
	t.Setenv("STORAGE_ENABLED", "true")

	cfg := NewConfig()
	if cfg.Engine.IdleThreshold != 2*time.Hour {
		t.Errorf("idle threshold = %s, want 2h", cfg.Engine.IdleThreshold)
	}
	if cfg.Engine.ConfidenceThreshold != 0.9 {
		t.Errorf("confidence threshold = %.2f, want 0.9", cfg.Engine.ConfidenceThreshold)
	}
	if cfg.Cost.CostThreshold != 50 {
		t.Errorf("cost threshold = %.0f, want 50", cfg.Cost.CostThreshold)
	}
	if !cfg.StorageEnabled {
		t.Error("STORAGE_ENABLED=true must enable storage")
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"confidence above 1", func(c *Config) { c.Engine.ConfidenceThreshold = 1.5 }},
		{"prediction below 0", func(c *Config) { c.Engine.PredictionThreshold = -0.1 }},
		{"negative safety margin", func(c *Config) { c.Rightsizing.SafetyMargin = -0.2 }},
		{"rightsize threshold at 1", func(c *Config) { c.Rightsizing.OptimizationThreshold = 1 }},
		{"negative cost threshold", func(c *Config) { c.Cost.CostThreshold = -10 }},
		{"storage without database", func(c *Config) { c.StorageEnabled = true; c.DatabaseURL = "" }},
	}

	for _, tc := range cases {
		cfg := NewConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}
