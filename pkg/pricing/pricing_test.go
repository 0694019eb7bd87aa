package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/opscart/k8s-auto-optimizer/pkg/models"
)

func TestDefaultProviderRates(t *testing.T) {
	p := NewDefaultProvider(0.05, 0.006)
	info, err := p.GetCostInfo(context.Background(), "us-east-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if info.CPUPerCoreHour != 0.05 || info.MemoryPerGBHour != 0.006 {
		t.Errorf("configured rates not returned: cpu=%.3f mem=%.3f",
			info.CPUPerCoreHour, info.MemoryPerGBHour)
	}
	if p.Name() != "default" {
		t.Errorf("provider name = %q, want default", p.Name())
	}
}

func TestDefaultProviderFallbackRates(t *testing.T) {
	p := NewDefaultProvider(0, 0)
	info, err := p.GetCostInfo(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if info.CPUPerCoreHour != 0.032 || info.MemoryPerGBHour != 0.004 {
		t.Errorf("zero rates must fall back to defaults: cpu=%.3f mem=%.3f",
			info.CPUPerCoreHour, info.MemoryPerGBHour)
	}
}

func TestPriceCacheHitAndExpiry(t *testing.T) {
	cache := NewPriceCache(50 * time.Millisecond)
	info := &models.CostInfo{Provider: "aws", CPUPerCoreHour: 0.04}

	if cache.Get("aws/us-east-1") != nil {
		t.Error("empty cache must miss")
	}

	cache.Set("aws/us-east-1", info)
	got := cache.Get("aws/us-east-1")
	if got == nil || got.CPUPerCoreHour != 0.04 {
		t.Errorf("cache hit returned %+v", got)
	}

	time.Sleep(60 * time.Millisecond)
	if cache.Get("aws/us-east-1") != nil {
		t.Error("expired entry must miss")
	}
}
