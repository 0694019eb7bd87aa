package models

import "time"

// CostInfo represents provider pricing information
type CostInfo struct {
	Provider          string
	Region            string
	CPUPerCoreHour    float64 // USD per core-hour
	MemoryPerGBHour   float64 // USD per GB-hour
	StoragePerGBMonth float64
	Currency          string
	LastUpdated       time.Time
}

// HoursPerMonth is the conventional 730h month used for monthly projections
const HoursPerMonth = 730.0

// MonthlyCost projects a resource footprint to a monthly figure
func (c *CostInfo) MonthlyCost(cpuMillicores, memoryBytes int64) float64 {
	cores := float64(cpuMillicores) / 1000.0
	gb := float64(memoryBytes) / (1024.0 * 1024.0 * 1024.0)
	return (cores*c.CPUPerCoreHour + gb*c.MemoryPerGBHour) * HoursPerMonth
}

// CostBreakdown is a workload's monthly cost split by category, consumed by
// the cost optimization strategy
type CostBreakdown struct {
	InstanceMonthly    float64
	StorageMonthly     float64
	NetworkMonthly     float64
	AutoscalingMonthly float64
}

// Total returns the summed monthly cost
func (b CostBreakdown) Total() float64 {
	return b.InstanceMonthly + b.StorageMonthly + b.NetworkMonthly + b.AutoscalingMonthly
}
