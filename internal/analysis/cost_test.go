package analysis

import (
	"math"
	"testing"
)

func TestAnalyzeCostsBreakdown(t *testing.T) {
	usage := ResourceUsage{CPUCores: 4, CPUUtilization: 0.75, MemoryGB: 8, MemoryUtilization: 0.8, StorageGB: 20, NetworkGB: 1}
	rates := DefaultCostRates()
	report, err := AnalyzeCosts(30, usage, rates, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantCPU := 4 * rates.CPUPerCoreHour * 0.5
	if math.Abs(report.Breakdown["cpu"]-wantCPU) > 1e-9 {
		t.Fatalf("expected cpu cost %v got %v", wantCPU, report.Breakdown["cpu"])
	}
	sum := 0.0
	for _, c := range report.Breakdown {
		sum += c
	}
	if math.Abs(report.TotalCost-sum) > 1e-9 {
		t.Fatalf("total %v does not match breakdown sum %v", report.TotalCost, sum)
	}
}

func TestAnalyzeCostsEfficiencyBonus(t *testing.T) {
	usage := ResourceUsage{CPUCores: 2, CPUUtilization: 0.75, MemoryGB: 4, MemoryUtilization: 0.8}
	report, err := AnalyzeCosts(10, usage, DefaultCostRates(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.EfficiencyScore != 100 {
		t.Fatalf("expected clamped score 100 got %v", report.EfficiencyScore)
	}
	if len(report.Recommendations) != 0 {
		t.Fatalf("unexpected recommendations %v", report.Recommendations)
	}
}

func TestAnalyzeCostsPenalties(t *testing.T) {
	usage := ResourceUsage{CPUCores: 8, CPUUtilization: 0.1, MemoryGB: 32, MemoryUtilization: 0.2}
	report, err := AnalyzeCosts(90, usage, DefaultCostRates(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.EfficiencyScore != 60 {
		t.Fatalf("expected score 60 got %v", report.EfficiencyScore)
	}
	if len(report.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations got %d", len(report.Recommendations))
	}
}

func TestAnalyzeCostsZeroMinutesFails(t *testing.T) {
	if _, err := AnalyzeCosts(0, ResourceUsage{}, DefaultCostRates(), nil); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData got %v", err)
	}
}
