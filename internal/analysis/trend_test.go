package analysis

import (
	"math"
	"testing"
	"time"
)

func TestAnalyzeTrendPerfectLine(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]DataPoint, 6)
	for i := range points {
		x := float64(i)
		points[i] = DataPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: 2*x + 5}
	}
	report, err := AnalyzeTrend(points, DefaultTrendOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(report.Slope-2) > 1e-6 {
		t.Fatalf("expected slope 2 got %v", report.Slope)
	}
	if math.Abs(report.Correlation-1) > 1e-6 {
		t.Fatalf("expected correlation 1 got %v", report.Correlation)
	}
	if math.Abs(report.RSquared-1) > 1e-6 {
		t.Fatalf("expected r2 1 got %v", report.RSquared)
	}
	if report.Direction != TrendIncreasing {
		t.Fatalf("expected increasing got %s", report.Direction)
	}
	lastValue := points[len(points)-1].Value
	want24h := lastValue + 2*24
	if math.Abs(report.Forecasts.Next24H-want24h) > 1e-6 {
		t.Fatalf("expected 24h forecast %v got %v", want24h, report.Forecasts.Next24H)
	}
}

func TestAnalyzeTrendStable(t *testing.T) {
	start := time.Now()
	points := make([]DataPoint, 10)
	for i := range points {
		points[i] = DataPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: 100}
	}
	report, err := AnalyzeTrend(points, DefaultTrendOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Direction != TrendStable {
		t.Fatalf("expected stable got %s", report.Direction)
	}
}

func TestAnalyzeTrendVolatile(t *testing.T) {
	// the +5/-5 pattern is orthogonal to x: slope is exactly zero while the
	// residual noise keeps stderr positive
	start := time.Now()
	offsets := []float64{-5, 5, 5, -5, -5, 5, 5, -5}
	points := make([]DataPoint, len(offsets))
	for i, off := range offsets {
		points[i] = DataPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: 100 + off}
	}
	report, err := AnalyzeTrend(points, DefaultTrendOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(report.Slope) > 1e-9 {
		t.Fatalf("expected zero slope got %v", report.Slope)
	}
	if report.StdErr <= 0 {
		t.Fatalf("expected positive stderr got %v", report.StdErr)
	}
	if report.Direction != TrendVolatile {
		t.Fatalf("expected volatile got %s", report.Direction)
	}
}

func TestAnalyzeTrendDecreasing(t *testing.T) {
	start := time.Now()
	points := make([]DataPoint, 8)
	for i := range points {
		points[i] = DataPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: 100 - 3*float64(i)}
	}
	report, err := AnalyzeTrend(points, DefaultTrendOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Direction != TrendDecreasing {
		t.Fatalf("expected decreasing got %s", report.Direction)
	}
}

func TestAnalyzeTrendInsufficientData(t *testing.T) {
	start := time.Now()
	points := []DataPoint{
		{Timestamp: start, Value: 1},
		{Timestamp: start.Add(time.Hour), Value: 2},
	}
	if _, err := AnalyzeTrend(points, DefaultTrendOptions()); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData got %v", err)
	}
}

func TestTValueLookup(t *testing.T) {
	if v := tValue(95, 4); math.Abs(v-2.776) > 1e-9 {
		t.Fatalf("expected 2.776 got %v", v)
	}
	if v := tValue(95, 500); math.Abs(v-1.960) > 1e-9 {
		t.Fatalf("expected normal approximation got %v", v)
	}
}
