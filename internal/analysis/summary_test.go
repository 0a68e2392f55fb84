package analysis

import (
	"math"
	"testing"
)

func TestSummarizeEmptyFails(t *testing.T) {
	if _, err := Summarize(nil); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData got %v", err)
	}
}

func TestSummarizeBasics(t *testing.T) {
	s, err := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Mean != 5 {
		t.Fatalf("expected mean 5 got %v", s.Mean)
	}
	if math.Abs(s.StdDev-2) > 1e-9 {
		t.Fatalf("expected stddev 2 got %v", s.StdDev)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Fatalf("unexpected min/max %v/%v", s.Min, s.Max)
	}
}

func TestSummarizeQuartileOrdering(t *testing.T) {
	cases := [][]float64{
		{1},
		{3, 1},
		{5, 5, 5, 5},
		{9, 1, 4, 7, 2, 8, 3},
		{-5, 0, 5, 100, -100, 2.5},
	}
	for _, values := range cases {
		s, err := Summarize(values)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !(s.Min <= s.Q1 && s.Q1 <= s.Median && s.Median <= s.Q3 && s.Q3 <= s.Max) {
			t.Fatalf("quartile ordering broken for %v: %+v", values, s)
		}
	}
}

func TestSummarizeSkewness(t *testing.T) {
	symmetric, _ := Summarize([]float64{1, 2, 3, 4, 5})
	if math.Abs(symmetric.Skewness) > 1e-9 {
		t.Fatalf("expected zero skew got %v", symmetric.Skewness)
	}
	rightTailed, _ := Summarize([]float64{1, 1, 1, 1, 100})
	if rightTailed.Skewness <= 0 {
		t.Fatalf("expected positive skew got %v", rightTailed.Skewness)
	}
}

func TestPercentileRank(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50}
	if rank := PercentileRank(values, 30); rank != 50 {
		t.Fatalf("expected rank 50 got %v", rank)
	}
	if rank := PercentileRank(values, 50); rank != 90 {
		t.Fatalf("expected rank 90 got %v", rank)
	}
}
