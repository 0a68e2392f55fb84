package analysis

import (
	"testing"
	"time"
)

func seriesOf(values ...float64) []DataPoint {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]DataPoint, len(values))
	for i, v := range values {
		points[i] = DataPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return points
}

func TestDetectAnomaliesInsufficientData(t *testing.T) {
	if _, err := DetectAnomalies(seriesOf(1, 2), DefaultAnomalyOptions()); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData got %v", err)
	}
}

func TestDetectAnomaliesOutlierAllMethods(t *testing.T) {
	data := seriesOf(10, 10, 10, 10, 10, 10, 10, 10, 10, 1000)
	report, err := DetectAnomalies(data, DefaultAnomalyOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hits := map[AnomalyMethod]Anomaly{}
	for _, a := range report.Anomalies {
		if a.Index == 9 {
			hits[a.Method] = a
		}
	}
	for _, method := range []AnomalyMethod{MethodZScore, MethodPercentile, MethodIQR} {
		hit, ok := hits[method]
		if !ok {
			t.Fatalf("outlier not flagged by %s", method)
		}
		if hit.Severity != "high" && hit.Severity != "critical" {
			t.Fatalf("expected severity >= high from %s got %s", method, hit.Severity)
		}
	}
}

func TestDetectAnomaliesQuietSeries(t *testing.T) {
	data := seriesOf(10, 11, 10, 12, 11, 10, 11, 12, 10, 11)
	report, err := DetectAnomalies(data, DefaultAnomalyOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range report.Anomalies {
		if a.Method == MethodZScore || a.Method == MethodIQR {
			t.Fatalf("unexpected %s anomaly at index %d", a.Method, a.Index)
		}
	}
}

func TestDetectAnomaliesSingleMethod(t *testing.T) {
	data := seriesOf(10, 10, 10, 10, 10, 10, 10, 10, 10, 1000)
	opts := DefaultAnomalyOptions()
	opts.Methods = []AnomalyMethod{MethodZScore}
	report, err := DetectAnomalies(data, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range report.Anomalies {
		if a.Method != MethodZScore {
			t.Fatalf("unexpected method %s", a.Method)
		}
	}
	if len(report.Anomalies) == 0 {
		t.Fatalf("expected a zscore anomaly")
	}
}

func TestSeverityTiers(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{1.5, "low"},
		{2, "medium"},
		{2.9, "medium"},
		{3, "high"},
		{4.9, "high"},
		{5, "critical"},
	}
	for _, c := range cases {
		if got := severityFromScore(c.score); got != c.want {
			t.Fatalf("score %v: expected %s got %s", c.score, c.want, got)
		}
	}
}
