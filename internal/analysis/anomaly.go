package analysis

import "math"

// DetectAnomalies runs the requested detection methods over data. It never
// substitutes a default result: below MinSamples it fails with
// ErrInsufficientData so downstream conclusions are not corrupted.
func DetectAnomalies(data []DataPoint, opts AnomalyOptions) (AnomalyReport, error) {
	if opts.MinSamples <= 0 {
		opts.MinSamples = DefaultAnomalyOptions().MinSamples
	}
	if len(data) < opts.MinSamples {
		return AnomalyReport{}, ErrInsufficientData
	}
	if len(opts.Methods) == 0 {
		opts.Methods = DefaultAnomalyOptions().Methods
	}
	if opts.ZScoreThreshold <= 0 {
		opts.ZScoreThreshold = DefaultAnomalyOptions().ZScoreThreshold
	}
	if opts.PercentileThreshold <= 0 {
		opts.PercentileThreshold = DefaultAnomalyOptions().PercentileThreshold
	}
	if opts.IQRMultiplier <= 0 {
		opts.IQRMultiplier = DefaultAnomalyOptions().IQRMultiplier
	}

	values := toValues(data)
	summary, err := Summarize(values)
	if err != nil {
		return AnomalyReport{}, err
	}

	report := AnomalyReport{Summary: summary, Examined: len(data)}
	for _, method := range opts.Methods {
		switch method {
		case MethodZScore:
			report.Anomalies = append(report.Anomalies, detectByZScore(data, summary, opts.ZScoreThreshold)...)
		case MethodPercentile:
			report.Anomalies = append(report.Anomalies, detectByPercentile(data, values, summary, opts.PercentileThreshold)...)
		case MethodIQR:
			report.Anomalies = append(report.Anomalies, detectByIQR(data, summary, opts.IQRMultiplier)...)
		}
	}
	return report, nil
}

func detectByZScore(data []DataPoint, s Summary, threshold float64) []Anomaly {
	if s.StdDev <= epsilon {
		return nil
	}
	var out []Anomaly
	for i, p := range data {
		z := math.Abs(p.Value-s.Mean) / s.StdDev
		if z <= threshold {
			continue
		}
		out = append(out, Anomaly{
			Index:    i,
			Point:    p,
			Method:   MethodZScore,
			Score:    z,
			Severity: severityFromScore(z),
			Expected: s.Mean,
		})
	}
	return out
}

func detectByPercentile(data []DataPoint, values []float64, s Summary, threshold float64) []Anomaly {
	upper := threshold
	lower := 100 - threshold
	var out []Anomaly
	for i, p := range data {
		rank := PercentileRank(values, p.Value)
		if rank < upper && rank > lower {
			continue
		}
		score := math.Abs(p.Value-s.Mean) / math.Max(s.StdDev, epsilon)
		out = append(out, Anomaly{
			Index:    i,
			Point:    p,
			Method:   MethodPercentile,
			Score:    score,
			Severity: severityFromScore(score),
			Expected: s.Median,
		})
	}
	return out
}

func detectByIQR(data []DataPoint, s Summary, multiplier float64) []Anomaly {
	low := s.Q1 - multiplier*s.IQR
	high := s.Q3 + multiplier*s.IQR
	var out []Anomaly
	for i, p := range data {
		if p.Value >= low && p.Value <= high {
			continue
		}
		score := math.Abs(p.Value-s.Median) / math.Max(s.IQR, epsilon)
		out = append(out, Anomaly{
			Index:    i,
			Point:    p,
			Method:   MethodIQR,
			Score:    score,
			Severity: severityFromScore(score),
			Expected: s.Median,
		})
	}
	return out
}

// severityFromScore tiers the standardized deviation of a flagged point.
func severityFromScore(score float64) string {
	switch {
	case score >= 5:
		return "critical"
	case score >= 3:
		return "high"
	case score >= 2:
		return "medium"
	default:
		return "low"
	}
}
