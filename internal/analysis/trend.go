package analysis

import (
	"math"
	"time"
)

// tTable holds two-sided critical t-values for 90/95/99% confidence, indexed
// by degrees of freedom 1..30. Larger df falls through to the normal
// approximation row. This is a lookup table, not a t-distribution.
var tTable = map[int][]float64{
	90: {6.314, 2.920, 2.353, 2.132, 2.015, 1.943, 1.895, 1.860, 1.833, 1.812,
		1.796, 1.782, 1.771, 1.761, 1.753, 1.746, 1.740, 1.734, 1.729, 1.725,
		1.721, 1.717, 1.714, 1.711, 1.708, 1.706, 1.703, 1.701, 1.699, 1.697},
	95: {12.706, 4.303, 3.182, 2.776, 2.571, 2.447, 2.365, 2.306, 2.262, 2.228,
		2.201, 2.179, 2.160, 2.145, 2.131, 2.120, 2.110, 2.101, 2.093, 2.086,
		2.080, 2.074, 2.069, 2.064, 2.060, 2.056, 2.052, 2.048, 2.045, 2.042},
	99: {63.657, 9.925, 5.841, 4.604, 4.032, 3.707, 3.499, 3.355, 3.250, 3.169,
		3.106, 3.055, 3.012, 2.977, 2.947, 2.921, 2.898, 2.878, 2.861, 2.845,
		2.831, 2.819, 2.807, 2.797, 2.787, 2.779, 2.771, 2.763, 2.756, 2.750},
}

var tInfinity = map[int]float64{90: 1.645, 95: 1.960, 99: 2.576}

func tValue(confidence, df int) float64 {
	rows, ok := tTable[confidence]
	if !ok {
		rows = tTable[95]
		confidence = 95
	}
	if df < 1 {
		df = 1
	}
	if df > len(rows) {
		return tInfinity[confidence]
	}
	return rows[df-1]
}

// AnalyzeTrend fits an ordinary least-squares line over elapsed hours since
// the first point and classifies the series.
func AnalyzeTrend(data []DataPoint, opts TrendOptions) (TrendReport, error) {
	if opts.MinPoints <= 0 {
		opts.MinPoints = DefaultTrendOptions().MinPoints
	}
	if opts.Confidence == 0 {
		opts.Confidence = DefaultTrendOptions().Confidence
	}
	if len(data) < opts.MinPoints || len(data) < 3 {
		return TrendReport{}, ErrInsufficientData
	}

	start := data[0].Timestamp
	xs := make([]float64, len(data))
	ys := make([]float64, len(data))
	for i, p := range data {
		xs[i] = p.Timestamp.Sub(start).Hours()
		ys[i] = p.Value
	}

	n := float64(len(xs))
	sumX, sumY, sumXY, sumX2, sumY2 := 0.0, 0.0, 0.0, 0.0, 0.0
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumX2 += xs[i] * xs[i]
		sumY2 += ys[i] * ys[i]
	}
	denom := n*sumX2 - sumX*sumX
	if math.Abs(denom) <= epsilon {
		return TrendReport{}, ErrInsufficientData
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	correlation := 0.0
	corrDenom := math.Sqrt(denom * (n*sumY2 - sumY*sumY))
	if corrDenom > epsilon {
		correlation = (n*sumXY - sumX*sumY) / corrDenom
	}

	ssRes := 0.0
	ssTot := 0.0
	meanY := sumY / n
	for i := range xs {
		est := slope*xs[i] + intercept
		res := ys[i] - est
		ssRes += res * res
		d := ys[i] - meanY
		ssTot += d * d
	}
	r2 := 1.0
	if ssTot > epsilon {
		r2 = 1 - ssRes/ssTot
	}

	df := len(xs) - 2
	stderr := 0.0
	if df > 0 {
		sxx := sumX2 - sumX*sumX/n
		if sxx > epsilon {
			stderr = math.Sqrt(ssRes / float64(df) / sxx)
		}
	}

	t := tValue(opts.Confidence, df)
	report := TrendReport{
		Slope:         slope,
		Intercept:     intercept,
		Correlation:   correlation,
		RSquared:      r2,
		StdErr:        stderr,
		Significance:  math.Abs(slope) / math.Max(stderr, epsilon),
		ConfidenceLow: slope - t*stderr,
		ConfidenceHi:  slope + t*stderr,
	}

	// volatile before stable: stderr > 3|slope| forces significance < 1/3,
	// so the stable branch would otherwise shadow it
	switch {
	case stderr > 3*math.Abs(slope):
		report.Direction = TrendVolatile
	case report.Significance < 0.5:
		report.Direction = TrendStable
	case slope > 0:
		report.Direction = TrendIncreasing
	default:
		report.Direction = TrendDecreasing
	}

	last := data[len(data)-1]
	lastX := last.Timestamp.Sub(start).Hours()
	forecast := func(ahead time.Duration) float64 {
		return slope*(lastX+ahead.Hours()) + intercept
	}
	report.Forecasts = Forecasts{
		Next24H: forecast(24 * time.Hour),
		Next7D:  forecast(7 * 24 * time.Hour),
		Next30D: forecast(30 * 24 * time.Hour),
	}
	return report, nil
}
