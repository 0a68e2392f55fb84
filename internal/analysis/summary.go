package analysis

import (
	"math"
	"sort"
)

const epsilon = 1e-9

// Summarize accumulates the first four moments plus min/max in a single pass,
// then sorts once for the percentile-derived statistics.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrInsufficientData
	}
	n := float64(len(values))
	sum := 0.0
	sumSq := 0.0
	sumCu := 0.0
	sumQu := 0.0
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values {
		sum += v
		sumSq += v * v
		sumCu += v * v * v
		sumQu += v * v * v * v
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	stddev := math.Sqrt(variance)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	s := Summary{
		Count:    len(values),
		Sum:      sum,
		Mean:     mean,
		StdDev:   stddev,
		Variance: variance,
		Min:      minVal,
		Max:      maxVal,
		Median:   percentile(sorted, 50),
		Q1:       percentile(sorted, 25),
		Q3:       percentile(sorted, 75),
	}
	s.IQR = s.Q3 - s.Q1

	if stddev > epsilon {
		// central moments via the raw power sums
		m3 := sumCu/n - 3*mean*sumSq/n + 2*mean*mean*mean
		m4 := sumQu/n - 4*mean*sumCu/n + 6*mean*mean*sumSq/n - 3*mean*mean*mean*mean
		s.Skewness = m3 / (stddev * stddev * stddev)
		s.Kurtosis = m4/(variance*variance) - 3
	}
	return s, nil
}

// percentile interpolates linearly over an ascending-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// PercentileRank returns the percentile rank of value within values,
// counting half of the ties below.
func PercentileRank(values []float64, value float64) float64 {
	if len(values) == 0 {
		return 0
	}
	below := 0
	equal := 0
	for _, v := range values {
		switch {
		case v < value:
			below++
		case v == value:
			equal++
		}
	}
	return (float64(below) + 0.5*float64(equal)) / float64(len(values)) * 100
}
