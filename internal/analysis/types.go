package analysis

import (
	"errors"
	"time"
)

var ErrInsufficientData = errors.New("insufficient data")

// DataPoint is one metric observation, ordered ascending by timestamp.
type DataPoint struct {
	Timestamp time.Time      `json:"timestamp"`
	Value     float64        `json:"value"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Summary struct {
	Count    int     `json:"count"`
	Sum      float64 `json:"sum"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"stdDev"`
	Variance float64 `json:"variance"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Q1       float64 `json:"q1"`
	Q3       float64 `json:"q3"`
	IQR      float64 `json:"iqr"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
}

type AnomalyMethod string

const (
	MethodZScore     AnomalyMethod = "zscore"
	MethodPercentile AnomalyMethod = "percentile"
	MethodIQR        AnomalyMethod = "iqr"
)

type AnomalyOptions struct {
	Methods             []AnomalyMethod
	ZScoreThreshold     float64
	PercentileThreshold float64
	IQRMultiplier       float64
	MinSamples          int
}

func DefaultAnomalyOptions() AnomalyOptions {
	return AnomalyOptions{
		Methods:             []AnomalyMethod{MethodZScore, MethodPercentile, MethodIQR},
		ZScoreThreshold:     2.5,
		PercentileThreshold: 95,
		IQRMultiplier:       1.5,
		MinSamples:          5,
	}
}

type Anomaly struct {
	Index    int           `json:"index"`
	Point    DataPoint     `json:"point"`
	Method   AnomalyMethod `json:"method"`
	Score    float64       `json:"score"`
	Severity string        `json:"severity"`
	Expected float64       `json:"expected"`
}

type AnomalyReport struct {
	Anomalies []Anomaly `json:"anomalies"`
	Summary   Summary   `json:"summary"`
	Examined  int       `json:"examined"`
}

type TrendOptions struct {
	MinPoints  int
	Confidence int // 90, 95 or 99
}

func DefaultTrendOptions() TrendOptions {
	return TrendOptions{MinPoints: 5, Confidence: 95}
}

type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
	TrendVolatile   TrendDirection = "volatile"
)

type TrendReport struct {
	Direction     TrendDirection `json:"direction"`
	Slope         float64        `json:"slope"`
	Intercept     float64        `json:"intercept"`
	Correlation   float64        `json:"correlation"`
	RSquared      float64        `json:"rSquared"`
	StdErr        float64        `json:"stdErr"`
	Significance  float64        `json:"significance"`
	ConfidenceLow float64        `json:"confidenceLow"`
	ConfidenceHi  float64        `json:"confidenceHigh"`
	Forecasts     Forecasts      `json:"forecasts"`
}

// Forecasts are linear extrapolations from the last observed point.
type Forecasts struct {
	Next24H float64 `json:"next24h"`
	Next7D  float64 `json:"next7d"`
	Next30D float64 `json:"next30d"`
}

type SLAReport struct {
	Violated           bool    `json:"violated"`
	Current            float64 `json:"current"`
	Target             float64 `json:"target"`
	ViolationPercent   float64 `json:"violationPercent"`
	Severity           string  `json:"severity"`
	ViolationFrequency int     `json:"violationFrequency"`
}

type ResourceUsage struct {
	CPUCores          float64 `json:"cpuCores"`
	CPUUtilization    float64 `json:"cpuUtilization"` // 0..1
	MemoryGB          float64 `json:"memoryGb"`
	MemoryUtilization float64 `json:"memoryUtilization"` // 0..1
	StorageGB         float64 `json:"storageGb"`
	NetworkGB         float64 `json:"networkGb"`
}

type CostRates struct {
	CPUPerCoreHour    float64
	MemoryPerGBHour   float64
	StoragePerGBHour  float64
	NetworkFlatPerRun float64
}

func DefaultCostRates() CostRates {
	return CostRates{
		CPUPerCoreHour:    0.048,
		MemoryPerGBHour:   0.0065,
		StoragePerGBHour:  0.0002,
		NetworkFlatPerRun: 0.01,
	}
}

type CostReport struct {
	TotalCost       float64            `json:"totalCost"`
	Breakdown       map[string]float64 `json:"breakdown"`
	EfficiencyScore float64            `json:"efficiencyScore"`
	Recommendations []string           `json:"recommendations"`
}

func toValues(data []DataPoint) []float64 {
	values := make([]float64, len(data))
	for i, p := range data {
		values[i] = p.Value
	}
	return values
}
