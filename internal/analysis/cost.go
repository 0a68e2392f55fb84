package analysis

import "math"

const longExecutionMinutes = 60

// AnalyzeCosts prices a pipeline run from its execution time and resource
// usage, and scores how efficiently the allocated resources were used.
func AnalyzeCosts(minutes float64, usage ResourceUsage, rates CostRates, history []DataPoint) (CostReport, error) {
	if minutes <= 0 {
		return CostReport{}, ErrInsufficientData
	}
	hours := minutes / 60
	breakdown := map[string]float64{
		"cpu":     usage.CPUCores * rates.CPUPerCoreHour * hours,
		"memory":  usage.MemoryGB * rates.MemoryPerGBHour * hours,
		"storage": usage.StorageGB * rates.StoragePerGBHour * hours,
		"network": rates.NetworkFlatPerRun,
	}
	total := 0.0
	for _, c := range breakdown {
		total += c
	}

	score := 100.0
	var recommendations []string
	if usage.CPUUtilization < 0.3 {
		score -= 15
		recommendations = append(recommendations, "cpu allocation exceeds demand; reduce requested cores")
	}
	if usage.MemoryUtilization < 0.3 {
		score -= 15
		recommendations = append(recommendations, "memory allocation exceeds demand; reduce requested memory")
	}
	if minutes > longExecutionMinutes {
		score -= 10
		recommendations = append(recommendations, "execution time exceeds threshold; investigate slow stages or caching")
	}
	if balanced(usage.CPUUtilization) && balanced(usage.MemoryUtilization) {
		score += 10
	}
	score = math.Max(0, math.Min(100, score))

	return CostReport{
		TotalCost:       total,
		Breakdown:       breakdown,
		EfficiencyScore: score,
		Recommendations: recommendations,
	}, nil
}

func balanced(utilization float64) bool {
	return utilization >= 0.70 && utilization <= 0.85
}
