package analysis

import "time"

// MonitorSLA checks the current value of a metric against its target. A
// violation is the current value falling below target; frequency counts
// historical points below target inside the trailing 24 hours.
func MonitorSLA(current, target float64, history []DataPoint) (SLAReport, error) {
	if target == 0 {
		return SLAReport{}, ErrInsufficientData
	}
	report := SLAReport{Current: current, Target: target}
	if current < target {
		report.Violated = true
		report.ViolationPercent = (target - current) / target * 100
		switch {
		case report.ViolationPercent >= 20:
			report.Severity = "critical"
		case report.ViolationPercent >= 10:
			report.Severity = "major"
		default:
			report.Severity = "minor"
		}
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, p := range history {
		if p.Timestamp.After(cutoff) && p.Value < target {
			report.ViolationFrequency++
		}
	}
	return report, nil
}
