package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"pipewatch-backend/internal/alerting"
	"pipewatch-backend/internal/analysis"
)

// runJobLogic dispatches on the job type and returns how many alerts the run
// generated. A sweep over several pipelines isolates per-pipeline failures:
// one bad pipeline is logged and skipped, the rest of the cycle continues.
func (r *Registry) runJobLogic(ctx context.Context, cfg JobConfig) (int, error) {
	pipelines := cfg.Parameters.Pipelines
	if len(pipelines) == 0 && cfg.PipelineID != "" {
		pipelines = []string{cfg.PipelineID}
	}
	if len(pipelines) == 0 {
		return 0, fmt.Errorf("%w: no pipelines configured", ErrInvalidJob)
	}
	if cfg.Type == JobAnomalyDetection && r.opts.Batch != nil {
		return r.runAnomalySweep(ctx, cfg, pipelines)
	}

	totalAlerts := 0
	failures := 0
	var lastErr error
	for _, pipelineID := range pipelines {
		if err := ctx.Err(); err != nil {
			return totalAlerts, err
		}
		alerts, err := r.runPipeline(ctx, cfg, pipelineID)
		totalAlerts += alerts
		if err != nil {
			failures++
			lastErr = err
			r.logger.Error("pipeline analysis failed",
				slog.String("job_id", cfg.ID),
				slog.String("pipeline", pipelineID),
				slog.String("error", err.Error()))
		}
	}
	if failures == len(pipelines) && lastErr != nil {
		return totalAlerts, lastErr
	}
	return totalAlerts, nil
}

// runAnomalySweep pushes every pipeline's series through the batch runner so
// at most BatchOptions.MaxParallel detections run at once and dispatch stalls
// under memory pressure. Fetch and detection failures are isolated per
// pipeline like the sequential sweep.
func (r *Registry) runAnomalySweep(ctx context.Context, cfg JobConfig, pipelines []string) (int, error) {
	items := make([]analysis.BatchItem, 0, len(pipelines))
	failures := 0
	var lastErr error
	for _, pipelineID := range pipelines {
		points, err := r.source.FetchDataPoints(ctx, pipelineID, cfg.Parameters.Metric, periodDaysOf(cfg))
		if err != nil {
			failures++
			lastErr = fmt.Errorf("fetch %s/%s: %w", pipelineID, cfg.Parameters.Metric, err)
			r.logger.Error("pipeline analysis failed",
				slog.String("job_id", cfg.ID),
				slog.String("pipeline", pipelineID),
				slog.String("error", lastErr.Error()))
			continue
		}
		items = append(items, analysis.BatchItem{Key: pipelineID, Data: points})
	}

	results, err := r.opts.Batch.Run(ctx, items, analysis.DefaultAnomalyOptions())
	if err != nil {
		return 0, err
	}
	totalAlerts := 0
	for _, res := range results {
		if res.Err != nil {
			failures++
			lastErr = res.Err
			r.logger.Error("pipeline analysis failed",
				slog.String("job_id", cfg.ID),
				slog.String("pipeline", res.Key),
				slog.String("error", res.Err.Error()))
			continue
		}
		count, err := r.triggerAnomalies(ctx, cfg, res.Key, res.Report)
		totalAlerts += count
		if err != nil {
			failures++
			lastErr = err
		}
	}
	if failures == len(pipelines) && lastErr != nil {
		return totalAlerts, lastErr
	}
	return totalAlerts, nil
}

func periodDaysOf(cfg JobConfig) int {
	if cfg.Parameters.PeriodDays > 0 {
		return cfg.Parameters.PeriodDays
	}
	return 7
}

func (r *Registry) runPipeline(ctx context.Context, cfg JobConfig, pipelineID string) (int, error) {
	points, err := r.source.FetchDataPoints(ctx, pipelineID, cfg.Parameters.Metric, periodDaysOf(cfg))
	if err != nil {
		return 0, fmt.Errorf("fetch %s/%s: %w", pipelineID, cfg.Parameters.Metric, err)
	}

	switch cfg.Type {
	case JobAnomalyDetection:
		return r.runAnomaly(ctx, cfg, pipelineID, points)
	case JobTrendAnalysis:
		return r.runTrend(ctx, cfg, pipelineID, points)
	case JobSLAMonitoring:
		return r.runSLA(ctx, cfg, pipelineID, points)
	case JobCostAnalysis:
		return r.runCost(ctx, cfg, pipelineID, points)
	case JobFullAnalysis:
		total := 0
		var firstErr error
		runs := []func(context.Context, JobConfig, string, []analysis.DataPoint) (int, error){
			r.runAnomaly, r.runTrend, r.runSLA, r.runCost,
		}
		for _, run := range runs {
			n, err := run(ctx, cfg, pipelineID, points)
			total += n
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return total, firstErr
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownJobType, cfg.Type)
	}
}

func (r *Registry) runAnomaly(ctx context.Context, cfg JobConfig, pipelineID string, points []analysis.DataPoint) (int, error) {
	report, err := analysis.DetectAnomalies(points, analysis.DefaultAnomalyOptions())
	if err != nil {
		return 0, err
	}
	return r.triggerAnomalies(ctx, cfg, pipelineID, report)
}

func (r *Registry) triggerAnomalies(ctx context.Context, cfg JobConfig, pipelineID string, report analysis.AnomalyReport) (int, error) {
	count := 0
	for _, anomaly := range report.Anomalies {
		alert, err := r.alerts.TriggerAlert(ctx, alerting.TypeAnomaly, alerting.Details{
			Title:        "anomalous " + cfg.Parameters.Metric,
			Message:      fmt.Sprintf("value %.4g deviates from expected %.4g (%s)", anomaly.Point.Value, anomaly.Expected, anomaly.Method),
			Severity:     anomaly.Severity,
			Metric:       cfg.Parameters.Metric,
			TriggerValue: anomaly.Score,
			Data:         map[string]any{"method": anomaly.Method, "index": anomaly.Index},
		}, alerting.Context{PipelineID: pipelineID})
		if err != nil {
			return count, err
		}
		if alert != nil {
			count++
		}
	}
	return count, nil
}

func (r *Registry) runTrend(ctx context.Context, cfg JobConfig, pipelineID string, points []analysis.DataPoint) (int, error) {
	report, err := analysis.AnalyzeTrend(points, analysis.DefaultTrendOptions())
	if err != nil {
		return 0, err
	}
	if report.Direction != analysis.TrendIncreasing && report.Direction != analysis.TrendDecreasing {
		return 0, nil
	}
	alert, err := r.alerts.TriggerAlert(ctx, alerting.TypeTrend, alerting.Details{
		Title:        cfg.Parameters.Metric + " trending " + string(report.Direction),
		Message:      fmt.Sprintf("slope %.4g/h, r2 %.3f, 7d forecast %.4g", report.Slope, report.RSquared, report.Forecasts.Next7D),
		Metric:       cfg.Parameters.Metric,
		TriggerValue: report.Slope,
		Direction:    string(report.Direction),
		Data:         map[string]any{"forecast24h": report.Forecasts.Next24H},
	}, alerting.Context{PipelineID: pipelineID})
	if err != nil || alert == nil {
		return 0, err
	}
	return 1, nil
}

func (r *Registry) runSLA(ctx context.Context, cfg JobConfig, pipelineID string, points []analysis.DataPoint) (int, error) {
	if cfg.Parameters.SLATarget == 0 {
		return 0, nil
	}
	if len(points) == 0 {
		return 0, analysis.ErrInsufficientData
	}
	current := points[len(points)-1].Value
	report, err := analysis.MonitorSLA(current, cfg.Parameters.SLATarget, points)
	if err != nil {
		return 0, err
	}
	if !report.Violated {
		return 0, nil
	}
	alert, err := r.alerts.TriggerAlert(ctx, alerting.TypeSLA, alerting.Details{
		Title:        cfg.Parameters.Metric + " below SLA",
		Message:      fmt.Sprintf("current %.4g vs target %.4g (%.1f%% violation, %d in 24h)", current, report.Target, report.ViolationPercent, report.ViolationFrequency),
		Severity:     report.Severity,
		Metric:       cfg.Parameters.Metric,
		TriggerValue: report.ViolationPercent,
	}, alerting.Context{PipelineID: pipelineID})
	if err != nil || alert == nil {
		return 0, err
	}
	return 1, nil
}

func (r *Registry) runCost(ctx context.Context, cfg JobConfig, pipelineID string, points []analysis.DataPoint) (int, error) {
	if len(points) == 0 {
		return 0, analysis.ErrInsufficientData
	}
	minutes := points[len(points)-1].Value
	report, err := analysis.AnalyzeCosts(minutes, cfg.Parameters.Usage, analysis.DefaultCostRates(), points)
	if err != nil {
		return 0, err
	}
	alert, err := r.alerts.TriggerAlert(ctx, alerting.TypeCost, alerting.Details{
		Title:        "cost regression on " + pipelineID,
		Message:      fmt.Sprintf("run cost %.4f, efficiency %.0f", report.TotalCost, report.EfficiencyScore),
		Metric:       cfg.Parameters.Metric,
		TriggerValue: report.TotalCost,
		Data:         map[string]any{"efficiency": report.EfficiencyScore, "recommendations": report.Recommendations},
	}, alerting.Context{PipelineID: pipelineID})
	if err != nil || alert == nil {
		return 0, err
	}
	return 1, nil
}
