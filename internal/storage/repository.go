package storage

import (
	"context"
)

type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

func (r *Repository) InsertAlertEvent(ctx context.Context, rec AlertEventRecord) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO alert_events (alert_id, configuration_id, event, alert_type, severity, pipeline_id, environment, metric, ts_utc, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.AlertID, rec.ConfigurationID, rec.Event, rec.AlertType, rec.Severity,
		rec.PipelineID, rec.Environment, rec.Metric, rec.TSUTC, rec.Payload)
	return err
}

func (r *Repository) RecentAlertEvents(ctx context.Context, limit int) ([]AlertEventRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT alert_id, configuration_id, event, alert_type, severity, pipeline_id, environment, metric, ts_utc, payload
		FROM alert_events ORDER BY ts_utc DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []AlertEventRecord{}
	for rows.Next() {
		var rec AlertEventRecord
		if err := rows.Scan(&rec.AlertID, &rec.ConfigurationID, &rec.Event, &rec.AlertType, &rec.Severity,
			&rec.PipelineID, &rec.Environment, &rec.Metric, &rec.TSUTC, &rec.Payload); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) UpsertExecution(ctx context.Context, rec ExecutionRecord) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO job_executions (id, job_id, status, started_at, ended_at, duration_ms, alerts_generated, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			duration_ms = EXCLUDED.duration_ms,
			alerts_generated = EXCLUDED.alerts_generated,
			error = EXCLUDED.error`,
		rec.ID, rec.JobID, rec.Status, rec.StartedAt, rec.EndedAt, rec.DurationMS, rec.AlertsGenerated, rec.Error)
	return err
}

func (r *Repository) RecentExecutions(ctx context.Context, jobID string, limit int) ([]ExecutionRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, job_id, status, started_at, ended_at, duration_ms, alerts_generated, error
		FROM job_executions
		WHERE ($1 = '' OR job_id = $1)
		ORDER BY started_at DESC LIMIT $2`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []ExecutionRecord{}
	for rows.Next() {
		var rec ExecutionRecord
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.Status, &rec.StartedAt, &rec.EndedAt,
			&rec.DurationMS, &rec.AlertsGenerated, &rec.Error); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) InsertMetricPoint(ctx context.Context, rec MetricPointRecord) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO metric_points (pipeline_id, metric, ts_utc, value, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.PipelineID, rec.Metric, rec.TSUTC, rec.Value, rec.Metadata)
	return err
}
