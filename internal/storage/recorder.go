package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"pipewatch-backend/internal/alerting"
	"pipewatch-backend/internal/scheduler"
)

// EventRecorder persists alert and job lifecycle events. It satisfies the
// engines' EventPublisher seam, so it composes with the NATS publisher.
type EventRecorder struct {
	Repo   *Repository
	Logger *slog.Logger
}

func NewEventRecorder(repo *Repository, logger *slog.Logger) *EventRecorder {
	return &EventRecorder{Repo: repo, Logger: logger}
}

func (r *EventRecorder) Publish(subject string, payload any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	switch v := payload.(type) {
	case alerting.Alert:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return r.Repo.InsertAlertEvent(ctx, AlertEventRecord{
			AlertID:         v.ID,
			ConfigurationID: v.ConfigurationID,
			Event:           eventFromSubject(subject),
			AlertType:       string(v.Type),
			Severity:        v.Details.Severity,
			PipelineID:      v.Context.PipelineID,
			Environment:     v.Context.Environment,
			Metric:          v.Details.Metric,
			TSUTC:           time.Now().UTC(),
			Payload:         raw,
		})
	case scheduler.JobExecution:
		rec := ExecutionRecord{
			ID:              v.ID,
			JobID:           v.JobID,
			Status:          string(v.Status),
			StartedAt:       v.StartTime,
			EndedAt:         v.EndTime,
			AlertsGenerated: v.AlertsGenerated,
			Error:           v.Error,
		}
		rec.DurationMS = v.Duration.Milliseconds()
		return r.Repo.UpsertExecution(ctx, rec)
	default:
		r.Logger.Debug("unrecorded event payload", slog.String("subject", subject))
		return nil
	}
}

// eventFromSubject maps "alert.triggered" to "triggered" and so on.
func eventFromSubject(subject string) string {
	if idx := strings.LastIndex(subject, "."); idx >= 0 {
		return subject[idx+1:]
	}
	return subject
}
