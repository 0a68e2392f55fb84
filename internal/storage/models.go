package storage

import "time"

type AlertEventRecord struct {
	AlertID         string
	ConfigurationID string
	Event           string
	AlertType       string
	Severity        string
	PipelineID      string
	Environment     string
	Metric          string
	TSUTC           time.Time
	Payload         []byte
}

type ExecutionRecord struct {
	ID              string
	JobID           string
	Status          string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationMS      int64
	AlertsGenerated int
	Error           string
}

type MetricPointRecord struct {
	PipelineID string
	Metric     string
	TSUTC      time.Time
	Value      float64
	Metadata   []byte
}
