package scheduler

import (
	"errors"
	"time"

	"pipewatch-backend/internal/analysis"
)

var (
	ErrInvalidSchedule   = errors.New("invalid cron schedule")
	ErrInvalidJob        = errors.New("invalid job configuration")
	ErrJobExists         = errors.New("job already exists")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobDisabled       = errors.New("job disabled")
	ErrConcurrencyLimit  = errors.New("concurrency limit exceeded")
	ErrTimeout           = errors.New("job execution timed out")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrUnknownJobType    = errors.New("unknown job type")
)

type JobType string

const (
	JobAnomalyDetection JobType = "anomaly_detection"
	JobTrendAnalysis    JobType = "trend_analysis"
	JobSLAMonitoring    JobType = "sla_monitoring"
	JobCostAnalysis     JobType = "cost_analysis"
	JobFullAnalysis     JobType = "full_analysis"
)

func validJobType(t JobType) bool {
	switch t {
	case JobAnomalyDetection, JobTrendAnalysis, JobSLAMonitoring, JobCostAnalysis, JobFullAnalysis:
		return true
	}
	return false
}

type JobParameters struct {
	Pipelines  []string               `json:"pipelines"`
	Metric     string                 `json:"metric"`
	PeriodDays int                    `json:"periodDays"`
	SLATarget  float64                `json:"slaTarget,omitempty"`
	Usage      analysis.ResourceUsage `json:"usage,omitempty"`
}

type JobMetadata struct {
	CreatedAt  time.Time  `json:"createdAt"`
	LastRun    *time.Time `json:"lastRun,omitempty"`
	LastResult string     `json:"lastResult,omitempty"`
	RunCount   int        `json:"runCount"`
	ErrorCount int        `json:"errorCount"`
}

type JobConfig struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Type         JobType       `json:"type"`
	CronSchedule string        `json:"cronSchedule"`
	Enabled      bool          `json:"enabled"`
	PipelineID   string        `json:"pipelineId,omitempty"`
	Parameters   JobParameters `json:"parameters"`
	Metadata     JobMetadata   `json:"metadata"`
}

type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

type JobExecution struct {
	ID              string          `json:"id"`
	JobID           string          `json:"jobId"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         *time.Time      `json:"endTime,omitempty"`
	Status          ExecutionStatus `json:"status"`
	Duration        time.Duration   `json:"duration,omitempty"`
	AlertsGenerated int             `json:"alertsGenerated"`
	Error           string          `json:"error,omitempty"`
}

type Metrics struct {
	Jobs            int `json:"jobs"`
	Running         int `json:"running"`
	TotalExecutions int `json:"totalExecutions"`
	Completed       int `json:"completed"`
	Failed          int `json:"failed"`
	Cancelled       int `json:"cancelled"`
	Timeouts        int `json:"timeouts"`
	AlertsGenerated int `json:"alertsGenerated"`
}
