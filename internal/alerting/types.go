package alerting

import (
	"errors"
	"time"
)

var (
	ErrInvalidConfiguration = errors.New("invalid alert configuration")
	ErrConfigurationExists  = errors.New("alert configuration already exists")
	ErrAlertNotFound        = errors.New("alert not found")
	ErrInvalidTransition    = errors.New("invalid alert status transition")
)

type AlertType string

const (
	TypeAnomaly AlertType = "anomaly"
	TypeTrend   AlertType = "trend"
	TypeSLA     AlertType = "sla_violation"
	TypeCost    AlertType = "cost_regression"
	TypeStatic  AlertType = "static_threshold"
)

type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
	StatusEscalated    AlertStatus = "escalated"
	// StatusSuppressed completes the status vocabulary for API consumers, but
	// dedup never materializes a suppressed alert: suppression is counted in
	// Metrics.SuppressedByDedup and TriggerAlert returns (nil, nil).
	StatusSuppressed AlertStatus = "suppressed"
)

// ThresholdSpec is a tagged union over alert type: exactly one variant must
// be set and it must match the configuration's type.
type ThresholdSpec struct {
	Anomaly *AnomalyThreshold `json:"anomaly,omitempty"`
	Trend   *TrendThreshold   `json:"trend,omitempty"`
	SLA     *SLAThreshold     `json:"sla,omitempty"`
	Cost    *CostThreshold    `json:"cost,omitempty"`
	Static  *StaticThreshold  `json:"static,omitempty"`
}

type AnomalyThreshold struct {
	MinScore float64 `json:"minScore"`
}

type TrendThreshold struct {
	Direction string  `json:"direction"` // increasing or decreasing
	MinSlope  float64 `json:"minSlope"`
}

type SLAThreshold struct {
	MinViolationPercent float64 `json:"minViolationPercent"`
}

type CostThreshold struct {
	MaxCost       float64 `json:"maxCost,omitempty"`
	MinEfficiency float64 `json:"minEfficiency,omitempty"`
}

type StaticThreshold struct {
	Op    string  `json:"op"` // gt, gte, lt, lte
	Value float64 `json:"value"`
}

type ChannelConfig struct {
	Type     string      `json:"type"` // log, webhook, nats
	Enabled  bool        `json:"enabled"`
	Target   string      `json:"target,omitempty"`
	Template string      `json:"template,omitempty"`
	Retry    RetryPolicy `json:"retry"`
}

type RetryPolicy struct {
	MaxRetries   int           `json:"maxRetries"`
	InitialDelay time.Duration `json:"initialDelay"`
	MaxDelay     time.Duration `json:"maxDelay"`
}

type EscalationStage struct {
	DelayMinutes int      `json:"delayMinutes"`
	Channels     []string `json:"channels,omitempty"`
}

type EscalationPolicy struct {
	Enabled bool              `json:"enabled"`
	Stages  []EscalationStage `json:"stages"`
}

type FilterSpec struct {
	Pipelines    []string `json:"pipelines,omitempty"`
	Environments []string `json:"environments,omitempty"`
}

// RateLimitSpec carries the dedup window plus numeric caps. Only the dedup
// window is enforced; the caps are recorded for operators (see DESIGN.md).
type RateLimitSpec struct {
	DedupWindowMinutes int `json:"dedupWindowMinutes"`
	MaxPerHour         int `json:"maxPerHour,omitempty"`
	MaxPerDay          int `json:"maxPerDay,omitempty"`
}

// AlertConfiguration is immutable once created; an update is a new
// configuration.
type AlertConfiguration struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Type       AlertType        `json:"type"`
	Severity   string           `json:"severity"`
	Enabled    bool             `json:"enabled"`
	Thresholds ThresholdSpec    `json:"thresholds"`
	Channels   []ChannelConfig  `json:"channels"`
	Escalation EscalationPolicy `json:"escalation"`
	Filters    FilterSpec       `json:"filters"`
	RateLimit  RateLimitSpec    `json:"rateLimit"`
	CreatedAt  time.Time        `json:"createdAt"`
}

type Details struct {
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Severity     string         `json:"severity"`
	Metric       string         `json:"metric"`
	TriggerValue float64        `json:"triggerValue"`
	Direction    string         `json:"direction,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type Context struct {
	PipelineID  string `json:"pipelineId,omitempty"`
	Environment string `json:"environment,omitempty"`
}

type NotificationRecord struct {
	Channel  string    `json:"channel"`
	Status   string    `json:"status"` // pending, sent, failed
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	SentAt   time.Time `json:"sentAt,omitempty"`
}

type EscalationRecord struct {
	Stage       int       `json:"stage"`
	EscalatedAt time.Time `json:"escalatedAt"`
}

type Acknowledgment struct {
	By   string    `json:"by"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

type Resolution struct {
	By   string    `json:"by"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

type Alert struct {
	ID              string               `json:"id"`
	ConfigurationID string               `json:"configurationId"`
	Type            AlertType            `json:"type"`
	Status          AlertStatus          `json:"status"`
	Details         Details              `json:"details"`
	Context         Context              `json:"context"`
	Notifications   []NotificationRecord `json:"notifications"`
	Escalations     []EscalationRecord   `json:"escalations"`
	Acknowledgment  *Acknowledgment      `json:"acknowledgment,omitempty"`
	Resolution      *Resolution          `json:"resolution,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
}

type Metrics struct {
	TotalTriggered      int            `json:"totalTriggered"`
	Active              int            `json:"active"`
	Resolved            int            `json:"resolved"`
	Escalated           int            `json:"escalated"`
	SuppressedByDedup   int            `json:"suppressedByDedup"`
	BySeverity          map[string]int `json:"bySeverity"`
	NotificationsSent   int            `json:"notificationsSent"`
	NotificationsFailed int            `json:"notificationsFailed"`
}

// dedupKey identifies materially identical alerts.
func dedupKey(alertType AlertType, metric, pipelineID, environment string) string {
	return string(alertType) + "|" + metric + "|" + pipelineID + "|" + environment
}
