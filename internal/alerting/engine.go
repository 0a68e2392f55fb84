package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pipewatch-backend/internal/bus"
)

// EventPublisher receives alert lifecycle events. *bus.Publisher satisfies it.
type EventPublisher interface {
	Publish(subject string, payload any) error
}

// Broadcaster pushes alerts to live subscribers.
type Broadcaster interface {
	BroadcastAlert(event string, alert Alert)
}

type Options struct {
	EscalationInterval time.Duration
	CleanupInterval    time.Duration
	HistoryRetention   time.Duration
	Events             EventPublisher
	Updates            Broadcaster
}

type Engine struct {
	mu        sync.Mutex
	logger    *slog.Logger
	configs   map[string]AlertConfiguration
	active    map[string]*Alert
	history   []*Alert
	lastByKey map[string]time.Time
	channels  map[string]Channel
	metrics   Metrics
	opts      Options
	now       func() time.Time
	stop      chan struct{}
	stopOnce  sync.Once
	notifyWG  sync.WaitGroup
}

func NewEngine(logger *slog.Logger, opts Options) *Engine {
	if opts.EscalationInterval <= 0 {
		opts.EscalationInterval = 30 * time.Second
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 10 * time.Minute
	}
	if opts.HistoryRetention <= 0 {
		opts.HistoryRetention = 7 * 24 * time.Hour
	}
	return &Engine{
		logger:    logger,
		configs:   map[string]AlertConfiguration{},
		active:    map[string]*Alert{},
		lastByKey: map[string]time.Time{},
		channels:  map[string]Channel{},
		metrics:   Metrics{BySeverity: map[string]int{}},
		opts:      opts,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
}

// RegisterChannel makes a delivery channel available under its type name.
func (e *Engine) RegisterChannel(name string, ch Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channels[name] = ch
}

// Start runs the escalation and cleanup tickers until Stop.
func (e *Engine) Start() {
	go e.runTicker(e.opts.EscalationInterval, func() { e.CheckEscalations(e.now()) })
	go e.runTicker(e.opts.CleanupInterval, func() { e.CleanupHistory(e.now()) })
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.notifyWG.Wait()
}

func (e *Engine) runTicker(interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-e.stop:
			return
		}
	}
}

func (e *Engine) CreateConfiguration(cfg AlertConfiguration) (AlertConfiguration, error) {
	if err := validateConfiguration(cfg); err != nil {
		return AlertConfiguration{}, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = e.now()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.configs[cfg.ID]; ok {
		return AlertConfiguration{}, ErrConfigurationExists
	}
	e.configs[cfg.ID] = cfg
	return cfg, nil
}

func (e *Engine) Configurations() []AlertConfiguration {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AlertConfiguration, 0, len(e.configs))
	for _, cfg := range e.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func validateConfiguration(cfg AlertConfiguration) error {
	if cfg.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidConfiguration)
	}
	variants := 0
	var matching bool
	if cfg.Thresholds.Anomaly != nil {
		variants++
		matching = cfg.Type == TypeAnomaly
	}
	if cfg.Thresholds.Trend != nil {
		variants++
		matching = cfg.Type == TypeTrend
	}
	if cfg.Thresholds.SLA != nil {
		variants++
		matching = cfg.Type == TypeSLA
	}
	if cfg.Thresholds.Cost != nil {
		variants++
		matching = cfg.Type == TypeCost
	}
	if cfg.Thresholds.Static != nil {
		variants++
		matching = cfg.Type == TypeStatic
	}
	if variants != 1 {
		return fmt.Errorf("%w: exactly one threshold variant required, got %d", ErrInvalidConfiguration, variants)
	}
	if !matching {
		return fmt.Errorf("%w: threshold variant does not match type %q", ErrInvalidConfiguration, cfg.Type)
	}
	if cfg.Escalation.Enabled && len(cfg.Escalation.Stages) == 0 {
		return fmt.Errorf("%w: escalation enabled without stages", ErrInvalidConfiguration)
	}
	return nil
}

// TriggerAlert matches configurations against the triggering condition. A
// missing match or a dedup suppression returns (nil, nil): silence is the
// intended outcome, not an error.
func (e *Engine) TriggerAlert(ctx context.Context, alertType AlertType, details Details, actx Context) (*Alert, error) {
	e.mu.Lock()
	cfg, ok := e.matchConfiguration(alertType, details, actx)
	if !ok {
		e.mu.Unlock()
		return nil, nil
	}

	key := dedupKey(alertType, details.Metric, actx.PipelineID, actx.Environment)
	window := time.Duration(cfg.RateLimit.DedupWindowMinutes) * time.Minute
	now := e.now()
	if last, seen := e.lastByKey[key]; seen && window > 0 && now.Sub(last) < window {
		e.metrics.SuppressedByDedup++
		e.mu.Unlock()
		return nil, nil
	}

	if details.Severity == "" {
		details.Severity = cfg.Severity
	}
	alert := &Alert{
		ID:              uuid.NewString(),
		ConfigurationID: cfg.ID,
		Type:            alertType,
		Status:          StatusActive,
		Details:         details,
		Context:         actx,
		CreatedAt:       now,
	}
	e.active[alert.ID] = alert
	e.lastByKey[key] = now
	e.metrics.TotalTriggered++
	e.metrics.BySeverity[details.Severity]++
	snapshot := *alert
	e.mu.Unlock()

	e.logger.Info("alert triggered",
		slog.String("alert_id", snapshot.ID),
		slog.String("type", string(alertType)),
		slog.String("pipeline", actx.PipelineID),
		slog.String("severity", details.Severity))
	e.publish(bus.SubjectAlertTriggered, snapshot)
	e.broadcast("alert:triggered", snapshot)
	e.dispatchNotifications(snapshot.ID, cfg.Channels)
	return &snapshot, nil
}

// matchConfiguration returns the oldest enabled configuration whose type,
// filters and threshold predicate all hold. Caller holds the lock.
func (e *Engine) matchConfiguration(alertType AlertType, details Details, actx Context) (AlertConfiguration, bool) {
	var candidates []AlertConfiguration
	for _, cfg := range e.configs {
		if !cfg.Enabled || cfg.Type != alertType {
			continue
		}
		if !filterMatches(cfg.Filters.Pipelines, actx.PipelineID) {
			continue
		}
		if !filterMatches(cfg.Filters.Environments, actx.Environment) {
			continue
		}
		if !thresholdHolds(cfg.Thresholds, details) {
			continue
		}
		candidates = append(candidates, cfg)
	}
	if len(candidates) == 0 {
		return AlertConfiguration{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates[0], true
}

func filterMatches(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, v := range allowed {
		if v == value {
			return true
		}
	}
	return false
}

func thresholdHolds(t ThresholdSpec, details Details) bool {
	switch {
	case t.Anomaly != nil:
		return details.TriggerValue >= t.Anomaly.MinScore
	case t.Trend != nil:
		if t.Trend.Direction != "" && t.Trend.Direction != details.Direction {
			return false
		}
		return abs(details.TriggerValue) >= t.Trend.MinSlope
	case t.SLA != nil:
		return details.TriggerValue >= t.SLA.MinViolationPercent
	case t.Cost != nil:
		if t.Cost.MaxCost > 0 && details.TriggerValue > t.Cost.MaxCost {
			return true
		}
		if t.Cost.MinEfficiency > 0 && details.TriggerValue < t.Cost.MinEfficiency && t.Cost.MaxCost == 0 {
			return true
		}
		return false
	case t.Static != nil:
		switch t.Static.Op {
		case "gt":
			return details.TriggerValue > t.Static.Value
		case "gte":
			return details.TriggerValue >= t.Static.Value
		case "lt":
			return details.TriggerValue < t.Static.Value
		case "lte":
			return details.TriggerValue <= t.Static.Value
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (e *Engine) Acknowledge(id, by, note string) (*Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	alert, ok := e.active[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	if alert.Status != StatusActive {
		return nil, fmt.Errorf("%w: %s -> acknowledged", ErrInvalidTransition, alert.Status)
	}
	alert.Status = StatusAcknowledged
	alert.Acknowledgment = &Acknowledgment{By: by, At: e.now(), Note: note}
	snapshot := *alert
	return &snapshot, nil
}

func (e *Engine) Resolve(id, by, note string) (*Alert, error) {
	e.mu.Lock()
	alert, ok := e.active[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrAlertNotFound
	}
	switch alert.Status {
	case StatusActive, StatusAcknowledged, StatusEscalated:
	default:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> resolved", ErrInvalidTransition, alert.Status)
	}
	alert.Status = StatusResolved
	alert.Resolution = &Resolution{By: by, At: e.now(), Note: note}
	delete(e.active, id)
	e.history = append(e.history, alert)
	e.metrics.Resolved++
	snapshot := *alert
	e.mu.Unlock()

	e.publish(bus.SubjectAlertResolved, snapshot)
	e.broadcast("alert:resolved", snapshot)
	return &snapshot, nil
}

// CheckEscalations escalates unacknowledged alerts whose first stage delay
// has elapsed. Each alert escalates at most once, so repeated ticks are
// idempotent. Only stage 0 fires in this design (see DESIGN.md).
func (e *Engine) CheckEscalations(now time.Time) {
	type pending struct {
		alert Alert
		cfg   AlertConfiguration
		stage EscalationStage
	}
	var due []pending

	e.mu.Lock()
	for _, alert := range e.active {
		if alert.Status != StatusActive || len(alert.Escalations) > 0 {
			continue
		}
		cfg, ok := e.configs[alert.ConfigurationID]
		if !ok || !cfg.Escalation.Enabled || len(cfg.Escalation.Stages) == 0 {
			continue
		}
		stage := cfg.Escalation.Stages[0]
		if now.Sub(alert.CreatedAt) < time.Duration(stage.DelayMinutes)*time.Minute {
			continue
		}
		alert.Status = StatusEscalated
		alert.Escalations = append(alert.Escalations, EscalationRecord{Stage: 0, EscalatedAt: now})
		e.metrics.Escalated++
		due = append(due, pending{alert: *alert, cfg: cfg, stage: stage})
	}
	e.mu.Unlock()

	for _, p := range due {
		e.logger.Warn("alert escalated",
			slog.String("alert_id", p.alert.ID),
			slog.String("type", string(p.alert.Type)))
		e.publish(bus.SubjectAlertEscalated, p.alert)
		e.broadcast("alert:escalated", p.alert)
		e.dispatchNotifications(p.alert.ID, stageChannels(p.cfg, p.stage))
	}
}

func stageChannels(cfg AlertConfiguration, stage EscalationStage) []ChannelConfig {
	if len(stage.Channels) == 0 {
		return cfg.Channels
	}
	var out []ChannelConfig
	for _, name := range stage.Channels {
		for _, ch := range cfg.Channels {
			if ch.Type == name {
				out = append(out, ch)
			}
		}
	}
	return out
}

// CleanupHistory prunes resolved alerts older than the retention window.
func (e *Engine) CleanupHistory(now time.Time) {
	cutoff := now.Add(-e.opts.HistoryRetention)
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.history[:0]
	for _, alert := range e.history {
		if alert.Resolution != nil && alert.Resolution.At.Before(cutoff) {
			continue
		}
		kept = append(kept, alert)
	}
	e.history = kept
}

type Filter struct {
	Type       AlertType
	Severity   string
	PipelineID string
	Status     AlertStatus
}

func (f Filter) matches(a *Alert) bool {
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Severity != "" && a.Details.Severity != f.Severity {
		return false
	}
	if f.PipelineID != "" && a.Context.PipelineID != f.PipelineID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

func (e *Engine) ActiveAlerts(f Filter) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := []Alert{}
	for _, alert := range e.active {
		if f.matches(alert) {
			out = append(out, *alert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (e *Engine) History(f Filter) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := []Alert{}
	for _, alert := range e.history {
		if f.matches(alert) {
			out = append(out, *alert)
		}
	}
	return out
}

func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.metrics
	m.Active = len(e.active)
	m.BySeverity = map[string]int{}
	for k, v := range e.metrics.BySeverity {
		m.BySeverity[k] = v
	}
	return m
}

func (e *Engine) publish(subject string, alert Alert) {
	if e.opts.Events == nil {
		return
	}
	if err := e.opts.Events.Publish(subject, alert); err != nil {
		e.logger.Error("event publish failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) broadcast(event string, alert Alert) {
	if e.opts.Updates == nil {
		return
	}
	e.opts.Updates.BroadcastAlert(event, alert)
}
