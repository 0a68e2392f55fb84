package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"pipewatch-backend/internal/alerting"
	"pipewatch-backend/internal/analysis"
	"pipewatch-backend/internal/bus"
	"pipewatch-backend/internal/source"
)

// AlertSink receives findings from job runs. *alerting.Engine satisfies it.
type AlertSink interface {
	TriggerAlert(ctx context.Context, alertType alerting.AlertType, details alerting.Details, actx alerting.Context) (*alerting.Alert, error)
}

type EventPublisher interface {
	Publish(subject string, payload any) error
}

type Options struct {
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	HistoryRetention  time.Duration
	MaxHistory        int
	Events            EventPublisher
	// Batch, when set, bounds multi-pipeline anomaly sweeps with its counting
	// semaphore and memory backpressure.
	Batch *analysis.BatchRunner
}

type managedJob struct {
	cfg      JobConfig
	schedule cron.Schedule
	stop     chan struct{}
}

type trackedExecution struct {
	exec   JobExecution
	cancel context.CancelFunc
}

// Registry owns job configurations, fires them from per-job timer loops, and
// enforces the concurrency cap on executions. The registry computes next fire
// times itself via cron.Schedule.Next; the cron package only parses.
type Registry struct {
	mu      sync.Mutex
	logger  *slog.Logger
	jobs    map[string]*managedJob
	active  map[string]*trackedExecution
	history []JobExecution
	metrics Metrics
	opts    Options
	source  source.Source
	alerts  AlertSink
	ctx     context.Context
	cancel  context.CancelFunc
	now     func() time.Time
	running sync.WaitGroup
}

func NewRegistry(logger *slog.Logger, src source.Source, alerts AlertSink, opts Options) *Registry {
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = 4
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	if opts.HistoryRetention <= 0 {
		opts.HistoryRetention = 7 * 24 * time.Hour
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		logger: logger,
		jobs:   map[string]*managedJob{},
		active: map[string]*trackedExecution{},
		opts:   opts,
		source: src,
		alerts: alerts,
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// CreateJob validates the cron expression before anything is stored.
func (r *Registry) CreateJob(cfg JobConfig) (JobConfig, error) {
	if !validJobType(cfg.Type) {
		return JobConfig{}, fmt.Errorf("%w: type %q", ErrUnknownJobType, cfg.Type)
	}
	if cfg.Parameters.Metric == "" {
		return JobConfig{}, fmt.Errorf("%w: metric required", ErrInvalidJob)
	}
	schedule, err := cron.ParseStandard(cfg.CronSchedule)
	if err != nil {
		return JobConfig{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.Metadata.CreatedAt = r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[cfg.ID]; ok {
		return JobConfig{}, ErrJobExists
	}
	job := &managedJob{cfg: cfg, schedule: schedule, stop: make(chan struct{})}
	r.jobs[cfg.ID] = job
	if cfg.Enabled {
		go r.runTimer(job)
	}
	return cfg, nil
}

// runTimer computes the next fire time explicitly and sleeps until it.
func (r *Registry) runTimer(job *managedJob) {
	for {
		next := job.schedule.Next(r.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			go func() {
				if _, err := r.ExecuteJob(r.ctx, job.cfg.ID); err != nil {
					r.logger.Warn("scheduled execution skipped",
						slog.String("job_id", job.cfg.ID),
						slog.String("error", err.Error()))
				}
			}()
		case <-job.stop:
			timer.Stop()
			return
		case <-r.ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (r *Registry) EnableJob(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.cfg.Enabled {
		return nil
	}
	job.cfg.Enabled = true
	job.stop = make(chan struct{})
	go r.runTimer(job)
	return nil
}

func (r *Registry) DisableJob(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !job.cfg.Enabled {
		return nil
	}
	job.cfg.Enabled = false
	close(job.stop)
	return nil
}

// DeleteJob unregisters the timer along with the configuration. Execution
// history survives deletion.
func (r *Registry) DeleteJob(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.cfg.Enabled {
		close(job.stop)
	}
	delete(r.jobs, id)
	return nil
}

// ExecuteJob runs the job now, blocking until it finishes, fails or times
// out. Excess concurrent calls fail fast with ErrConcurrencyLimit; the
// registry never queues them.
func (r *Registry) ExecuteJob(ctx context.Context, jobID string) (JobExecution, error) {
	r.mu.Lock()
	job, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return JobExecution{}, ErrJobNotFound
	}
	if !job.cfg.Enabled {
		r.mu.Unlock()
		return JobExecution{}, ErrJobDisabled
	}
	if len(r.active) >= r.opts.MaxConcurrentJobs {
		r.mu.Unlock()
		return JobExecution{}, ErrConcurrencyLimit
	}
	execCtx, cancel := context.WithTimeout(ctx, r.opts.JobTimeout)
	tracked := &trackedExecution{
		exec: JobExecution{
			ID:        uuid.NewString(),
			JobID:     jobID,
			StartTime: r.now(),
			Status:    ExecutionRunning,
		},
		cancel: cancel,
	}
	r.active[tracked.exec.ID] = tracked
	r.metrics.TotalExecutions++
	cfg := job.cfg
	r.mu.Unlock()

	r.running.Add(1)
	defer r.running.Done()
	defer cancel()

	type outcome struct {
		alerts int
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		alerts, err := r.runJobLogic(execCtx, cfg)
		done <- outcome{alerts: alerts, err: err}
	}()

	var result outcome
	timedOut := false
	select {
	case result = <-done:
	case <-execCtx.Done():
		// no partial result is retained on timeout
		timedOut = true
		result = outcome{err: fmt.Errorf("%w after %s: %v", ErrTimeout, r.opts.JobTimeout, execCtx.Err())}
	}

	return r.finishExecution(tracked.exec.ID, jobID, result.alerts, result.err, timedOut), nil
}

func (r *Registry) finishExecution(execID, jobID string, alerts int, runErr error, timedOut bool) JobExecution {
	r.mu.Lock()
	tracked, ok := r.active[execID]
	if !ok {
		// cancelled while running; the cancellation already recorded history
		r.mu.Unlock()
		for _, exec := range r.History(jobID) {
			if exec.ID == execID {
				return exec
			}
		}
		return JobExecution{ID: execID, JobID: jobID, Status: ExecutionCancelled}
	}
	end := r.now()
	tracked.exec.EndTime = &end
	tracked.exec.Duration = end.Sub(tracked.exec.StartTime)
	tracked.exec.AlertsGenerated = alerts
	if runErr != nil {
		tracked.exec.Status = ExecutionFailed
		tracked.exec.Error = runErr.Error()
		r.metrics.Failed++
		if timedOut {
			r.metrics.Timeouts++
		}
	} else {
		tracked.exec.Status = ExecutionCompleted
		r.metrics.Completed++
		r.metrics.AlertsGenerated += alerts
	}
	delete(r.active, execID)
	r.appendHistoryLocked(tracked.exec)

	if job, ok := r.jobs[jobID]; ok {
		job.cfg.Metadata.LastRun = &end
		job.cfg.Metadata.RunCount++
		if runErr != nil {
			job.cfg.Metadata.ErrorCount++
			job.cfg.Metadata.LastResult = "error: " + runErr.Error()
		} else {
			job.cfg.Metadata.LastResult = string(ExecutionCompleted)
		}
	}
	exec := tracked.exec
	r.mu.Unlock()

	r.publishOutcome(exec)
	return exec
}

func (r *Registry) publishOutcome(exec JobExecution) {
	if r.opts.Events == nil {
		return
	}
	subject := bus.SubjectJobCompleted
	if exec.Status == ExecutionFailed {
		subject = bus.SubjectJobFailed
	}
	if err := r.opts.Events.Publish(subject, exec); err != nil {
		r.logger.Error("event publish failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

// CancelJob marks the tracked execution cancelled and moves it to history.
// The execution context is signalled too, but bookkeeping never waits for the
// in-flight work to notice.
func (r *Registry) CancelJob(executionID string) (JobExecution, error) {
	r.mu.Lock()
	tracked, ok := r.active[executionID]
	if !ok {
		r.mu.Unlock()
		return JobExecution{}, ErrExecutionNotFound
	}
	end := r.now()
	tracked.exec.EndTime = &end
	tracked.exec.Duration = end.Sub(tracked.exec.StartTime)
	tracked.exec.Status = ExecutionCancelled
	delete(r.active, executionID)
	r.appendHistoryLocked(tracked.exec)
	r.metrics.Cancelled++
	exec := tracked.exec
	cancel := tracked.cancel
	r.mu.Unlock()

	cancel()
	return exec, nil
}

func (r *Registry) appendHistoryLocked(exec JobExecution) {
	cutoff := r.now().Add(-r.opts.HistoryRetention)
	kept := r.history[:0]
	for _, h := range r.history {
		if h.StartTime.Before(cutoff) {
			continue
		}
		kept = append(kept, h)
	}
	r.history = append(kept, exec)
	if len(r.history) > r.opts.MaxHistory {
		r.history = r.history[len(r.history)-r.opts.MaxHistory:]
	}
}

func (r *Registry) JobStatus(id string) (JobConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return JobConfig{}, ErrJobNotFound
	}
	return job.cfg, nil
}

func (r *Registry) Jobs() []JobConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobConfig, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.CreatedAt.Before(out[j].Metadata.CreatedAt) })
	return out
}

// History returns executions newest first, optionally filtered by job.
func (r *Registry) History(jobID string) []JobExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []JobExecution{}
	for i := len(r.history) - 1; i >= 0; i-- {
		if jobID != "" && r.history[i].JobID != jobID {
			continue
		}
		out = append(out, r.history[i])
	}
	return out
}

func (r *Registry) RunningExecutions() []JobExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []JobExecution{}
	for _, tracked := range r.active {
		out = append(out, tracked.exec)
	}
	return out
}

func (r *Registry) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.metrics
	m.Jobs = len(r.jobs)
	m.Running = len(r.active)
	return m
}

// Shutdown stops all timers, waits for running executions up to the ctx
// deadline, then force-clears whatever is still outstanding.
func (r *Registry) Shutdown(ctx context.Context) {
	r.cancel()
	r.mu.Lock()
	for _, job := range r.jobs {
		if job.cfg.Enabled {
			job.cfg.Enabled = false
			close(job.stop)
		}
	}
	r.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		r.running.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}

	r.mu.Lock()
	for id, tracked := range r.active {
		end := r.now()
		tracked.exec.EndTime = &end
		tracked.exec.Status = ExecutionCancelled
		r.appendHistoryLocked(tracked.exec)
		r.metrics.Cancelled++
		delete(r.active, id)
		tracked.cancel()
	}
	r.mu.Unlock()
}
