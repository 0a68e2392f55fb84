package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pipewatch-backend/internal/alerting"
	"pipewatch-backend/internal/hub"
	"pipewatch-backend/internal/scheduler"
)

type Handler struct {
	Scheduler *scheduler.Registry
	Alerts    *alerting.Engine
	Hub       *hub.Hub
}

type errorResponse struct {
	Ok      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type triggerRequest struct {
	Type        alerting.AlertType `json:"type"`
	Details     alerting.Details   `json:"details"`
	PipelineID  string             `json:"pipelineId"`
	Environment string             `json:"environment"`
}

type actorRequest struct {
	By   string `json:"by"`
	Note string `json:"note"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.handleJobCreate)
		r.Get("/", h.handleJobList)
		r.Get("/metrics", h.handleJobMetrics)
		r.Get("/running", h.handleJobRunning)
		r.Get("/history", h.handleJobHistory)
		r.Get("/{id}", h.handleJobStatus)
		r.Delete("/{id}", h.handleJobDelete)
		r.Post("/{id}/enable", h.handleJobEnable)
		r.Post("/{id}/disable", h.handleJobDisable)
		r.Post("/{id}/execute", h.handleJobExecute)
		r.Get("/{id}/history", h.handleJobHistory)
	})
	r.Post("/executions/{id}/cancel", h.handleExecutionCancel)
	r.Route("/alerts", func(r chi.Router) {
		r.Post("/configurations", h.handleAlertConfigCreate)
		r.Get("/configurations", h.handleAlertConfigList)
		r.Post("/trigger", h.handleAlertTrigger)
		r.Get("/active", h.handleAlertActive)
		r.Get("/history", h.handleAlertHistory)
		r.Get("/metrics", h.handleAlertMetrics)
		r.Post("/{id}/acknowledge", h.handleAlertAcknowledge)
		r.Post("/{id}/resolve", h.handleAlertResolve)
	})
	if h.Hub != nil {
		r.Get("/ws", h.Hub.ServeWS)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.Hub != nil {
		clients = h.Hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "wsClients": clients})
}

func (h *Handler) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	var cfg scheduler.JobConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	created, err := h.Scheduler.CreateJob(cfg)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleJobList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Scheduler.Jobs())
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Scheduler.JobStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Scheduler.DeleteJob(chi.URLParam(r, "id")); err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleJobEnable(w http.ResponseWriter, r *http.Request) {
	if err := h.Scheduler.EnableJob(chi.URLParam(r, "id")); err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleJobDisable(w http.ResponseWriter, r *http.Request) {
	if err := h.Scheduler.DisableJob(chi.URLParam(r, "id")); err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleJobExecute(w http.ResponseWriter, r *http.Request) {
	exec, err := h.Scheduler.ExecuteJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *Handler) handleExecutionCancel(w http.ResponseWriter, r *http.Request) {
	exec, err := h.Scheduler.CancelJob(chi.URLParam(r, "id"))
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *Handler) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	history := h.Scheduler.History(jobID)
	if limit := queryInt(r, "limit"); limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleJobRunning(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Scheduler.RunningExecutions())
}

func (h *Handler) handleJobMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Scheduler.Metrics())
}

func (h *Handler) handleAlertConfigCreate(w http.ResponseWriter, r *http.Request) {
	var cfg alerting.AlertConfiguration
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	created, err := h.Alerts.CreateConfiguration(cfg)
	if err != nil {
		writeAlertingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleAlertConfigList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Alerts.Configurations())
}

func (h *Handler) handleAlertTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	alert, err := h.Alerts.TriggerAlert(r.Context(), req.Type, req.Details, alerting.Context{
		PipelineID:  req.PipelineID,
		Environment: req.Environment,
	})
	if err != nil {
		writeAlertingError(w, err)
		return
	}
	if alert == nil {
		writeJSON(w, http.StatusOK, map[string]any{"triggered": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triggered": true, "alert": alert})
}

func (h *Handler) handleAlertAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	alert, err := h.Alerts.Acknowledge(chi.URLParam(r, "id"), req.By, req.Note)
	if err != nil {
		writeAlertingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) handleAlertResolve(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	alert, err := h.Alerts.Resolve(chi.URLParam(r, "id"), req.By, req.Note)
	if err != nil {
		writeAlertingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) handleAlertActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Alerts.ActiveAlerts(alertFilter(r)))
}

func (h *Handler) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Alerts.History(alertFilter(r)))
}

func (h *Handler) handleAlertMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Alerts.Metrics())
}

func alertFilter(r *http.Request) alerting.Filter {
	q := r.URL.Query()
	return alerting.Filter{
		Type:       alerting.AlertType(q.Get("type")),
		Severity:   q.Get("severity"),
		PipelineID: q.Get("pipelineId"),
		Status:     alerting.AlertStatus(q.Get("status")),
	}
}

// writeSchedulerError maps registry sentinels onto HTTP statuses. Unknown
// errors become a 500 without internal detail.
func writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound), errors.Is(err, scheduler.ErrExecutionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduler.ErrInvalidSchedule), errors.Is(err, scheduler.ErrInvalidJob), errors.Is(err, scheduler.ErrUnknownJobType):
		writeError(w, http.StatusBadRequest, "invalid_job", err.Error())
	case errors.Is(err, scheduler.ErrJobExists):
		writeError(w, http.StatusConflict, "job_exists", err.Error())
	case errors.Is(err, scheduler.ErrJobDisabled):
		writeError(w, http.StatusConflict, "job_disabled", err.Error())
	case errors.Is(err, scheduler.ErrConcurrencyLimit):
		writeError(w, http.StatusTooManyRequests, "concurrency_limit", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeAlertingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alerting.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, alerting.ErrInvalidConfiguration):
		writeError(w, http.StatusBadRequest, "invalid_configuration", err.Error())
	case errors.Is(err, alerting.ErrConfigurationExists):
		writeError(w, http.StatusConflict, "configuration_exists", err.Error())
	case errors.Is(err, alerting.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Ok: false, Code: code, Message: message})
}

func queryInt(r *http.Request, key string) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return 0
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return parsed
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
