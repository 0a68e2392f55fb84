package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"pipewatch-backend/internal/alerting"
	"pipewatch-backend/internal/analysis"
	"pipewatch-backend/internal/scheduler"
	"pipewatch-backend/internal/source"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T) (*httptest.Server, *scheduler.Registry, *alerting.Engine) {
	t.Helper()
	src := source.NewMemorySource()
	start := time.Now().Add(-10 * time.Hour)
	values := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 1000}
	for i, v := range values {
		src.Add("P1", "duration_minutes", analysis.DataPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: v})
	}
	alerts := alerting.NewEngine(testLogger(), alerting.Options{})
	reg := scheduler.NewRegistry(testLogger(), src, alerts, scheduler.Options{})
	t.Cleanup(alerts.Stop)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		reg.Shutdown(ctx)
	})

	router := chi.NewRouter()
	handler := &Handler{Scheduler: reg, Alerts: alerts}
	handler.RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, reg, alerts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func validJob() map[string]any {
	return map[string]any{
		"name":         "nightly anomaly scan",
		"type":         "anomaly_detection",
		"cronSchedule": "0 3 * * *",
		"enabled":      true,
		"parameters": map[string]any{
			"pipelines":  []string{"P1"},
			"metric":     "duration_minutes",
			"periodDays": 7,
		},
	}
}

func TestHealthz(t *testing.T) {
	server, _, _ := newServer(t)
	resp := doJSON(t, http.MethodGet, server.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health payload: %v", body)
	}
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	server, _, _ := newServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/jobs", validJob())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.StatusCode)
	}
	var created scheduler.JobConfig
	decodeBody(t, resp, &created)
	if created.ID == "" {
		t.Fatalf("created job must carry an id")
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/jobs/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, server.URL+"/jobs/"+created.ID+"/execute", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	var exec scheduler.JobExecution
	decodeBody(t, resp, &exec)
	if exec.Status != scheduler.ExecutionCompleted {
		t.Fatalf("expected completed execution got %s: %s", exec.Status, exec.Error)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/jobs/"+created.ID+"/history", nil)
	var history []scheduler.JobExecution
	decodeBody(t, resp, &history)
	if len(history) != 1 {
		t.Fatalf("expected one history entry got %d", len(history))
	}

	resp = doJSON(t, http.MethodDelete, server.URL+"/jobs/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/jobs/"+created.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestJobCreateInvalidCron(t *testing.T) {
	server, _, _ := newServer(t)
	job := validJob()
	job["cronSchedule"] = "not a cron"
	resp := doJSON(t, http.MethodPost, server.URL+"/jobs", job)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.StatusCode)
	}
	var body errorResponse
	decodeBody(t, resp, &body)
	if body.Code != "invalid_job" {
		t.Fatalf("unexpected error code %q", body.Code)
	}
}

func TestExecuteDisabledJobConflicts(t *testing.T) {
	server, _, _ := newServer(t)
	job := validJob()
	job["enabled"] = false
	resp := doJSON(t, http.MethodPost, server.URL+"/jobs", job)
	var created scheduler.JobConfig
	decodeBody(t, resp, &created)

	resp = doJSON(t, http.MethodPost, server.URL+"/jobs/"+created.ID+"/execute", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCancelUnknownExecution(t *testing.T) {
	server, _, _ := newServer(t)
	resp := doJSON(t, http.MethodPost, server.URL+"/executions/nope/cancel", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAlertConfigurationValidation(t *testing.T) {
	server, _, _ := newServer(t)
	resp := doJSON(t, http.MethodPost, server.URL+"/alerts/configurations", map[string]any{
		"name": "broken",
		"type": "anomaly",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.StatusCode)
	}
	var body errorResponse
	decodeBody(t, resp, &body)
	if body.Code != "invalid_configuration" {
		t.Fatalf("unexpected error code %q", body.Code)
	}
}

func TestAlertTriggerAndLifecycle(t *testing.T) {
	server, _, _ := newServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/alerts/configurations", map[string]any{
		"name":       "slow pipelines",
		"type":       "anomaly",
		"severity":   "high",
		"enabled":    true,
		"thresholds": map[string]any{"anomaly": map[string]any{"minScore": 2.0}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, server.URL+"/alerts/trigger", map[string]any{
		"type":       "anomaly",
		"pipelineId": "P1",
		"details": map[string]any{
			"title":        "duration spike",
			"metric":       "duration_minutes",
			"triggerValue": 3.4,
		},
	})
	var triggered struct {
		Triggered bool           `json:"triggered"`
		Alert     alerting.Alert `json:"alert"`
	}
	decodeBody(t, resp, &triggered)
	if !triggered.Triggered || triggered.Alert.ID == "" {
		t.Fatalf("expected a triggered alert, got %+v", triggered)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/alerts/"+triggered.Alert.ID+"/acknowledge", map[string]any{"by": "oncall"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, server.URL+"/alerts/"+triggered.Alert.ID+"/acknowledge", map[string]any{"by": "oncall"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on double acknowledge got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, server.URL+"/alerts/"+triggered.Alert.ID+"/resolve", map[string]any{"by": "oncall"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/alerts/active", nil)
	var active []alerting.Alert
	decodeBody(t, resp, &active)
	if len(active) != 0 {
		t.Fatalf("resolved alert must leave the active set, got %d", len(active))
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/alerts/history?pipelineId=P1", nil)
	var history []alerting.Alert
	decodeBody(t, resp, &history)
	if len(history) != 1 {
		t.Fatalf("expected one resolved alert in history got %d", len(history))
	}
}

func TestAlertTriggerWithoutMatchIsSilent(t *testing.T) {
	server, _, _ := newServer(t)
	resp := doJSON(t, http.MethodPost, server.URL+"/alerts/trigger", map[string]any{
		"type":    "anomaly",
		"details": map[string]any{"metric": "duration_minutes", "triggerValue": 9.0},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["triggered"] != false {
		t.Fatalf("expected triggered=false, got %v", body)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	server, _, _ := newServer(t)
	resp := doJSON(t, http.MethodGet, server.URL+"/jobs/metrics", nil)
	var jm scheduler.Metrics
	decodeBody(t, resp, &jm)
	if jm.Jobs != 0 {
		t.Fatalf("fresh registry must report zero jobs, got %d", jm.Jobs)
	}
	resp = doJSON(t, http.MethodGet, server.URL+"/alerts/metrics", nil)
	var am alerting.Metrics
	decodeBody(t, resp, &am)
	if am.TotalTriggered != 0 {
		t.Fatalf("fresh engine must report zero triggered, got %d", am.TotalTriggered)
	}
}
