package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pipewatch-backend/internal/alerting"
	"pipewatch-backend/internal/analysis"
	"pipewatch-backend/internal/api"
	"pipewatch-backend/internal/bus"
	"pipewatch-backend/internal/config"
	"pipewatch-backend/internal/hub"
	"pipewatch-backend/internal/scheduler"
	"pipewatch-backend/internal/source"
	"pipewatch-backend/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg, err := config.Load(getenv("CONFIG_PATH", ""))
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	port := getenv("PORT", cfg.API.Port)
	dsn := getenv("DATABASE_URL", cfg.Database.DSN)
	natsURL := getenv("NATS_URL", cfg.NATS.URL)
	ctx := context.Background()

	var events multiPublisher
	var dataSource source.Source = source.NewMemorySource()

	if dsn != "" {
		store, err := storage.NewStore(ctx, dsn)
		if err != nil {
			logger.Error("failed to connect to db", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer store.Close()
		if cfg.Database.Migrate {
			if err := store.Migrate(ctx); err != nil {
				logger.Error("migration failed", slog.String("error", err.Error()))
				os.Exit(1)
			}
		}
		repo := storage.NewRepository(store)
		events = append(events, storage.NewEventRecorder(repo, logger))
		if cfg.Source.Type == "postgres" {
			dataSource = source.NewPostgresSource(store.Pool)
		}
	} else if cfg.Source.Type == "postgres" {
		logger.Error("postgres source requires DATABASE_URL")
		os.Exit(1)
	}

	var publisher *bus.Publisher
	if natsURL != "" {
		publisher, err = bus.NewPublisher(natsURL)
		if err != nil {
			logger.Error("failed to connect to nats", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer publisher.Close()
		events = append(events, publisher)
	}

	wsHub := hub.New(logger, hub.Options{
		MaxConnections:    cfg.Hub.MaxConnections,
		HeartbeatInterval: cfg.Hub.HeartbeatInterval(),
		ClientTimeout:     cfg.Hub.ClientTimeout(),
		SendBuffer:        cfg.Hub.SendBuffer,
		Analyze:           analyzeFunc(dataSource, cfg.Analysis.DefaultPeriodDays),
	})
	wsHub.Start()
	defer wsHub.Stop()

	alerts := alerting.NewEngine(logger, alerting.Options{
		EscalationInterval: cfg.Alerting.EscalationInterval(),
		CleanupInterval:    cfg.Alerting.CleanupInterval(),
		HistoryRetention:   cfg.Alerting.HistoryRetention(),
		Events:             events,
		Updates:            wsHub,
	})
	alerts.RegisterChannel("log", &alerting.LogChannel{Logger: logger})
	alerts.RegisterChannel("webhook", alerting.NewWebhookChannel())
	if publisher != nil {
		alerts.RegisterChannel("nats", &alerting.NATSChannel{Publisher: publisher})
	}
	alerts.Start()
	defer alerts.Stop()

	batch := analysis.NewBatchRunner(analysis.BatchOptions{
		MaxParallel:      cfg.Analysis.MaxConcurrent,
		MemoryLimitBytes: uint64(cfg.Analysis.MemoryLimitMB) * 1024 * 1024,
	})

	registry := scheduler.NewRegistry(logger, dataSource, alerts, scheduler.Options{
		MaxConcurrentJobs: getenvInt("MAX_CONCURRENT_JOBS", cfg.Scheduler.MaxConcurrentJobs),
		JobTimeout:        cfg.Scheduler.JobTimeout(),
		HistoryRetention:  cfg.Scheduler.HistoryRetention(),
		MaxHistory:        cfg.Scheduler.MaxHistory,
		Events:            events,
		Batch:             batch,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		registry.Shutdown(ctx)
	}()

	handler := &api.Handler{Scheduler: registry, Alerts: alerts, Hub: wsHub}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	handler.RegisterRoutes(r)

	// no global write timeout: the websocket route holds connections open
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("monitor listening", slog.String("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("error", err.Error()))
	}
}

// multiPublisher fans events out to every configured sink. A sink failure is
// reported but does not stop the others.
type multiPublisher []interface {
	Publish(subject string, payload any) error
}

func (m multiPublisher) Publish(subject string, payload any) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(subject, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func analyzeFunc(src source.Source, periodDays int) hub.AnalyzeFunc {
	return func(ctx context.Context, pipelineID, metric string) (any, error) {
		points, err := src.FetchDataPoints(ctx, pipelineID, metric, periodDays)
		if err != nil {
			return nil, err
		}
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		summary, err := analysis.Summarize(values)
		if err != nil {
			return nil, err
		}
		report, err := analysis.DetectAnomalies(points, analysis.DefaultAnomalyOptions())
		if err != nil {
			return nil, err
		}
		return map[string]any{"summary": summary, "anomalies": report}, nil
	}
}

func getenv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getenvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(val); err == nil {
		return parsed
	}
	return fallback
}
