package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	Pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// Migrate creates the tables this service owns.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS metric_points (
			id BIGSERIAL PRIMARY KEY,
			pipeline_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			ts_utc TIMESTAMPTZ NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			metadata JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metric_points_series
			ON metric_points (pipeline_id, metric, ts_utc)`,
		`CREATE TABLE IF NOT EXISTS alert_events (
			id BIGSERIAL PRIMARY KEY,
			alert_id TEXT NOT NULL,
			configuration_id TEXT,
			event TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			severity TEXT,
			pipeline_id TEXT,
			environment TEXT,
			metric TEXT,
			ts_utc TIMESTAMPTZ NOT NULL,
			payload JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS job_executions (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			duration_ms BIGINT,
			alerts_generated INT NOT NULL DEFAULT 0,
			error TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
