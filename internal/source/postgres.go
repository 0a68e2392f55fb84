package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pipewatch-backend/internal/analysis"
)

// PostgresSource reads metric points from the metric_points table.
type PostgresSource struct {
	Pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{Pool: pool}
}

func (s *PostgresSource) FetchDataPoints(ctx context.Context, pipelineID, metric string, periodDays int) ([]analysis.DataPoint, error) {
	since := time.Now().AddDate(0, 0, -periodDays)
	rows, err := s.Pool.Query(ctx, `
		SELECT ts_utc, value, metadata
		FROM metric_points
		WHERE pipeline_id=$1 AND metric=$2 AND ts_utc >= $3
		ORDER BY ts_utc ASC`, pipelineID, metric, since)
	if err != nil {
		return nil, fmt.Errorf("fetch points: %w", err)
	}
	defer rows.Close()
	points := []analysis.DataPoint{}
	for rows.Next() {
		var (
			ts       time.Time
			value    float64
			metadata []byte
		)
		if err := rows.Scan(&ts, &value, &metadata); err != nil {
			return nil, err
		}
		point := analysis.DataPoint{Timestamp: ts, Value: value}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &point.Metadata)
		}
		points = append(points, point)
	}
	return points, rows.Err()
}
