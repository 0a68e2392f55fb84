package source

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"pipewatch-backend/internal/analysis"
)

var ErrUnknownSeries = errors.New("unknown series")

// Source yields metric observations for a pipeline, ascending by timestamp.
type Source interface {
	FetchDataPoints(ctx context.Context, pipelineID, metric string, periodDays int) ([]analysis.DataPoint, error)
}

// MemorySource keeps series in memory, keyed by pipeline and metric. Used in
// tests and for single-process deployments without a database.
type MemorySource struct {
	mu     sync.Mutex
	series map[string][]analysis.DataPoint
}

func NewMemorySource() *MemorySource {
	return &MemorySource{series: map[string][]analysis.DataPoint{}}
}

func seriesKey(pipelineID, metric string) string {
	return pipelineID + "|" + metric
}

func (s *MemorySource) Add(pipelineID, metric string, points ...analysis.DataPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := seriesKey(pipelineID, metric)
	s.series[key] = append(s.series[key], points...)
	sort.Slice(s.series[key], func(i, j int) bool {
		return s.series[key][i].Timestamp.Before(s.series[key][j].Timestamp)
	})
}

func (s *MemorySource) FetchDataPoints(ctx context.Context, pipelineID, metric string, periodDays int) ([]analysis.DataPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	points, ok := s.series[seriesKey(pipelineID, metric)]
	if !ok {
		return nil, ErrUnknownSeries
	}
	cutoff := time.Now().AddDate(0, 0, -periodDays)
	results := make([]analysis.DataPoint, 0, len(points))
	for _, p := range points {
		if periodDays > 0 && p.Timestamp.Before(cutoff) {
			continue
		}
		results = append(results, p)
	}
	return results, nil
}
