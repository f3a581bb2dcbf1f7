package service

import (
	"sort"
	"sync"
	"time"
)

// QueryRecord captures one retrieval batch for the metrics surface.
type QueryRecord struct {
	Timestamp         time.Time `json:"timestamp"`
	LatencyMs         float64   `json:"latency_ms"`
	SubQueries        int       `json:"sub_queries"`
	DegradedLookups   int       `json:"degraded_lookups"`
	ConflictsDetected int       `json:"conflicts_detected"`
	DeepAccessed      bool      `json:"deep_accessed"`
}

// QuerySummary aggregates recorded queries.
type QuerySummary struct {
	TotalQueries    int     `json:"total_queries"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	P50LatencyMs    float64 `json:"p50_latency_ms"`
	P95LatencyMs    float64 `json:"p95_latency_ms"`
	P99LatencyMs    float64 `json:"p99_latency_ms"`
	DegradedLookups int     `json:"degraded_lookups"`
	DeepAccessRate  float64 `json:"deep_access_rate"`
}

// QueryMetrics is an in-process tracker for query latency percentiles and
// tier access patterns.
type QueryMetrics struct {
	mu      sync.Mutex
	records []QueryRecord
}

func NewQueryMetrics() *QueryMetrics {
	return &QueryMetrics{}
}

func (m *QueryMetrics) Record(rec QueryRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
}

func (m *QueryMetrics) Summary() QuerySummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := QuerySummary{TotalQueries: len(m.records)}
	if len(m.records) == 0 {
		return summary
	}

	latencies := make([]float64, 0, len(m.records))
	var total float64
	deep := 0
	for _, rec := range m.records {
		latencies = append(latencies, rec.LatencyMs)
		total += rec.LatencyMs
		summary.DegradedLookups += rec.DegradedLookups
		if rec.DeepAccessed {
			deep++
		}
	}
	sort.Float64s(latencies)

	summary.AvgLatencyMs = total / float64(len(latencies))
	summary.P50LatencyMs = percentile(latencies, 0.50)
	summary.P95LatencyMs = percentile(latencies, 0.95)
	summary.P99LatencyMs = percentile(latencies, 0.99)
	summary.DeepAccessRate = float64(deep) / float64(len(m.records))
	return summary
}

// percentile over a sorted slice, nearest-rank.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
