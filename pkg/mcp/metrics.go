package mcp

import (
	"sync"
	"time"
)

// Metrics aggregates per-connection request statistics.
type Metrics struct {
	mu            sync.Mutex
	totalRequests int64
	successCount  int64
	failureCount  int64
	avgLatencyMs  float64
	lastRequestAt time.Time
}

// MetricsSnapshot is a copy of the counters at one point in time.
type MetricsSnapshot struct {
	TotalRequests int64     `json:"totalRequests"`
	SuccessCount  int64     `json:"successCount"`
	FailureCount  int64     `json:"failureCount"`
	AvgLatencyMs  float64   `json:"avgLatencyMs"`
	LastRequestAt time.Time `json:"lastRequestAt"`
}

// Record folds one request outcome into the rolling averages.
func (m *Metrics) Record(latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	if err != nil {
		m.failureCount++
	} else {
		m.successCount++
	}
	// Incremental rolling mean over all requests.
	lat := float64(latency.Milliseconds())
	m.avgLatencyMs += (lat - m.avgLatencyMs) / float64(m.totalRequests)
	m.lastRequestAt = time.Now()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		TotalRequests: m.totalRequests,
		SuccessCount:  m.successCount,
		FailureCount:  m.failureCount,
		AvgLatencyMs:  m.avgLatencyMs,
		LastRequestAt: m.lastRequestAt,
	}
}
