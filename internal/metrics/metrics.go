package metrics

import (
	"sync"
	"time"
)

// Metrics accumulates process-wide counters for the status command and
// the monitoring endpoints.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	ItemsCollected    int64
	ItemsScored       int64
	SourceFailures    int64
	EmbeddingFailures int64
	RunsCompleted     int64

	// Timings
	LastRunDuration    time.Duration
	TotalRunDuration   time.Duration
	AverageRunDuration time.Duration

	// Status
	LastRunTime    time.Time
	LastErrorTime  time.Time
	LastError      string
	LastFailedSrcs int64
	IsHealthy      bool
}

var global = &Metrics{IsHealthy: true}

// Get returns the process-wide metrics instance.
func Get() *Metrics { return global }

func (m *Metrics) RecordRun(collected, scored, failedSources int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsCollected += int64(collected)
	m.ItemsScored += int64(scored)
	m.LastFailedSrcs = int64(failedSources)
	m.RunsCompleted++
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) RecordRunDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunDuration = d
	m.TotalRunDuration += d
	if m.RunsCompleted > 0 {
		m.AverageRunDuration = m.TotalRunDuration / time.Duration(m.RunsCompleted)
	}
}

func (m *Metrics) RecordSourceFailure(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SourceFailures++
}

func (m *Metrics) RecordEmbeddingFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbeddingFailures++
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"items_collected":         m.ItemsCollected,
		"items_scored":            m.ItemsScored,
		"source_failures":         m.SourceFailures,
		"embedding_failures":      m.EmbeddingFailures,
		"runs_completed":          m.RunsCompleted,
		"last_failed_sources":     m.LastFailedSrcs,
		"last_run_duration_ms":    m.LastRunDuration.Milliseconds(),
		"average_run_duration_ms": m.AverageRunDuration.Milliseconds(),
		"last_run_time":           m.LastRunTime.Format(time.RFC3339),
		"last_error_time":         m.LastErrorTime.Format(time.RFC3339),
		"last_error":              m.LastError,
		"is_healthy":              m.IsHealthy,
	}
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}
