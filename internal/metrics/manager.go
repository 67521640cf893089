package metrics

import (
	"runtime"
	"time"
)

// Manager bundles the registered collectors with the process-level gauges
// that are refreshed on a timer instead of at call sites.
type Manager struct {
	prom  *PrometheusMetrics
	start time.Time
}

// NewManager registers the collectors and captures the process start time.
func NewManager() *Manager {
	return &Manager{
		prom:  NewPrometheusMetrics(),
		start: time.Now(),
	}
}

// GetPrometheusMetrics exposes the collectors for call-site recording.
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prom
}

// UpdateSystemMetrics refreshes uptime, heap usage and goroutine count.
// Called periodically from the application's metrics loop.
func (m *Manager) UpdateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.prom.UpdateMemoryUsage(ms.HeapAlloc)
	m.prom.UpdateGoroutineCount(runtime.NumGoroutine())
	m.prom.UpdateApplicationUptime(m.start)
}
