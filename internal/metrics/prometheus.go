package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the event indexer
type PrometheusMetrics struct {
	// Ingestion metrics
	EventsIndexedTotal  *prometheus.CounterVec
	ChunksFetchedTotal  *prometheus.CounterVec
	ChunkFetchDuration  *prometheus.HistogramVec
	IndexingRunsTotal   *prometheus.CounterVec
	IndexingRunDuration *prometheus.HistogramVec
	RunState            *prometheus.GaugeVec

	// Connection and error metrics
	ConnectionErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal      *prometheus.CounterVec
	RPCRequestDuration    *prometheus.HistogramVec

	// Chain metrics
	LastIndexedBlock *prometheus.GaugeVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec
	DuplicateEventsSkipped    prometheus.Counter

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
	ContractsIndexed  prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		EventsIndexedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_events_indexed_total",
				Help: "Total number of events persisted by the ingestion pipeline",
			},
			[]string{"contract_address", "event_name", "network"},
		),

		ChunksFetchedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_chunks_fetched_total",
				Help: "Total number of block-range chunks queried upstream",
			},
			[]string{"network", "status"},
		),

		ChunkFetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_chunk_fetch_duration_seconds",
				Help:    "Duration of individual chunk log queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"network"},
		),

		IndexingRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_runs_total",
				Help: "Total number of indexing runs",
			},
			[]string{"network", "status"},
		),

		IndexingRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_run_duration_seconds",
				Help:    "End-to-end duration of indexing runs",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"network"},
		),

		RunState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "indexer_run_state",
				Help: "Current run state (0=idle, 1=fetching, 2=aggregating, 3=persisting)",
			},
			[]string{"network"},
		),

		ConnectionErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_connection_errors_total",
				Help: "Total number of connection errors to RPC nodes",
			},
			[]string{"network", "error_type"},
		),

		RPCRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_rpc_requests_total",
				Help: "Total number of RPC requests made to upstream nodes",
			},
			[]string{"network", "method", "status"},
		),

		RPCRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_rpc_request_duration_seconds",
				Help:    "Duration of RPC requests to upstream nodes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"network", "method"},
		),

		LastIndexedBlock: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "indexer_last_indexed_block",
				Help: "Checkpointed block height per contract and network",
			},
			[]string{"contract_address", "network"},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		DuplicateEventsSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_duplicate_events_skipped_total",
				Help: "Events skipped because their (tx_hash, log_index) key already existed",
			},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "indexer_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_goroutines",
				Help: "Number of running goroutines",
			},
		),

		ContractsIndexed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_contracts_indexed",
				Help: "Number of contracts with indexed history",
			},
		),
	}
}

// RecordEventIndexed records a persisted event
func (m *PrometheusMetrics) RecordEventIndexed(contractAddress, eventName, network string) {
	m.EventsIndexedTotal.WithLabelValues(contractAddress, eventName, network).Inc()
}

// RecordChunkFetch records the outcome of one chunk query
func (m *PrometheusMetrics) RecordChunkFetch(network, status string, duration time.Duration) {
	m.ChunksFetchedTotal.WithLabelValues(network, status).Inc()
	m.ChunkFetchDuration.WithLabelValues(network).Observe(duration.Seconds())
}

// RecordIndexingRun records a completed indexing run
func (m *PrometheusMetrics) RecordIndexingRun(network, status string, duration time.Duration) {
	m.IndexingRunsTotal.WithLabelValues(network, status).Inc()
	m.IndexingRunDuration.WithLabelValues(network).Observe(duration.Seconds())
}

// UpdateRunState updates the run state gauge
func (m *PrometheusMetrics) UpdateRunState(network string, state int) {
	m.RunState.WithLabelValues(network).Set(float64(state))
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(network, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(network, errorType).Inc()
}

// RecordRPCRequest records an RPC request
func (m *PrometheusMetrics) RecordRPCRequest(network, method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(network, method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(network, method).Observe(duration.Seconds())
}

// UpdateLastIndexedBlock updates the checkpoint gauge
func (m *PrometheusMetrics) UpdateLastIndexedBlock(contractAddress, network string, blockNumber uint64) {
	m.LastIndexedBlock.WithLabelValues(contractAddress, network).Set(float64(blockNumber))
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDuplicateSkipped records an event skipped by the uniqueness constraint
func (m *PrometheusMetrics) RecordDuplicateSkipped() {
	m.DuplicateEventsSkipped.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}

// UpdateContractsIndexed updates the number of contracts with indexed history
func (m *PrometheusMetrics) UpdateContractsIndexed(count int) {
	m.ContractsIndexed.Set(float64(count))
}
