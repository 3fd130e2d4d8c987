package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the clustering service.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Clustering metrics
	ClusteringRunsTotal     *prometheus.CounterVec
	ClusteringRunDuration   *prometheus.HistogramVec
	ClusteringIterations    *prometheus.HistogramVec
	ClusteringDistortion    *prometheus.GaugeVec
	ClusteringClustersPruned *prometheus.CounterVec

	// Index metrics
	IndexBuildDuration      prometheus.Histogram
	IndexQueryDuration      prometheus.Histogram
	IndexCandidatesReturned prometheus.Histogram

	// DBSCAN metrics
	DBSCANCorePoints  *prometheus.GaugeVec
	DBSCANNoisePoints *prometheus.GaugeVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheSize   prometheus.Gauge

	// Tenant metrics
	TenantsTotal     prometheus.Gauge
	TenantQuotaUsage *prometheus.GaugeVec

	// System metrics
	GoroutinesCount prometheus.Gauge
	MemoryUsage     prometheus.Gauge
	CPUUsage        prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmvector_requests_total",
				Help: "Total number of requests by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kmvector_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmvector_request_errors_total",
				Help: "Total number of request errors by method and error type",
			},
			[]string{"method", "error_type"},
		),

		ClusteringRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmvector_clustering_runs_total",
				Help: "Total number of Cluster() calls by namespace and geometry",
			},
			[]string{"namespace", "geometry"},
		),
		ClusteringRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kmvector_clustering_run_duration_seconds",
				Help:    "Cluster() wall-clock duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"namespace"},
		),
		ClusteringIterations: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kmvector_clustering_iterations",
				Help:    "Number of Lloyd iterations per clustering run",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
			},
			[]string{"namespace"},
		),
		ClusteringDistortion: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kmvector_clustering_distortion",
				Help: "Best-run distortion of the last clustering call, by namespace",
			},
			[]string{"namespace"},
		),
		ClusteringClustersPruned: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmvector_clustering_clusters_pruned_total",
				Help: "Total number of empty clusters pruned across clustering runs",
			},
			[]string{"namespace"},
		),

		IndexBuildDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kmvector_index_build_duration_seconds",
				Help:    "DotProductIndex build (Set/Add) duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
		),
		IndexQueryDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kmvector_index_query_duration_seconds",
				Help:    "DotProductIndex query (Nearby/KNearest) duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		IndexCandidatesReturned: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kmvector_index_candidates_returned",
				Help:    "Number of candidate ids returned by a Nearby query",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),

		DBSCANCorePoints: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kmvector_dbscan_core_points",
				Help: "Number of core points found by the last DBSCAN run, by namespace",
			},
			[]string{"namespace"},
		),
		DBSCANNoisePoints: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kmvector_dbscan_noise_points",
				Help: "Number of noise-labeled points found by the last DBSCAN run, by namespace",
			},
			[]string{"namespace"},
		),

		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kmvector_cache_hits_total",
				Help: "Total number of cache hits",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kmvector_cache_misses_total",
				Help: "Total number of cache misses",
			},
		),
		CacheSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kmvector_cache_size",
				Help: "Current number of entries in the query cache",
			},
		),

		TenantsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kmvector_tenants_total",
				Help: "Total number of active tenants",
			},
		),
		TenantQuotaUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kmvector_tenant_quota_usage",
				Help: "Tenant quota usage percentage by namespace and resource",
			},
			[]string{"namespace", "resource"},
		),

		GoroutinesCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kmvector_goroutines",
				Help: "Current number of goroutines",
			},
		),
		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kmvector_memory_bytes",
				Help: "Memory usage in bytes",
			},
		),
		CPUUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kmvector_cpu_usage",
				Help: "CPU usage percentage",
			},
		),
	}

	return m
}

// RecordRequest records a request with duration and status.
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordError records an error.
func (m *Metrics) RecordError(method, errorType string) {
	m.RequestErrors.WithLabelValues(method, errorType).Inc()
}

// RecordClusteringRun records one Cluster() call's duration, iteration
// count, resulting distortion, and clusters pruned.
func (m *Metrics) RecordClusteringRun(namespace, geometry string, duration time.Duration, iterations int, distortion float64, clustersPruned int) {
	m.ClusteringRunsTotal.WithLabelValues(namespace, geometry).Inc()
	m.ClusteringRunDuration.WithLabelValues(namespace).Observe(duration.Seconds())
	m.ClusteringIterations.WithLabelValues(namespace).Observe(float64(iterations))
	m.ClusteringDistortion.WithLabelValues(namespace).Set(distortion)
	if clustersPruned > 0 {
		m.ClusteringClustersPruned.WithLabelValues(namespace).Add(float64(clustersPruned))
	}
}

// RecordIndexBuild records a DotProductIndex Set/Add duration.
func (m *Metrics) RecordIndexBuild(duration time.Duration) {
	m.IndexBuildDuration.Observe(duration.Seconds())
}

// RecordIndexQuery records a DotProductIndex Nearby/KNearest query.
func (m *Metrics) RecordIndexQuery(duration time.Duration, candidates int) {
	m.IndexQueryDuration.Observe(duration.Seconds())
	m.IndexCandidatesReturned.Observe(float64(candidates))
}

// RecordDBSCANRun records the core/noise point counts from a DBSCAN run.
func (m *Metrics) RecordDBSCANRun(namespace string, corePoints, noisePoints int) {
	m.DBSCANCorePoints.WithLabelValues(namespace).Set(float64(corePoints))
	m.DBSCANNoisePoints.WithLabelValues(namespace).Set(float64(noisePoints))
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// UpdateCacheSize updates cache size.
func (m *Metrics) UpdateCacheSize(size int) {
	m.CacheSize.Set(float64(size))
}

// UpdateTenantCount updates the total tenant count.
func (m *Metrics) UpdateTenantCount(count int) {
	m.TenantsTotal.Set(float64(count))
}

// UpdateTenantQuota updates tenant quota usage.
func (m *Metrics) UpdateTenantQuota(namespace, resource string, usage float64) {
	m.TenantQuotaUsage.WithLabelValues(namespace, resource).Set(usage)
}

// UpdateGoroutineCount updates goroutine count.
func (m *Metrics) UpdateGoroutineCount(count int) {
	m.GoroutinesCount.Set(float64(count))
}

// UpdateMemoryUsage updates memory usage.
func (m *Metrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateCPUUsage updates CPU usage.
func (m *Metrics) UpdateCPUUsage(percentage float64) {
	m.CPUUsage.Set(percentage)
}
