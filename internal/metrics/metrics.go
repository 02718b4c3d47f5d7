// Package metrics provides Prometheus metrics for modelshelf.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	catsync "github.com/modelshelf/modelshelf/internal/catalog/sync"
)

var (
	// Sync metrics
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelshelf_sync_runs_total",
			Help: "Total reconciliation runs by outcome",
		},
		[]string{"result"},
	)

	syncEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelshelf_sync_entries_total",
			Help: "Folders processed by reconciliation, by action",
		},
		[]string{"action"},
	)

	syncThumbnailsCopied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelshelf_sync_thumbnails_copied_total",
			Help: "Thumbnails copied into the media cache",
		},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modelshelf_sync_duration_seconds",
			Help:    "Reconciliation run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	catalogEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelshelf_catalog_entries",
			Help: "Number of entries in the catalog",
		},
	)

	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelshelf_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelshelf_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Dashboard metrics
	dashboardClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelshelf_dashboard_clients",
			Help: "Number of connected websocket clients",
		},
	)

	// Inspection metrics
	inspectCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelshelf_inspect_cache_total",
			Help: "Model inspection cache lookups by result",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSync records the outcome of one reconciliation run.
// res may be nil when the run failed before producing a result.
func RecordSync(res *catsync.Result, err error) {
	switch {
	case err != nil:
		syncRunsTotal.WithLabelValues("error").Inc()
	case res != nil && len(res.Failed) > 0:
		syncRunsTotal.WithLabelValues("partial").Inc()
	default:
		syncRunsTotal.WithLabelValues("success").Inc()
	}
	if res == nil {
		return
	}

	syncEntriesTotal.WithLabelValues("created").Add(float64(len(res.Created)))
	syncEntriesTotal.WithLabelValues("updated").Add(float64(len(res.Updated)))
	syncEntriesTotal.WithLabelValues("deleted").Add(float64(len(res.Deleted)))
	syncEntriesTotal.WithLabelValues("skipped").Add(float64(len(res.Skipped)))
	syncEntriesTotal.WithLabelValues("failed").Add(float64(len(res.Failed)))
	syncThumbnailsCopied.Add(float64(res.ThumbsCopied))
	syncDuration.Observe(res.Duration.Seconds())
}

// SetCatalogEntries sets the catalog size gauge.
func SetCatalogEntries(n int) {
	catalogEntries.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetDashboardClients sets the connected websocket client gauge.
func SetDashboardClients(n int) {
	dashboardClients.Set(float64(n))
}

// RecordInspectCache records an inspection cache hit or miss.
func RecordInspectCache(hit bool) {
	if hit {
		inspectCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	inspectCacheTotal.WithLabelValues("miss").Inc()
}
