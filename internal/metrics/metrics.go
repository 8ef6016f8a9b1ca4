// Package metrics records Prometheus counters for the reconciliation
// pipeline. No exposition server is started here; callers that want scraping
// wire promhttp themselves.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	applyChangesTotal *prometheus.CounterVec
	applyFailedTotal  *prometheus.CounterVec
	batchItemDuration *prometheus.HistogramVec
	batchItemsTotal   *prometheus.CounterVec

	metricsOnce sync.Once
)

// Init registers all Prometheus metrics. Safe to call more than once; the
// Record functions call it themselves, so callers only need it when they
// want the vaulter_* families registered before the first recorded event.
func Init() {
	metricsOnce.Do(func() {
		applyChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaulter_apply_changes_total",
				Help: "Total number of changes applied to the remote store",
			},
			[]string{"project", "environment", "operation"},
		)

		applyFailedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaulter_apply_failed_total",
				Help: "Total number of per-key apply failures",
			},
			[]string{"project", "environment", "operation"},
		)

		batchItemDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vaulter_batch_item_duration_seconds",
				Help:    "Duration of individual batch operations in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"status"},
		)

		batchItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaulter_batch_items_total",
				Help: "Total number of batch items executed",
			},
			[]string{"status"},
		)
	})
}

// RecordApplyChange counts one applied change.
func RecordApplyChange(project, environment, operation string) {
	Init()
	applyChangesTotal.WithLabelValues(project, environment, operation).Inc()
}

// RecordApplyFailure counts one per-key apply failure.
func RecordApplyFailure(project, environment, operation string) {
	Init()
	applyFailedTotal.WithLabelValues(project, environment, operation).Inc()
}

// RecordBatchItem records the outcome and duration of one batch item.
func RecordBatchItem(status string, duration time.Duration) {
	Init()
	batchItemsTotal.WithLabelValues(status).Inc()
	batchItemDuration.WithLabelValues(status).Observe(duration.Seconds())
}
