package statusapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds the Prometheus instruments exposed while a package run is
// in flight: how many pairings have been processed, how many items were
// scored, and how long each pairing took.
type Metrics struct {
	pairingsTotal   *prometheus.CounterVec
	pairingDuration *prometheus.HistogramVec
	itemsScored     prometheus.Counter
	tasksFailed     prometheus.Counter
}

// NewMetrics creates and registers the run's Prometheus instruments.
func NewMetrics() *Metrics {
	return &Metrics{
		pairingsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knn_pairings_total",
				Help: "Total number of partition pairings processed",
			},
			[]string{"status"},
		),
		pairingDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "knn_pairing_duration_seconds",
				Help:    "Wall-clock time to process one partition pairing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		itemsScored: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "knn_items_scored_total",
				Help: "Total number of (left, right) point pairs scored",
			},
		),
		tasksFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "knn_task_failures_total",
				Help: "Total number of pairing tasks that returned an error",
			},
		),
	}
}

// RecordPairing records the outcome and duration of one pairing task.
func (m *Metrics) RecordPairing(success bool, d time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
		m.tasksFailed.Inc()
	}
	m.pairingsTotal.WithLabelValues(status).Inc()
	m.pairingDuration.WithLabelValues(status).Observe(d.Seconds())
}

// AddItemsScored accumulates the number of cross-product pairs scored by
// one nested scan.
func (m *Metrics) AddItemsScored(n uint64) {
	m.itemsScored.Add(float64(n))
}
