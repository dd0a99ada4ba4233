package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	enqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackr",
			Subsystem: "pipeline",
			Name:      "enqueued_total",
			Help:      "Number of records accepted by the queue.",
		},
	)
	rejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackr",
			Subsystem: "pipeline",
			Name:      "rejected_total",
			Help:      "Number of enqueue attempts rejected because the pipeline was not running.",
		},
	)
	flushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackr",
			Subsystem: "pipeline",
			Name:      "flushed_total",
			Help:      "Number of records durably written, per sink.",
		}, []string{"sink"},
	)
	droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackr",
			Subsystem: "pipeline",
			Name:      "dropped_total",
			Help:      "Number of records dropped after a failed retry, per sink.",
		}, []string{"sink"},
	)
	serializationSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackr",
			Subsystem: "pipeline",
			Name:      "serialization_skips_total",
			Help:      "Number of records skipped because they could not be encoded, per sink.",
		}, []string{"sink"},
	)
	flushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trackr",
			Subsystem: "pipeline",
			Name:      "flush_duration_seconds",
			Help:      "Observed latency of sink append calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"},
	)
	batchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trackr",
			Subsystem: "pipeline",
			Name:      "batch_size",
			Help:      "Observed number of records per flushed batch.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
		}, []string{"sink"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trackr",
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Current number of records waiting in the queue.",
		},
	)
)

// Register registers all metrics with the provided registerer. It may be
// called more than once and for more than one registry; collectors already
// present are left as they are.
func Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{enqueuedTotal, rejectedTotal, flushedTotal, droppedTotal, serializationSkips, flushDuration, batchSize, queueDepth}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncEnqueued() {
	if regOK.Load() {
		enqueuedTotal.Inc()
	}
}
func IncRejected() {
	if regOK.Load() {
		rejectedTotal.Inc()
	}
}
func AddFlushed(sink string, n int) {
	if regOK.Load() {
		flushedTotal.WithLabelValues(sink).Add(float64(n))
	}
}
func AddDropped(sink string, n int) {
	if regOK.Load() {
		droppedTotal.WithLabelValues(sink).Add(float64(n))
	}
}
func AddSerializationSkips(sink string, n uint64) {
	if regOK.Load() && n > 0 {
		serializationSkips.WithLabelValues(sink).Add(float64(n))
	}
}
func ObserveFlush(sink string, seconds float64, size int) {
	if regOK.Load() {
		flushDuration.WithLabelValues(sink).Observe(seconds)
		batchSize.WithLabelValues(sink).Observe(float64(size))
	}
}
func SetQueueDepth(n int) {
	if regOK.Load() {
		queueDepth.Set(float64(n))
	}
}
