// Package metrics holds the Prometheus collectors for ingestion, grid builds
// and the shared store. Collectors register with the default registry and are
// exposed by the web server on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "staygrid"

var (
	// ingestTotal counts ingestion attempts.
	// Labels: outcome (ok, empty, busy, persist_error, error)
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "requests_total",
		Help:      "Total reservation ingestions by outcome",
	}, []string{"outcome"})

	ingestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Time to decode, classify and persist one ingestion",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// filesDecoded counts decoded files.
	// Labels: encoding (utf-8, shift_jis)
	filesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "files_total",
		Help:      "Decoded export files by detected encoding",
	}, []string{"encoding"})

	rowsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "rows_total",
		Help:      "Valid reservation rows read from export files",
	})

	ingestActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "active",
		Help:      "Ingestions currently holding a limiter slot",
	})

	// reservations tracks the size of each bucket of the current set.
	// Labels: bucket (active, cancelled, changed)
	reservations = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reservations",
		Help:      "Reservations in the current set by bucket",
	}, []string{"bucket"})

	rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms",
		Help:      "Distinct rooms in the current set",
	})

	// gridEvents counts notable grid build events.
	// Labels: event (skipped_invalid, turnover, collision, truncated)
	gridEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grid",
		Name:      "events_total",
		Help:      "Grid build events by kind",
	}, []string{"event"})

	gridBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "grid",
		Name:      "build_duration_seconds",
		Help:      "Time to expand active reservations into the grid",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	// storeOps counts shared store operations.
	// Labels: op (load, save, notify), status (ok, error)
	storeOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Shared store operations by type and status",
	}, []string{"op", "status"})
)

// RecordIngest records the outcome and duration of one ingestion.
func RecordIngest(outcome string, d time.Duration) {
	ingestTotal.WithLabelValues(outcome).Inc()
	ingestDuration.Observe(d.Seconds())
}

// RecordFile records one decoded file.
func RecordFile(encoding string, validRows int) {
	filesDecoded.WithLabelValues(encoding).Inc()
	rowsIngested.Add(float64(validRows))
}

// SetIngestActive sets the number of running ingestions.
func SetIngestActive(n int) {
	ingestActive.Set(float64(n))
}

// SetReservations publishes the bucket sizes of the current set.
func SetReservations(active, cancelled, changed, roomCount int) {
	reservations.WithLabelValues("active").Set(float64(active))
	reservations.WithLabelValues("cancelled").Set(float64(cancelled))
	reservations.WithLabelValues("changed").Set(float64(changed))
	rooms.Set(float64(roomCount))
}

// RecordGridBuild records one grid build.
func RecordGridBuild(d time.Duration, skipped, turnovers, collisions, truncated int) {
	gridBuildDuration.Observe(d.Seconds())
	gridEvents.WithLabelValues("skipped_invalid").Add(float64(skipped))
	gridEvents.WithLabelValues("turnover").Add(float64(turnovers))
	gridEvents.WithLabelValues("collision").Add(float64(collisions))
	gridEvents.WithLabelValues("truncated").Add(float64(truncated))
}

// RecordStoreOp records one store operation.
func RecordStoreOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeOps.WithLabelValues(op, status).Inc()
}
