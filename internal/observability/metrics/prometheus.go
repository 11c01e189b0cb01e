// Package metrics provides Prometheus metrics for the booking engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	BookingsAccepted    prometheus.Counter
	BookingsRejected    prometheus.Counter
	BookingConflicts    prometheus.Counter
	ValidationFaults    *prometheus.CounterVec
	ValidationDuration  prometheus.Histogram
	BookingDuration     prometheus.Histogram
	FreeSlots           prometheus.Gauge
	EventsPublished     prometheus.Counter
	EventsDropped       prometheus.Counter
	OutboxPending       prometheus.Gauge
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		BookingsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookings_accepted_total",
			Help: "Total appointments booked",
		}),
		BookingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookings_rejected_total",
			Help: "Total booking requests rejected by validation",
		}),
		BookingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_conflicts_total",
			Help: "Total booking attempts on an already-busy slot",
		}),
		ValidationFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "validation_faults_total",
			Help: "Total validation faults by severity",
		}, []string{"severity"}),
		ValidationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "validation_duration_seconds",
			Help:    "Appointment validation duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		BookingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_duration_seconds",
			Help:    "End-to-end booking duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		FreeSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slots_free",
			Help: "Currently free slots",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_events_published_total",
			Help: "Total booking events published to the broker",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_events_dropped_total",
			Help: "Total booking events dropped after exhausting retries",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.BookingsAccepted,
		m.BookingsRejected,
		m.BookingConflicts,
		m.ValidationFaults,
		m.ValidationDuration,
		m.BookingDuration,
		m.FreeSlots,
		m.EventsPublished,
		m.EventsDropped,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
