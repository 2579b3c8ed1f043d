// Package metrics declares the Prometheus collectors reported by the pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vigil"

var (
	once sync.Once

	// VisionAttempts counts individual model calls by stage and outcome
	// (success, timeout, transient, permanent).
	VisionAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "vision",
		Name:      "attempts_total",
		Help:      "Vision model call attempts, labeled by stage and outcome.",
	}, []string{"stage", "outcome"})

	// VisionDuration observes the wall time of each model call attempt.
	VisionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "vision",
		Name:      "attempt_duration_seconds",
		Help:      "Duration of a single vision model call attempt.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"stage"})

	// JobsProcessed counts classification jobs by final state.
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "jobs_total",
		Help:      "Classification jobs processed, labeled by result (completed, failed, crisis, skipped).",
	}, []string{"result"})

	// JobDuration observes end-to-end job processing time.
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "job_duration_seconds",
		Help:      "End-to-end classification job duration.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 60, 120, 300},
	}, []string{"result"})

	// ConcernsDiscarded counts concerns dropped by the threshold filter.
	ConcernsDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "concerns_discarded_total",
		Help:      "Concerns discarded below the effective confidence threshold.",
	}, []string{"category"})

	// FlagsCreated counts persisted flags by category and status.
	FlagsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "flags",
		Name:      "created_total",
		Help:      "Flags persisted, labeled by category and status.",
	}, []string{"category", "status"})

	// AlertDecisions counts throttle outcomes (alert, throttled, duplicate, bump, unbounded).
	AlertDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "throttle",
		Name:      "decisions_total",
		Help:      "Notification decisions, labeled by reason.",
	}, []string{"reason"})

	// Suppressions counts screenshots whose concerns were placed on sensitive hold.
	Suppressions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "distress",
		Name:      "suppressions_total",
		Help:      "Screenshots with a self-harm concern placed on sensitive hold.",
	})

	// HeldReleased counts held flags returned to pending by the release schedule.
	HeldReleased = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "distress",
		Name:      "released_total",
		Help:      "Held flags released to pending after the hold window.",
	})

	// CrisisBypasses counts jobs skipped because the URL is a crisis resource.
	CrisisBypasses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "crisis",
		Name:      "bypasses_total",
		Help:      "Jobs whose concern detection was bypassed for a crisis resource URL.",
	})

	// QueueConnected is 1 while the job consumer holds an open channel.
	QueueConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "connected",
		Help:      "Whether the job consumer is connected to the broker.",
	})

	// QueueInFlight is the number of deliveries currently being processed.
	QueueInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "in_flight",
		Help:      "Deliveries currently being processed by workers.",
	})

	// QueueLastDelivery is the unix timestamp of the most recent delivery.
	QueueLastDelivery = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "last_delivery_timestamp_seconds",
		Help:      "Unix timestamp of the last delivery observed by the consumer.",
	})

	// HTTPRequests counts API requests by method and status.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests, labeled by method and status.",
	}, []string{"method", "status"})

	// HTTPDuration observes API request latency by method and status.
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency, labeled by method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// Register registers every collector with the default registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			VisionAttempts,
			VisionDuration,
			JobsProcessed,
			JobDuration,
			ConcernsDiscarded,
			FlagsCreated,
			AlertDecisions,
			Suppressions,
			HeldReleased,
			CrisisBypasses,
			QueueConnected,
			QueueInFlight,
			QueueLastDelivery,
			HTTPRequests,
			HTTPDuration,
		)
	})
}

// NowUnixSeconds returns the current time as fractional unix seconds.
func NowUnixSeconds() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}
