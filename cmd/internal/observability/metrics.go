// Package observability holds the Prometheus collectors shared by pairgate components.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pairgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	sessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairgate",
			Subsystem: "pairing",
			Name:      "sessions_started_total",
			Help:      "Linking sessions created, by linking method.",
		},
		[]string{"method"},
	)
	sessionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairgate",
			Subsystem: "pairing",
			Name:      "sessions_finished_total",
			Help:      "Linking sessions that reached a terminal state.",
		},
		[]string{"method", "state"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pairgate",
			Subsystem: "pairing",
			Name:      "sessions_active",
			Help:      "Linking sessions currently registered.",
		},
	)
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pairgate",
			Subsystem: "pairing",
			Name:      "session_duration_seconds",
			Help:      "Time from session creation to terminal state.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 90, 120, 180},
		},
		[]string{"state"},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairgate",
			Subsystem: "pairing",
			Name:      "deliveries_total",
			Help:      "Credential bundle delivery attempts.",
		},
		[]string{"result"},
	)
	versionFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pairgate",
			Subsystem: "pairing",
			Name:      "version_fallbacks_total",
			Help:      "Handshake parameter fetches that fell back to the built-in version.",
		},
	)
	broadcastSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pairgate",
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Live artifact stream subscribers.",
		},
	)
	broadcastPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairgate",
			Subsystem: "broadcast",
			Name:      "published_total",
			Help:      "Artifacts published, by kind and render outcome.",
		},
		[]string{"kind", "result"},
	)
	broadcastDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pairgate",
			Subsystem: "broadcast",
			Name:      "dropped_total",
			Help:      "Envelopes dropped because a subscriber queue was full.",
		},
	)
)

// RegisterMetrics registers every collector with the default registry exactly once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			sessionsStarted, sessionsFinished, sessionsActive, sessionDuration,
			deliveries, versionFallbacks,
			broadcastSubscribers, broadcastPublished, broadcastDropped,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordSessionStarted(method string) {
	RegisterMetrics()
	sessionsStarted.WithLabelValues(method).Inc()
	sessionsActive.Inc()
}

func RecordSessionFinished(method, state string, lifetime time.Duration) {
	RegisterMetrics()
	sessionsFinished.WithLabelValues(method, state).Inc()
	sessionsActive.Dec()
	sessionDuration.WithLabelValues(state).Observe(lifetime.Seconds())
}

func RecordDelivery(result string) {
	RegisterMetrics()
	deliveries.WithLabelValues(result).Inc()
}

func RecordVersionFallback() {
	RegisterMetrics()
	versionFallbacks.Inc()
}

func RecordSubscribers(n int) {
	RegisterMetrics()
	broadcastSubscribers.Set(float64(n))
}

func RecordPublish(kind string, rendered bool) {
	RegisterMetrics()
	result := "ok"
	if !rendered {
		result = "render_fail"
	}
	broadcastPublished.WithLabelValues(kind, result).Inc()
}

func RecordDropped() {
	RegisterMetrics()
	broadcastDropped.Inc()
}
