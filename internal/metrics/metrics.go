// Package metrics exposes the Prometheus collectors of the frame service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "frame"

var (
	// Registry holds the frame service collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	bootstrapTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bootstrap_total",
			Help:      "Bootstrap sequences by outcome.",
		},
		[]string{"outcome"},
	)

	addRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "add_requests_total",
			Help:      "Add-frame prompts by result.",
		},
		[]string{"result"},
	)

	hostEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_events_total",
			Help:      "Host lifecycle events delivered to mounted frames.",
		},
		[]string{"event"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Currently mounted frame sessions.",
		},
	)

	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Token transfer state transitions.",
		},
		[]string{"state"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook events by type and result.",
		},
		[]string{"event", "result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound frame notifications by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		bootstrapTotal,
		addRequests,
		hostEvents,
		sessionsActive,
		transfers,
		webhookEvents,
		notifications,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// IncInFlight marks the start of an HTTP request.
func IncInFlight() { httpInFlight.Inc() }

// DecInFlight marks the end of an HTTP request.
func DecInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records one handled request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBootstrap records how a bootstrap sequence ended.
func RecordBootstrap(outcome string) {
	bootstrapTotal.WithLabelValues(outcome).Inc()
}

// RecordAddRequest records the result of an add-frame prompt.
func RecordAddRequest(result string) {
	addRequests.WithLabelValues(result).Inc()
}

// RecordHostEvent records a host lifecycle event.
func RecordHostEvent(event string) {
	hostEvents.WithLabelValues(event).Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() { sessionsActive.Inc() }

// SessionClosed decrements the active session gauge.
func SessionClosed() { sessionsActive.Dec() }

// RecordTransfer records a transfer state transition.
func RecordTransfer(state string) {
	transfers.WithLabelValues(state).Inc()
}

// RecordWebhookEvent records a processed webhook.
func RecordWebhookEvent(event, result string) {
	if event == "" {
		event = "unknown"
	}
	webhookEvents.WithLabelValues(event, result).Inc()
}

// RecordNotification records an outbound notification attempt.
func RecordNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}
