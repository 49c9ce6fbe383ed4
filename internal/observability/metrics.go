package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	messagesSentTotal         *prometheus.CounterVec
	messageActionsTotal       *prometheus.CounterVec
	sendWindowRejectionsTotal *prometheus.CounterVec

	realtimeConnections  prometheus.Gauge
	realtimeCoalesced    prometheus.Counter
	typingEventsTotal    *prometheus.CounterVec
	feedSnapshotsTotal   prometheus.Counter
	feedReloadErrorTotal prometheus.Counter

	uploadRequestsTotal  *prometheus.CounterVec
	uploadRejectedTotal  *prometheus.CounterVec
	uploadLatencySeconds *prometheus.HistogramVec

	groupJoinsTotal      *prometheus.CounterVec
	eventsPublishedTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages persisted, by conversation scope and kind.",
		}, []string{"scope", "kind"})

		messageActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_message_actions_total",
			Help: "Star, pin, read and delete actions applied to messages.",
		}, []string{"action"})

		sendWindowRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_send_window_rejections_total",
			Help: "Sends rejected because the inner group's send window was closed.",
		}, []string{"path"})

		realtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_realtime_connections",
			Help: "Open realtime websocket connections.",
		})

		realtimeCoalesced = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_realtime_snapshots_coalesced_total",
			Help: "Feed snapshots replaced by a newer one before a slow client received them.",
		})

		typingEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_typing_events_total",
			Help: "Typing register writes, by outcome.",
		}, []string{"result"})

		feedSnapshotsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_feed_snapshots_total",
			Help: "Feed snapshots delivered to subscribers.",
		})

		feedReloadErrorTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_feed_reload_errors_total",
			Help: "Feed reloads that failed and were skipped.",
		})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_upload_requests_total",
			Help: "Uploaded files, by path and outcome.",
		}, []string{"path", "status"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_upload_rejected_total",
			Help: "Uploaded files rejected during validation.",
		}, []string{"reason"})

		uploadLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_upload_latency_seconds",
			Help:    "Time spent storing a single uploaded file.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"path"})

		groupJoinsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_group_joins_total",
			Help: "Group join attempts, by method and outcome.",
		}, []string{"method", "result"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_events_published_total",
			Help: "Lifecycle events handed to the event publisher.",
		}, []string{"driver", "type", "result"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			messagesSentTotal, messageActionsTotal, sendWindowRejectionsTotal,
			realtimeConnections, realtimeCoalesced, typingEventsTotal, feedSnapshotsTotal, feedReloadErrorTotal,
			uploadRequestsTotal, uploadRejectedTotal, uploadLatencySeconds,
			groupJoinsTotal, eventsPublishedTotal,
		)
	})
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

func MessageActions() *prometheus.CounterVec {
	RegisterMetrics()
	return messageActionsTotal
}

func SendWindowRejections() *prometheus.CounterVec {
	RegisterMetrics()
	return sendWindowRejectionsTotal
}

func RealtimeConnections() prometheus.Gauge {
	RegisterMetrics()
	return realtimeConnections
}

func RealtimeCoalesced() prometheus.Counter {
	RegisterMetrics()
	return realtimeCoalesced
}

func TypingEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return typingEventsTotal
}

func FeedSnapshots() prometheus.Counter {
	RegisterMetrics()
	return feedSnapshotsTotal
}

func FeedReloadErrors() prometheus.Counter {
	RegisterMetrics()
	return feedReloadErrorTotal
}

// UploadRequests counts stored or failed files per upload path (media, voice).
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

func UploadLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return uploadLatencySeconds
}

func GroupJoins() *prometheus.CounterVec {
	RegisterMetrics()
	return groupJoinsTotal
}

func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}
