package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	feedSubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_feed_subscriptions_active",
			Help: "Number of open message feed subscriptions.",
		},
	)
	feedSnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_feed_snapshots_total",
			Help: "Total number of feed snapshots delivered to subscribers.",
		},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"event"},
	)
	uploadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_upload_bytes_total",
			Help: "Total bytes written by completed uploads.",
		},
	)
	uploadFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_upload_failures_total",
			Help: "Total number of failed uploads.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		feedSubscriptionsActive,
		feedSnapshotsTotal,
		wsActiveConnections,
		wsEventsTotal,
		uploadBytesTotal,
		uploadFailuresTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncFeedSubscriptions() {
	feedSubscriptionsActive.Inc()
}

func DecFeedSubscriptions() {
	feedSubscriptionsActive.Dec()
}

func AddFeedSnapshots(n int) {
	feedSnapshotsTotal.Add(float64(n))
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func AddUploadBytes(n int64) {
	uploadBytesTotal.Add(float64(n))
}

func IncUploadFailure() {
	uploadFailuresTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
