package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var transportStates = []string{"DISCONNECTED", "CONNECTING", "CONNECTED", "ERROR"}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendorchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the status server.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vendorchat_http_request_duration_seconds",
			Help:    "Status server request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	transportState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vendorchat_transport_state",
			Help: "1 for the current transport connection state, 0 otherwise.",
		},
		[]string{"state"},
	)
	transportReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vendorchat_transport_reconnects_total",
			Help: "Total number of failed connection attempts followed by a backoff.",
		},
	)
	transportFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendorchat_transport_frames_total",
			Help: "Total number of STOMP frames sent and received.",
		},
		[]string{"direction", "destination"},
	)
	transportDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendorchat_transport_dropped_total",
			Help: "Total number of publishes rejected because the transport was not connected.",
		},
		[]string{"destination"},
	)
	restRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendorchat_rest_requests_total",
			Help: "Total number of REST calls made to the chat backend.",
		},
		[]string{"operation", "status"},
	)
	restRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vendorchat_rest_request_duration_seconds",
			Help:    "REST call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	notifyPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vendorchat_notify_publish_errors_total",
			Help: "Total number of notification publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		transportState,
		transportReconnectsTotal,
		transportFramesTotal,
		transportDroppedTotal,
		restRequestsTotal,
		restRequestDuration,
		notifyPublishErrorsTotal,
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

// SetTransportState flips the state gauge to state.
func SetTransportState(state string) {
	for _, s := range transportStates {
		value := 0.0
		if s == state {
			value = 1
		}
		transportState.WithLabelValues(s).Set(value)
	}
}

func IncReconnect() {
	transportReconnectsTotal.Inc()
}

func IncFrame(direction, destination string) {
	transportFramesTotal.WithLabelValues(direction, destination).Inc()
}

func IncDropped(destination string) {
	transportDroppedTotal.WithLabelValues(destination).Inc()
}

func ObserveREST(operation string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	restRequestsTotal.WithLabelValues(operation, label).Inc()
	restRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func IncNotifyPublishError() {
	notifyPublishErrorsTotal.Inc()
}
