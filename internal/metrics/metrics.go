package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"route", "method", "status"},
	)
	ReqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request duration seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "http_in_flight_requests", Help: "In-flight HTTP requests"},
	)
	// ActiveSubscriptions counts live queries by collection.
	ActiveSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "feed_active_subscriptions", Help: "Open live query subscriptions"},
		[]string{"collection"},
	)
	FeedSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "feed_stream_sessions", Help: "Connected feed stream sessions"},
	)
	WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_writes_total", Help: "Gateway writes by kind and outcome"},
		[]string{"kind", "outcome"},
	)
)

func MustRegister() {
	prometheus.MustRegister(RequestsTotal, ReqDuration, InFlight, ActiveSubscriptions, FeedSessions, WritesTotal)
}
