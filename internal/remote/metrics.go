package remote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type gatewayMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newGatewayMetrics(reg prometheus.Registerer) *gatewayMetrics {
	f := promauto.With(reg)
	return &gatewayMetrics{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "networkfs_remote_calls_total",
			Help: "Total number of calls made to the networkfs backend, by op and result.",
		}, []string{"op", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "networkfs_remote_call_duration_seconds",
			Help:    "Latency of calls made to the networkfs backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

type clientMetrics struct {
	listOverflows prometheus.Counter
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	f := promauto.With(reg)
	return &clientMetrics{
		listOverflows: f.NewCounter(prometheus.CounterOpts{
			Name: "networkfs_remote_list_overflow_total",
			Help: "Number of list responses that declared more entries than a single response can carry.",
		}),
	}
}
