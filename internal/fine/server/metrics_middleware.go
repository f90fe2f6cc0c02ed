package server

import (
	"context"
	"time"

	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NewMetricsMiddleware returns a middleware which records request counts and
// latencies for every op into reg.
func NewMetricsMiddleware(reg prometheus.Registerer) Middleware {
	f := promauto.With(reg)
	return &metricsMiddleware{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "networkfs_fine_requests_total",
			Help: "Total number of filesystem requests handled, by op and result errno.",
		}, []string{"op", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "networkfs_fine_request_duration_seconds",
			Help:    "Time taken to handle filesystem requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

type metricsMiddleware struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func (mm *metricsMiddleware) HandleRequest(ctx context.Context, hdr *fine.RequestHeader, req fine.Request, invoker Invoker) (fine.Response, error) {
	start := time.Now()
	resp, err := invoker(ctx, hdr, req)

	op := hdr.Op.String()
	mm.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	mm.requests.WithLabelValues(op, resultLabel(err)).Inc()
	return resp, err
}

func resultLabel(err error) string {
	code := errorForResponse(err)
	if code == 0 {
		return "ok"
	}
	return code.Error()
}
