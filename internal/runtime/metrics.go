package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "runtime",
			Name:      "stage_duration_seconds",
			Help:      "Duration of inference pipeline stages in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		},
		[]string{"network", "stage"},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "runtime",
			Name:      "requests_total",
			Help:      "Finished inference episodes by outcome",
		},
		[]string{"network", "status"},
	)

	activeRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "runtime",
			Name:      "active_requests",
			Help:      "Inference requests created and not yet closed",
		},
		[]string{"network"},
	)

	allocatedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "runtime",
			Name:      "allocated_bytes_total",
			Help:      "Bytes allocated for request buffers",
		},
		[]string{"network"},
	)
)

func init() {
	prometheus.MustRegister(stageDuration, requestsTotal, activeRequests, allocatedBytes)
}
