package jsonp

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric label values for request outcomes.
const (
	outcomeSuccess   = "success"
	outcomeLoadError = "load_error"
	outcomeTimeout   = "timeout"
	outcomeClosed    = "closed"
	outcomeRejected  = "rejected"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edmunds_jsonp_requests_total",
			Help: "Total number of JSONP requests by terminal outcome.",
		},
		[]string{"outcome"},
	)

	requestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edmunds_jsonp_request_duration_seconds",
			Help:    "Time from issuing a JSONP request to its terminal outcome, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edmunds_jsonp_pending_requests",
			Help: "Number of JSONP requests awaiting a callback.",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(pendingRequests)

	for _, o := range []string{outcomeSuccess, outcomeLoadError, outcomeTimeout, outcomeClosed, outcomeRejected} {
		requestsTotal.WithLabelValues(o)
	}
}

func outcomeFor(err error) string {
	var le *LoadError
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrTimeout):
		return outcomeTimeout
	case errors.Is(err, ErrClosed):
		return outcomeClosed
	case errors.Is(err, ErrCallbackParam):
		return outcomeRejected
	case errors.As(err, &le):
		return outcomeLoadError
	default:
		return outcomeRejected
	}
}
