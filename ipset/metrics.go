package ipset

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	counterVecRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipset_requests_total",
		Help: "Total number of ipset netlink requests broken down by command.",
	}, []string{"command"})
	counterVecErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipset_errors_total",
		Help: "Total number of failed ipset netlink requests broken down by command and failure kind.",
	}, []string{"command", "kind"})
	histogramVecDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ipset_request_duration_seconds",
		Help:    "Time taken by ipset netlink requests, replies included.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(
		counterVecRequests,
		counterVecErrors,
		histogramVecDuration,
	)
}

// observe records a finished request. err is a classified *Error or nil.
func observe(cmd uint8, start time.Time, err error) {
	name := CommandName(cmd)
	counterVecRequests.WithLabelValues(name).Inc()
	histogramVecDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	kind := KernelRejected
	var e *Error
	if errors.As(err, &e) {
		kind = e.Kind
	}
	counterVecErrors.WithLabelValues(name, kind.String()).Inc()
}
