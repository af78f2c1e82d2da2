package provider

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records provider call and credential refresh outcomes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	refreshes *prometheus.CounterVec
}

// NewMetrics registers the provider collectors with reg. A nil reg builds
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Provider calls by operation and response status.",
		}, []string{"op", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "onboarding",
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Provider call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Subsystem: "provider",
			Name:      "token_refreshes_total",
			Help:      "Credential issuances by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observe(op string, status int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
		if err != nil && errors.Is(err, errRateLimited) {
			label = "throttled"
		}
	}
	m.requests.WithLabelValues(op, label).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) refreshed(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}
