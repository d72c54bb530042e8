package ldap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "ldapauth"

	resultSuccess = "success"
)

// Metrics counts authentication attempts by strategy and outcome.
type Metrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "attempts_total",
			Help:      "Number of LDAP authentication attempts, partitioned by strategy and result.",
		}, []string{"strategy", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of LDAP authentication attempts, partitioned by strategy.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
	}

	if reg != nil {
		reg.MustRegister(m.attempts, m.duration)
	}
	return m
}

// observe records one attempt. A nil *Metrics records nothing.
func (m *Metrics) observe(strategy Strategy, err error, d time.Duration) {
	if m == nil {
		return
	}

	result := resultSuccess
	if err != nil {
		result = KindOf(err).String()
	}

	m.attempts.WithLabelValues(string(strategy), result).Inc()
	m.duration.WithLabelValues(string(strategy)).Observe(d.Seconds())
}
