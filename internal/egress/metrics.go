package egress

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"frameworks/crowsnest/pkg/monitoring"
)

// Metrics tracks upstream call outcomes and identity pool health. A nil
// *Metrics is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	attempts   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	resets     *prometheus.CounterVec
	identities *prometheus.GaugeVec
}

// NewMetrics registers egress metrics on the service collector.
func NewMetrics(mc *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		attempts:   mc.NewCounter("egress_attempts_total", "Upstream request attempts by outcome", []string{"outcome"}),
		duration:   mc.NewHistogram("egress_request_duration_seconds", "Upstream request attempt duration in seconds", []string{"outcome"}, nil),
		resets:     mc.NewCounter("identity_pool_resets_total", "Times the identity pool was fully reset", nil),
		identities: mc.NewGauge("identities", "Identity pool composition by state", []string{"state"}),
	}
}

func (m *Metrics) observeAttempt(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) identityReset() {
	if m == nil {
		return
	}
	m.resets.WithLabelValues().Inc()
}

func (m *Metrics) identityStates(working, failed, untested int) {
	if m == nil {
		return
	}
	m.identities.WithLabelValues("working").Set(float64(working))
	m.identities.WithLabelValues("failed").Set(float64(failed))
	m.identities.WithLabelValues("untested").Set(float64(untested))
}
