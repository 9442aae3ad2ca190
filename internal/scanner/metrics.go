package scanner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"frameworks/crowsnest/pkg/monitoring"
)

// Metrics tracks scan loop behavior. A nil *Metrics is valid and records
// nothing, which keeps tests quiet.
type Metrics struct {
	cycles      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	itemCounts  *prometheus.CounterVec
	intervalVal *prometheus.GaugeVec
	signals     *prometheus.CounterVec
}

// NewMetrics registers scan loop metrics on the service collector.
func NewMetrics(mc *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		cycles:      mc.NewCounter("scan_cycles_total", "Completed scan cycles by outcome", []string{"outcome"}),
		duration:    mc.NewHistogram("scan_cycle_duration_seconds", "Scan cycle duration in seconds", []string{"outcome"}, nil),
		itemCounts:  mc.NewCounter("scan_items_total", "Items seen per pipeline stage", []string{"stage"}),
		intervalVal: mc.NewGauge("scan_interval_seconds", "Current adaptive scan interval in seconds", nil),
		signals:     mc.NewCounter("findings_total", "Extracted finding signals by kind", []string{"kind"}),
	}
}

func (m *Metrics) cycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) items(stage string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.itemCounts.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) setInterval(d time.Duration) {
	if m == nil {
		return
	}
	m.intervalVal.WithLabelValues().Set(d.Seconds())
}

func (m *Metrics) findings(opportunities, risks int) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues("opportunity").Add(float64(opportunities))
	m.signals.WithLabelValues("risk").Add(float64(risks))
}
