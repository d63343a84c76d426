package master

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreams-grid/dreams-core/internal/dnp3"
)

const metricPrefix = "dreams_"

// Outcome labels.
const (
	OutcomeOK            = "ok"
	OutcomeProcessError  = "process_error"
	OutcomeUnavailable   = "service_unavailable"
	OutcomeUncertain     = "uncertain"
	OutcomeNotDispatched = "not_dispatched"
)

// Metrics holds the dispatch collectors.
type Metrics struct {
	dispatches *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inflight   prometheus.Gauge
}

// NewMetrics creates the dispatch collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "dispatch_total",
			Help: "Commands handed to the DNP3 master, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricPrefix + "dispatch_duration_seconds",
			Help:    "Time from dispatch request to result, including queueing.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		}, []string{"kind"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "dispatch_inflight",
			Help: "Sender invocations currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.dispatches, m.duration, m.inflight)
	}
	return m
}

func (m *Metrics) observe(kind dnp3.Kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(string(kind), outcome).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) running(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}
