// Package metrics exposes pipeline counters and gauges to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the pipeline reports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Observations     *prometheus.CounterVec
	Detected         *prometheus.CounterVec
	Rejected         *prometheus.CounterVec
	Scheduled        prometheus.Counter
	QueueDepth       prometheus.Gauge
	Dispatched       *prometheus.CounterVec
	Requeued         prometheus.Counter
	FeeSource        *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	BusErrors        *prometheus.CounterVec
}

// New creates the collectors and registers them on a dedicated registry
// together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Observations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orbitflash_price_observations_total",
				Help: "Price observations received, by venue",
			},
			[]string{"venue"},
		),
		Detected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orbitflash_opportunities_detected_total",
				Help: "Opportunities emitted by the profit detector, by urgency",
			},
			[]string{"urgency"},
		),
		Rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orbitflash_opportunities_rejected_total",
				Help: "Opportunities rejected by the risk gate, by failing check",
			},
			[]string{"check"},
		),
		Scheduled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orbitflash_opportunities_scheduled_total",
				Help: "Opportunities accepted into the scheduling queue",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orbitflash_queue_depth",
				Help: "Entries currently waiting in the scheduling queue",
			},
		),
		Dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orbitflash_dispatch_total",
				Help: "Dispatch attempts, by stage and result",
			},
			[]string{"stage", "result"},
		),
		Requeued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orbitflash_requeued_total",
				Help: "Entries returned to the queue after a failed dispatch",
			},
		),
		FeeSource: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orbitflash_fee_source_total",
				Help: "Fee derivations, by the source that produced the network fees",
			},
			[]string{"source"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orbitflash_dispatch_duration_seconds",
				Help:    "Time spent preparing a dispatch",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"stage"},
		),
		BusErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orbitflash_bus_errors_total",
				Help: "Message bus failures, by channel and kind",
			},
			[]string{"channel", "kind"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Observations,
		m.Detected,
		m.Rejected,
		m.Scheduled,
		m.QueueDepth,
		m.Dispatched,
		m.Requeued,
		m.FeeSource,
		m.DispatchDuration,
		m.BusErrors,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservationReceived(venue string) {
	if m == nil {
		return
	}
	m.Observations.WithLabelValues(venue).Inc()
}

func (m *Metrics) OpportunityDetected(urgency string) {
	if m == nil {
		return
	}
	m.Detected.WithLabelValues(urgency).Inc()
}

func (m *Metrics) OpportunityRejected(check string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(check).Inc()
}

func (m *Metrics) OpportunityScheduled(depth int) {
	if m == nil {
		return
	}
	m.Scheduled.Inc()
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// DispatchResult records the outcome of one dispatch attempt.
func (m *Metrics) DispatchResult(stage, result string, started time.Time) {
	if m == nil {
		return
	}
	m.Dispatched.WithLabelValues(stage, result).Inc()
	m.DispatchDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

func (m *Metrics) EntryRequeued() {
	if m == nil {
		return
	}
	m.Requeued.Inc()
}

func (m *Metrics) FeeSourceUsed(source string) {
	if m == nil {
		return
	}
	m.FeeSource.WithLabelValues(source).Inc()
}

func (m *Metrics) BusError(channel, kind string) {
	if m == nil {
		return
	}
	m.BusErrors.WithLabelValues(channel, kind).Inc()
}
