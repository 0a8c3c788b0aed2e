package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trapbridge"

// Metrics holds the daemon's Prometheus collectors on a private registry.
// It implements dispatch.Recorder.
type Metrics struct {
	reg *prometheus.Registry

	TrapsReceived    prometheus.Counter
	TrapsRejected    *prometheus.CounterVec
	TrapsUnmatched   prometheus.Counter
	TransformErrors  prometheus.Counter
	EventsEnqueued   prometheus.Counter
	EventsDelivered  prometheus.Counter
	DeliveryLatency  prometheus.Histogram
	DispatchFailures *prometheus.CounterVec
	CollectorUp      prometheus.Gauge
	RulesLoaded      prometheus.Gauge
	RuleReloads      *prometheus.CounterVec
}

// New registers all collectors. queueDepth is sampled on every scrape.
func New(queueDepth func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		TrapsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_received_total",
			Help:      "Notifications accepted and decoded.",
		}),
		TrapsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_rejected_total",
			Help:      "Notifications dropped before matching, by reason.",
		}, []string{"reason"}),
		TrapsUnmatched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_unmatched_total",
			Help:      "Notifications no rule matched.",
		}),
		TransformErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Matched notifications whose templates could not be rendered.",
		}),
		EventsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_enqueued_total",
			Help:      "Alert events queued for delivery.",
		}),
		EventsDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Alert events acknowledged by the collector.",
		}),
		DeliveryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_latency_seconds",
			Help:      "Time from event creation to acknowledgment.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		}),
		DispatchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Failed delivery attempts, by stage.",
		}, []string{"reason"}),
		CollectorUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collector_connected",
			Help:      "1 while a collector connection is open.",
		}),
		RulesLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_loaded",
			Help:      "Rules in the active rule set.",
		}),
		RuleReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_reloads_total",
			Help:      "Rule file reloads, by result.",
		}, []string{"result"}),
	}

	if queueDepth != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Events waiting for delivery.",
		}, func() float64 { return float64(queueDepth()) })
	}
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) TrapReceived()              { m.TrapsReceived.Inc() }
func (m *Metrics) TrapRejected(reason string) { m.TrapsRejected.WithLabelValues(reason).Inc() }
func (m *Metrics) TrapUnmatched()             { m.TrapsUnmatched.Inc() }
func (m *Metrics) TransformFailed()           { m.TransformErrors.Inc() }
func (m *Metrics) EventEnqueued()             { m.EventsEnqueued.Inc() }
func (m *Metrics) SetRules(n int)             { m.RulesLoaded.Set(float64(n)) }

// RuleReload counts a reload attempt.
func (m *Metrics) RuleReload(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.RuleReloads.WithLabelValues(result).Inc()
}

// DispatchFailed implements dispatch.Recorder.
func (m *Metrics) DispatchFailed(reason string) {
	m.DispatchFailures.WithLabelValues(reason).Inc()
}

// EventDelivered implements dispatch.Recorder.
func (m *Metrics) EventDelivered(latency time.Duration) {
	m.EventsDelivered.Inc()
	m.DeliveryLatency.Observe(latency.Seconds())
}

// CollectorConnected implements dispatch.Recorder.
func (m *Metrics) CollectorConnected(connected bool) {
	if connected {
		m.CollectorUp.Set(1)
		return
	}
	m.CollectorUp.Set(0)
}
