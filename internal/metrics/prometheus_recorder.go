package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	operationDuration *prom.HistogramVec
	operationOutcome  *prom.CounterVec
	changeEvents      *prom.CounterVec
	activeWatches     prom.Gauge
	aggregateProgress prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.operationDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pakctl",
			Name:      "operation_duration_seconds",
			Help:      "Duration of package operations from request to terminal change event",
			Buckets:   prom.DefBuckets,
		}, []string{"verb"})
		pr.operationOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pakctl",
			Name:      "operation_outcomes_total",
			Help:      "Operation outcomes by verb and final status",
		}, []string{"verb", "outcome"})
		pr.changeEvents = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pakctl",
			Name:      "change_events_total",
			Help:      "Change stream events observed, by terminality",
		}, []string{"kind"})
		pr.activeWatches = prom.NewGauge(prom.GaugeOpts{
			Namespace: "pakctl",
			Name:      "active_watches",
			Help:      "Number of change watches currently running",
		})
		pr.aggregateProgress = prom.NewGauge(prom.GaugeOpts{
			Namespace: "pakctl",
			Name:      "aggregate_progress_fraction",
			Help:      "Mean progress fraction across observed changes",
		})
		reg.MustRegister(pr.operationDuration, pr.operationOutcome, pr.changeEvents, pr.activeWatches, pr.aggregateProgress)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveOperationDuration(verb string, d time.Duration) {
	if p == nil || p.operationDuration == nil {
		return
	}
	p.operationDuration.WithLabelValues(verb).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncOperationOutcome(verb string, outcome OutcomeLabel) {
	if p == nil || p.operationOutcome == nil {
		return
	}
	p.operationOutcome.WithLabelValues(verb, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncChangeEvent(terminal bool) {
	if p == nil || p.changeEvents == nil {
		return
	}
	kind := "update"
	if terminal {
		kind = "terminal"
	}
	p.changeEvents.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) SetActiveWatches(n int) {
	if p == nil || p.activeWatches == nil {
		return
	}
	p.activeWatches.Set(float64(n))
}

func (p *PrometheusRecorder) SetAggregateProgress(fraction float64) {
	if p == nil || p.aggregateProgress == nil {
		return
	}
	p.aggregateProgress.Set(fraction)
}
