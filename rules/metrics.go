package rules

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/rulescope/errors"
	"github.com/c360/rulescope/metric"
)

// rulesMetrics holds the orchestrator's domain metrics. A nil receiver is
// valid and records nothing, so the service runs with metrics disabled when
// no registry is supplied.
type rulesMetrics struct {
	deploymentsActive *prometheus.GaugeVec
	factsIndexed      prometheus.Gauge
	dispatchesTotal   *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	reconcilesTotal   *prometheus.CounterVec
}

func newRulesMetrics(registry *metric.MetricsRegistry) (*rulesMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &rulesMetrics{
		deploymentsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rulescope",
				Subsystem: "rules",
				Name:      "deployments_active",
				Help:      "Live rule deployments per scope level",
			},
			[]string{"scope"},
		),
		factsIndexed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rulescope",
				Subsystem: "rules",
				Name:      "facts_indexed",
				Help:      "State facts currently held in the fact index",
			},
		),
		dispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rulescope",
				Subsystem: "rules",
				Name:      "dispatches_total",
				Help:      "Fact dispatches by operation and result",
			},
			[]string{"operation", "result"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rulescope",
				Subsystem: "rules",
				Name:      "dispatch_duration_seconds",
				Help:      "Fact dispatch duration by operation",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		reconcilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rulescope",
				Subsystem: "rules",
				Name:      "reconciles_total",
				Help:      "Change notifications reconciled by entity and cause",
			},
			[]string{"entity", "cause"},
		),
	}

	registrations := []struct {
		name string
		err  error
	}{
		{"deployments_active", registry.RegisterGaugeVec("rules", "deployments_active", m.deploymentsActive)},
		{"facts_indexed", registry.RegisterGauge("rules", "facts_indexed", m.factsIndexed)},
		{"dispatches_total", registry.RegisterCounterVec("rules", "dispatches_total", m.dispatchesTotal)},
		{"dispatch_duration_seconds", registry.RegisterHistogramVec("rules", "dispatch_duration_seconds", m.dispatchDuration)},
		{"reconciles_total", registry.RegisterCounterVec("rules", "reconciles_total", m.reconcilesTotal)},
	}
	for _, reg := range registrations {
		if reg.err != nil {
			return nil, errors.Wrap(reg.err, "rulesMetrics", "newRulesMetrics", reg.name)
		}
	}

	return m, nil
}

func (m *rulesMetrics) recordDeployments(global, tenants, assets int) {
	if m == nil {
		return
	}
	m.deploymentsActive.WithLabelValues("global").Set(float64(global))
	m.deploymentsActive.WithLabelValues("tenant").Set(float64(tenants))
	m.deploymentsActive.WithLabelValues("asset").Set(float64(assets))
}

func (m *rulesMetrics) recordFacts(n int) {
	if m == nil {
		return
	}
	m.factsIndexed.Set(float64(n))
}

func (m *rulesMetrics) recordDispatch(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatchesTotal.WithLabelValues(operation, result).Inc()
	m.dispatchDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *rulesMetrics) recordReconcile(entity, cause string) {
	if m == nil {
		return
	}
	m.reconcilesTotal.WithLabelValues(entity, cause).Inc()
}
