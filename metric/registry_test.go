package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/rulescope/errors"
)

func newTestCounter(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "test",
		Name:      name,
		Help:      "test counter",
	})
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry)
	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())

	// Core metrics are gatherable immediately
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	err := registry.RegisterCounter("dispatch", "facts_total", newTestCounter("facts_total"))
	require.NoError(t, err)

	// Same service/name pair is rejected
	err = registry.RegisterCounter("dispatch", "facts_total", newTestCounter("facts_total_dup"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegisterGaugeVec(t *testing.T) {
	registry := NewMetricsRegistry()

	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "test",
		Name:      "deployments",
		Help:      "test gauge vec",
	}, []string{"scope"})

	require.NoError(t, registry.RegisterGaugeVec("registry", "deployments", gv))
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := newTestCounter("unregister_me")
	require.NoError(t, registry.RegisterCounter("svc", "unregister_me", counter))

	assert.True(t, registry.Unregister("svc", "unregister_me"))
	assert.False(t, registry.Unregister("svc", "unregister_me"))

	// Re-registration works after unregister
	require.NoError(t, registry.RegisterCounter("svc", "unregister_me", newTestCounter("unregister_me")))
}

func TestCoreMetricsRecording(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	// Smoke-test the record helpers against the registered collectors
	core.RecordServiceStatus("rules", 2)
	core.RecordHealthStatus("rules", true)
	core.RecordError("rules", "dispatch")
	core.RecordNATSStatus(true)
	core.RecordNATSReconnect()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["rulescope_service_status"])
	assert.True(t, names["rulescope_errors_total"])
	assert.True(t, names["rulescope_nats_connected"])
}
