package metric

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/rulescope/health"
)

func TestServer_HealthEndpoint(t *testing.T) {
	server := NewServer(9090, "/metrics", NewMetricsRegistry())

	// Without a provider the endpoint is a plain liveness probe.
	rec := httptest.NewRecorder()
	server.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	server.SetHealthProvider(func() health.Status {
		return health.NewUnhealthy("rules-service", "deployment asset:a1 errored")
	})

	rec = httptest.NewRecorder()
	server.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status health.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "rules-service", status.Component)
	assert.True(t, status.IsUnhealthy())

	server.SetHealthProvider(func() health.Status {
		return health.NewHealthy("rules-service", "all deployments healthy")
	})

	rec = httptest.NewRecorder()
	server.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Defaults(t *testing.T) {
	server := NewServer(0, "", NewMetricsRegistry())
	assert.Equal(t, "http://localhost:9090/metrics", server.Address())
}
