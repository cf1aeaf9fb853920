package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/loom/internal/adapters/engine"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/helpers/metadata"
	"github.com/eleven-am/loom/internal/testutil/nodes"
	json "github.com/eleven-am/loom/internal/xjson"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func newWorkflow(t *testing.T, registry prometheus.Registerer) *engine.WorkflowManager {
	t.Helper()
	m := engine.NewWorkflowManager(
		engine.WithLogger(testLogger()),
		engine.WithWorkflowName("orders"),
		engine.WithMetrics(engine.NewMetrics("loom", registry)),
	)
	t.Cleanup(func() { _ = m.Close() })

	source, err := m.AddNode(nodes.NewSource(2), engine.WithNodeName("Source"))
	require.NoError(t, err)
	double, err := m.AddNode(&nodes.Double{}, engine.WithNodeName("Double"))
	require.NoError(t, err)
	_, err = m.AddConnection(context.Background(), source, 0, double, 0)
	require.NoError(t, err)
	require.NoError(t, m.Execute(context.Background(), source))
	return m
}

func TestServer_Health(t *testing.T) {
	registry := prometheus.NewRegistry()
	meta := metadata.NewProvider()
	s := NewServer(domain.DefaultObservabilityConfig(), testLogger(),
		WithMetadata(meta),
		WithGatherer(registry),
		WithWorkflow(newWorkflow(t, registry)))

	rec := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, meta.BootID(), body.BootID)
	assert.Equal(t, 1, body.Nodes[domain.StateExecuted.String()])
	assert.Equal(t, 1, body.Nodes[domain.StateConfigured.String()])
}

func TestServer_NotReady(t *testing.T) {
	s := NewServer(domain.DefaultObservabilityConfig(), testLogger(),
		WithReady(func() error { return errors.New("storage closed") }))

	rec := get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "storage closed")

	rec = get(t, s.Handler(), "/live")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_WorkflowSnapshot(t *testing.T) {
	registry := prometheus.NewRegistry()
	s := NewServer(domain.DefaultObservabilityConfig(), testLogger(), WithWorkflow(newWorkflow(t, registry)))

	rec := get(t, s.Handler(), "/workflow")
	require.Equal(t, http.StatusOK, rec.Code)

	var body WorkflowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "orders", body.Name)
	require.Len(t, body.Nodes, 2)
	assert.Equal(t, "Source", body.Nodes[0].Name)
	assert.Equal(t, domain.StateExecuted, body.Nodes[0].State)

	empty := NewServer(domain.DefaultObservabilityConfig(), testLogger())
	assert.Equal(t, http.StatusNotFound, get(t, empty.Handler(), "/workflow").Code)
}

func TestServer_PrometheusMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	s := NewServer(domain.DefaultObservabilityConfig(), testLogger(),
		WithGatherer(registry),
		WithWorkflow(newWorkflow(t, registry)))

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "loom_node_executions_total"), body)
	assert.Contains(t, body, "loom_node_state_transitions_total")
}
