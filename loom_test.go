package loom

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/testutil/nodes"
)

func newRuntime(t *testing.T) *Runtime {
	t.Helper()
	config := NewConfig("test", "", slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithInMemoryStorage().
		WithTransport("127.0.0.1", 0)
	config.Bridge.ProgressInterval = 10 * time.Millisecond

	rt, err := New(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	for _, factory := range nodes.Factories() {
		require.NoError(t, rt.RegisterFactory(factory))
	}
	return rt
}

func buildChain(t *testing.T, rt *Runtime, name string) (*Workflow, NodeID, NodeID) {
	t.Helper()
	wf := rt.NewWorkflow(name)
	source, err := wf.CreateNode(nodes.SourceFactory)
	require.NoError(t, err)
	double, err := wf.CreateNode(nodes.DoubleFactory)
	require.NoError(t, err)
	_, err = wf.AddConnection(context.Background(), source, 0, double, 0)
	require.NoError(t, err)
	return wf, source, double
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.Name = " "
	_, err := New(config)
	require.Error(t, err)
}

func TestRuntime_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	wf, _, double := buildChain(t, rt, "chain")
	require.NoError(t, CallVoid(ctx, rt, rt.Local(wf), Execute(double), nil))

	version, err := rt.SaveWorkflow("chain", wf)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	names, err := rt.ListWorkflows()
	require.NoError(t, err)
	assert.Equal(t, []string{"chain"}, names)

	loaded, result, err := rt.LoadWorkflow(ctx, "chain")
	require.NoError(t, err)
	assert.False(t, result.HasErrors(), result.String())
	assert.Equal(t, wf.Connections(), loaded.Connections())

	status, err := Call(ctx, rt, rt.Local(loaded), NodeStatusOf(double), nil)
	require.NoError(t, err)
	assert.Equal(t, StateExecuted, status.State)
	assert.Empty(t, rt.Warnings())

	require.NoError(t, rt.DeleteWorkflow("chain"))
	_, _, err = rt.LoadWorkflow(ctx, "chain")
	assert.True(t, domain.IsNotFound(err))
}

func TestRuntime_ImportReportsPartialFailures(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	wf, _, _ := buildChain(t, rt, "partial")
	data, err := rt.Export(wf)
	require.NoError(t, err)

	other := newRuntime(t)
	require.NoError(t, other.registry.UnregisterFactory(nodes.DoubleFactory))

	loaded, result, err := other.Import(ctx, "partial", data)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, result.HasErrors())
	require.Len(t, other.Warnings(), 1)
	assert.Equal(t, "workflow partial loaded with errors", other.Warnings()[0].Title)
}

func TestRuntime_ImportsShareTables(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	wf, source, _ := buildChain(t, rt, "shared")
	require.NoError(t, CallVoid(ctx, rt, rt.Local(wf), Execute(source), nil))
	data, err := rt.Export(wf)
	require.NoError(t, err)

	first, _, err := rt.Import(ctx, "first", data)
	require.NoError(t, err)
	second, _, err := rt.Import(ctx, "second", data)
	require.NoError(t, err)

	a, ok := first.Node(source)
	require.True(t, ok)
	b, ok := second.Node(source)
	require.True(t, ok)
	require.NotNil(t, a.PortObject(0))
	assert.Same(t, a.PortObject(0), b.PortObject(0))
}

func TestRuntime_DeferredTarget(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	wf, _, double := buildChain(t, rt, "deferred")

	target := rt.Deferred(wf)
	assert.True(t, target.Supports(CapabilitySync))
	require.NoError(t, CallVoid(ctx, rt, target, Execute(double), nil))

	status, err := Call(ctx, rt, target, NodeStatusOf(double), nil)
	require.NoError(t, err)
	assert.Equal(t, StateExecuted, status.State)
}

func TestRuntime_ServeAndConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt := newRuntime(t)
	wf, _, double := buildChain(t, rt, "served")

	server, err := rt.Serve(ctx, wf)
	require.NoError(t, err)

	target, err := rt.Connect("served", server.Address())
	require.NoError(t, err)

	_, err = target.Sync()
	assert.True(t, domain.IsUseAsync(err))

	require.NoError(t, CallVoid(ctx, rt, target, Execute(double), nil))
	status, err := Call(ctx, rt, target, NodeStatusOf(double), nil)
	require.NoError(t, err)
	assert.Equal(t, StateExecuted, status.State)

	_, err = Call(ctx, rt, target, NodeStatusOf("0:99"), nil)
	assert.True(t, domain.IsNotFound(err))

	count, err := testutil.GatherAndCount(rt.MetricsGatherer(), "loom_bridge_calls_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}

func TestRuntime_CloseIsIdempotent(t *testing.T) {
	rt := newRuntime(t)
	wf, _, _ := buildChain(t, rt, "closing")
	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())

	_, err := rt.Serve(context.Background(), wf)
	assert.ErrorIs(t, err, domain.ErrClosed)
}
