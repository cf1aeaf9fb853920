package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/eleven-am/loom/internal/adapters/engine"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/helpers/future"
	"github.com/eleven-am/loom/internal/ports"
	"github.com/eleven-am/loom/internal/ports/mocks"
	"github.com/eleven-am/loom/internal/testutil/nodes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T) *engine.WorkflowManager {
	t.Helper()
	m := engine.NewWorkflowManager(engine.WithLogger(testLogger()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newAsync(t *testing.T, m *engine.WorkflowManager) *engine.AsyncManager {
	t.Helper()
	a := engine.NewAsyncManager(m)
	t.Cleanup(a.Close)
	return a
}

// buildGraph adds source -> double and a failing node fed by the source.
func buildGraph(t *testing.T, m *engine.WorkflowManager) (source, double, fail domain.NodeID) {
	t.Helper()
	var err error
	source, err = m.AddNode(nodes.NewSource(3))
	require.NoError(t, err)
	double, err = m.AddNode(&nodes.Double{})
	require.NoError(t, err)
	fail, err = m.AddNode(&nodes.Fail{})
	require.NoError(t, err)
	_, err = m.AddConnection(context.Background(), source, 0, fail, 0)
	require.NoError(t, err)
	return source, double, fail
}

func quietMonitor(t *testing.T) *mocks.MockProgressMonitor {
	monitor := mocks.NewMockProgressMonitor(t)
	monitor.EXPECT().Begin(mock.Anything, mock.Anything).Return().Maybe()
	monitor.EXPECT().Worked(mock.Anything).Return().Maybe()
	monitor.EXPECT().Done().Return().Maybe()
	return monitor
}

func TestTarget_Capabilities(t *testing.T) {
	m := newManager(t)
	a := newAsync(t, m)

	syncOnly := SyncTarget("local", m)
	assert.True(t, syncOnly.Supports(CapabilitySync))
	assert.False(t, syncOnly.Supports(CapabilityAsync))
	_, ok := syncOnly.Async()
	assert.False(t, ok)

	asyncOnly := AsyncTarget("remote", a)
	_, err := asyncOnly.Sync()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUseAsync))
	assert.Contains(t, err.Error(), "Please use the async method instead.")

	dual := DualTarget("both", m, a)
	assert.Equal(t, "dual", dual.Capability().String())
	ops, err := dual.Sync()
	require.NoError(t, err)
	assert.Same(t, m, ops)
}

func TestCall_SyncAndAsyncPathsAgree(t *testing.T) {
	ctx := context.Background()
	b := New(domain.BridgeConfig{ProgressInterval: time.Millisecond}, WithLogger(testLogger()))

	local := newManager(t)
	remote := newManager(t)
	lSource, lDouble, lFail := buildGraph(t, local)
	rSource, rDouble, rFail := buildGraph(t, remote)
	require.Equal(t, lSource, rSource)
	require.Equal(t, lDouble, rDouble)
	require.Equal(t, lFail, rFail)

	syncTarget := SyncTarget("local", local)
	asyncTarget := AsyncTarget("remote", newAsync(t, remote))

	for _, target := range []Target{syncTarget, asyncTarget} {
		conn, err := Call(ctx, b, target, AddConnection(lSource, 0, lDouble, 0), quietMonitor(t))
		require.NoError(t, err, target.Name())
		assert.Equal(t, domain.ConnectionID{Dest: lDouble, DestPort: 0}, conn.ID())
	}

	type outcome struct {
		kind domain.ErrorKind
		err  bool
	}
	run := func(target Target) []outcome {
		var out []outcome
		record := func(err error) {
			out = append(out, outcome{kind: domain.KindOf(err), err: err != nil})
		}
		_, err := Call(ctx, b, target, AddConnection(lDouble, 0, lSource, 0), quietMonitor(t))
		record(err)
		_, err = Call(ctx, b, target, NodeStatus("0:99"), quietMonitor(t))
		record(err)
		record(CallVoid(ctx, b, target, Execute(lDouble), quietMonitor(t)))
		record(CallVoid(ctx, b, target, Execute(lFail), quietMonitor(t)))
		record(CallVoid(ctx, b, target, RemoveConnection(domain.ConnectionID{Dest: lDouble, DestPort: 3}), quietMonitor(t)))
		return out
	}

	localOutcome := run(syncTarget)
	remoteOutcome := run(asyncTarget)
	assert.Equal(t, localOutcome, remoteOutcome)
	assert.Equal(t, outcome{kind: domain.KindNotFound, err: true}, localOutcome[1])
	assert.Equal(t, outcome{kind: domain.KindInternal, err: false}, localOutcome[2])
	assert.Equal(t, outcome{kind: domain.KindExecution, err: true}, localOutcome[3])

	lStatus, err := Call(ctx, b, syncTarget, NodeStatus(lDouble), nil)
	require.NoError(t, err)
	rStatus, err := Call(ctx, b, asyncTarget, NodeStatus(rDouble), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExecuted, lStatus.State)
	assert.Equal(t, lStatus, rStatus)
}

func TestCall_DualTargetUsesDeferredPath(t *testing.T) {
	m := newManager(t)
	id, err := m.AddNode(nodes.NewSource(1))
	require.NoError(t, err)

	monitor := mocks.NewMockProgressMonitor(t)
	monitor.EXPECT().Begin("execute", 100).Return().Once()
	monitor.EXPECT().Worked(1).Return().Maybe()
	monitor.EXPECT().Done().Return().Once()

	b := New(domain.DefaultBridgeConfig(), WithLogger(testLogger()))
	err = CallVoid(context.Background(), b, DualTarget("dual", m, newAsync(t, m)), Execute(id), monitor)
	require.NoError(t, err)
}

func TestCall_CancelStopsWaitingOnly(t *testing.T) {
	m := newManager(t)
	block := nodes.NewBlock()
	id, err := m.AddNode(block)
	require.NoError(t, err)

	b := New(domain.BridgeConfig{ProgressInterval: time.Millisecond}, WithLogger(testLogger()))
	target := AsyncTarget("remote", newAsync(t, m))

	monitor := quietMonitor(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- CallVoid(ctx, b, target, Execute(id), monitor)
	}()

	select {
	case <-block.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("node never started")
	}
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, domain.IsCancelled(err))
	case <-time.After(5 * time.Second):
		t.Fatal("wait was not interrupted")
	}

	status, err := m.NodeStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExecuting, status.State)

	block.Release()
	require.Eventually(t, func() bool {
		status, err := m.NodeStatus(context.Background(), id)
		return err == nil && status.State == domain.StateExecuted
	}, 5*time.Second, 5*time.Millisecond)
}

func TestCall_WaitTimeout(t *testing.T) {
	m := newManager(t)
	block := nodes.NewBlock()
	t.Cleanup(block.Release)
	id, err := m.AddNode(block)
	require.NoError(t, err)

	b := New(domain.BridgeConfig{WaitTimeout: 20 * time.Millisecond, ProgressInterval: time.Millisecond}, WithLogger(testLogger()))
	err = CallVoid(context.Background(), b, AsyncTarget("remote", newAsync(t, m)), Execute(id), quietMonitor(t))
	require.Error(t, err)
	assert.True(t, domain.IsCancelled(err))
	assert.True(t, domain.IsTimeout(err))
}

func TestCall_MonitorServesOneWait(t *testing.T) {
	m := newManager(t)
	block := nodes.NewBlock()
	id, err := m.AddNode(block)
	require.NoError(t, err)

	b := New(domain.BridgeConfig{ProgressInterval: time.Millisecond}, WithLogger(testLogger()))
	target := AsyncTarget("remote", newAsync(t, m))
	monitor := quietMonitor(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- CallVoid(context.Background(), b, target, Execute(id), monitor)
	}()
	<-block.Started()

	_, err = Call(context.Background(), b, target, NodeStatus(id), monitor)
	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err))

	_, err = Call(context.Background(), b, target, NodeStatus(id), quietMonitor(t))
	require.NoError(t, err)

	block.Release()
	require.NoError(t, <-errCh)

	_, err = Call(context.Background(), b, target, NodeStatus(id), monitor)
	require.NoError(t, err)
}

func TestCall_DeferredFailureIsReported(t *testing.T) {
	m := newManager(t)
	notifier := mocks.NewMockNotifier(t)
	notifier.EXPECT().Warn("flaky failed", mock.MatchedBy(func(msg string) bool {
		return len(msg) > 0
	})).Return().Once()

	b := New(domain.BridgeConfig{ProgressInterval: time.Millisecond}, WithLogger(testLogger()), WithNotifier(notifier))
	op := Operation[Void]{
		Name: "flaky",
		Async: func(ports.AsyncWorkflowOps) *future.Future[Void] {
			return future.Rejected[Void](errors.New("connection reset"))
		},
	}

	err := CallVoid(context.Background(), b, AsyncTarget("remote", newAsync(t, m)), op, nil)
	require.Error(t, err)
	assert.True(t, domain.IsTransport(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestCall_SyncFailureKeepsKind(t *testing.T) {
	m := newManager(t)
	b := New(domain.DefaultBridgeConfig(), WithLogger(testLogger()))

	op := Operation[Void]{
		Name: "broken",
		Sync: func(context.Context, ports.WorkflowOps) (Void, error) {
			return Void{}, errors.New("boom")
		},
	}
	err := CallVoid(context.Background(), b, SyncTarget("local", m), op, nil)
	require.Error(t, err)
	assert.True(t, domain.IsExecution(err))

	err = CallVoid(context.Background(), b, AsyncTarget("remote", newAsync(t, m)), Operation[Void]{Name: "sync_only", Sync: op.Sync}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err))
}

func TestCall_RecordsSpansAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	registry := prometheus.NewRegistry()
	metrics := NewMetrics("loom", registry)

	m := newManager(t)
	id, err := m.AddNode(nodes.NewSource(1))
	require.NoError(t, err)

	b := New(domain.DefaultBridgeConfig(),
		WithLogger(testLogger()),
		WithTracerProvider(provider),
		WithMetrics(metrics))
	target := SyncTarget("local", m)

	_, err = Call(context.Background(), b, target, NodeStatus(id), nil)
	require.NoError(t, err)
	_, err = Call(context.Background(), b, target, NodeStatus("0:42"), nil)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "bridge.node_status", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	attrs := map[string]string{}
	for _, kv := range spans[1].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "sync", attrs["bridge.path"])
	assert.Equal(t, "local", attrs["bridge.target"])
	assert.Equal(t, "not_found", attrs["bridge.error_kind"])
	assert.NotEmpty(t, attrs["bridge.call_id"])

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.calls.WithLabelValues("node_status", "sync", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.calls.WithLabelValues("node_status", "sync", "not_found")))
}
