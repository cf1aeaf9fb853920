package remote

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/eleven-am/loom/internal/adapters/bridge"
	"github.com/eleven-am/loom/internal/adapters/engine"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/testutil/nodes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	manager *engine.WorkflowManager
	server  *Server
	conn    *grpc.ClientConn
	client  *Client
	source  domain.NodeID
	double  domain.NodeID
	fail    domain.NodeID
}

func newManager(t *testing.T) *engine.WorkflowManager {
	t.Helper()
	m := engine.NewWorkflowManager(engine.WithLogger(testLogger()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

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

func newFixture(t *testing.T, config domain.TransportConfig, opts ...ServerOption) *fixture {
	t.Helper()
	f := &fixture{manager: newManager(t)}
	f.source, f.double, f.fail = buildGraph(t, f.manager)

	listener := bufconn.Listen(1 << 20)
	f.server = NewServer(f.manager, config, testLogger(), opts...)
	require.NoError(t, f.server.Serve(context.Background(), listener))
	t.Cleanup(func() { _ = f.server.Stop() })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	f.conn = conn

	f.client = NewClient(conn, config, testLogger())
	t.Cleanup(func() { _ = f.client.Close() })
	return f
}

func wait[T any](t *testing.T, get func() (T, error)) (T, error) {
	t.Helper()
	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := get()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.value, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("remote call did not complete")
		var zero T
		return zero, nil
	}
}

func TestClient_OperationsRoundTrip(t *testing.T) {
	f := newFixture(t, domain.TransportConfig{ConnectionTimeout: 5 * time.Second})

	conn, err := wait(t, f.client.AddConnectionAsync(f.source, 0, f.double, 0).Get)
	require.NoError(t, err)
	assert.Equal(t, f.source, conn.Source)
	assert.Equal(t, f.double, conn.Dest)
	assert.Equal(t, domain.ConnectionStandard, conn.Kind)

	_, err = wait(t, f.client.ExecuteAsync(f.double).Get)
	require.NoError(t, err)

	status, err := wait(t, f.client.NodeStatusAsync(f.double).Get)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExecuted, status.State)
	assert.Equal(t, f.double, status.ID)

	_, err = wait(t, f.client.ResetAsync(f.source).Get)
	require.NoError(t, err)
	status, err = wait(t, f.client.NodeStatusAsync(f.double).Get)
	require.NoError(t, err)
	assert.NotEqual(t, domain.StateExecuted, status.State)

	_, err = wait(t, f.client.RemoveConnectionAsync(conn.ID()).Get)
	require.NoError(t, err)
	assert.Len(t, f.manager.Connections(), 1)

	_, err = wait(t, f.client.RemoveNodesAndConnectionsAsync([]domain.NodeID{f.fail}, nil).Get)
	require.NoError(t, err)
	_, ok := f.manager.Node(f.fail)
	assert.False(t, ok)
}

func TestClient_ErrorsKeepTheirKind(t *testing.T) {
	f := newFixture(t, domain.TransportConfig{ConnectionTimeout: 5 * time.Second})
	ctx := context.Background()

	_, local := f.manager.NodeStatus(ctx, "0:77")
	require.Error(t, local)
	_, remote := wait(t, f.client.NodeStatusAsync("0:77").Get)
	require.Error(t, remote)
	assert.True(t, domain.IsNotFound(remote))
	assert.Equal(t, local.Error(), remote.Error())

	_, remote = wait(t, f.client.ExecuteAsync(f.fail).Get)
	require.Error(t, remote)
	assert.True(t, domain.IsExecution(remote))

	var remoteErr *domain.Error
	require.ErrorAs(t, remote, &remoteErr)
	assert.Equal(t, f.fail, remoteErr.NodeID)
}

func TestClient_BridgeEquivalence(t *testing.T) {
	f := newFixture(t, domain.TransportConfig{ConnectionTimeout: 5 * time.Second})
	local := newManager(t)
	_, _, _ = buildGraph(t, local)

	b := bridge.New(domain.BridgeConfig{ProgressInterval: time.Millisecond}, bridge.WithLogger(testLogger()))
	ctx := context.Background()
	targets := []bridge.Target{
		bridge.SyncTarget("local", local),
		bridge.AsyncTarget("remote", f.client),
	}

	var kinds [][]domain.ErrorKind
	for _, target := range targets {
		var got []domain.ErrorKind
		_, err := bridge.Call(ctx, b, target, bridge.AddConnection(f.source, 0, f.double, 0), nil)
		got = append(got, domain.KindOf(err))
		_, err = bridge.Call(ctx, b, target, bridge.AddConnection(f.double, 0, f.source, 0), nil)
		got = append(got, domain.KindOf(err))
		got = append(got, domain.KindOf(bridge.CallVoid(ctx, b, target, bridge.Execute(f.fail), nil)))
		_, err = bridge.Call(ctx, b, target, bridge.NodeStatus("0:12"), nil)
		got = append(got, domain.KindOf(err))
		kinds = append(kinds, got)
	}
	assert.Equal(t, kinds[0], kinds[1])
	assert.Equal(t, domain.KindExecution, kinds[0][2])
	assert.Equal(t, domain.KindNotFound, kinds[0][3])
}

func TestServer_RateLimited(t *testing.T) {
	f := newFixture(t, domain.TransportConfig{
		ConnectionTimeout: 5 * time.Second,
		RequestsPerSecond: 0.001,
		Burst:             1,
	})

	_, err := wait(t, f.client.NodeStatusAsync(f.source).Get)
	require.NoError(t, err)

	_, err = wait(t, f.client.NodeStatusAsync(f.source).Get)
	require.Error(t, err)
	assert.True(t, domain.IsTransport(err))
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestServer_HealthAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	f := newFixture(t, domain.TransportConfig{ConnectionTimeout: 5 * time.Second}, WithMetricsRegisterer(registry))

	resp, err := grpc_health_v1.NewHealthClient(f.conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	_, err = wait(t, f.client.NodeStatusAsync(f.source).Get)
	require.NoError(t, err)

	families, err := registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "grpc_server_handled_total")
}

func TestServer_DoubleServeRejected(t *testing.T) {
	f := newFixture(t, domain.TransportConfig{})
	err := f.server.Serve(context.Background(), bufconn.Listen(1024))
	assert.ErrorIs(t, err, domain.ErrAlreadyStarted)
}

func TestClient_ClosedClientCancels(t *testing.T) {
	f := newFixture(t, domain.TransportConfig{ConnectionTimeout: 5 * time.Second})
	require.NoError(t, f.client.Close())

	_, err := wait(t, f.client.NodeStatusAsync(f.source).Get)
	require.Error(t, err)
	assert.True(t, domain.IsCancelled(err))
}

func TestServer_OperationOutlivesCallerDeadline(t *testing.T) {
	f := newFixture(t, domain.TransportConfig{ConnectionTimeout: 200 * time.Millisecond})
	block := nodes.NewBlock()
	id, err := f.manager.AddNode(block)
	require.NoError(t, err)

	b := bridge.New(domain.BridgeConfig{ProgressInterval: time.Millisecond}, bridge.WithLogger(testLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = bridge.CallVoid(ctx, b, bridge.AsyncTarget("remote", f.client), bridge.Execute(id), nil)
	require.Error(t, err)

	select {
	case <-block.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("execution never started")
	}

	time.Sleep(400 * time.Millisecond)
	status, err := f.manager.NodeStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExecuting, status.State, "past the call deadline")

	block.Release()
	assert.Eventually(t, func() bool {
		status, err := f.manager.NodeStatus(context.Background(), id)
		return err == nil && status.State == domain.StateExecuted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_StopCancelsOperations(t *testing.T) {
	f := newFixture(t, domain.TransportConfig{ConnectionTimeout: 5 * time.Second})
	block := nodes.NewBlock()
	defer block.Release()
	id, err := f.manager.AddNode(block)
	require.NoError(t, err)

	pending := f.client.ExecuteAsync(id)
	select {
	case <-block.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("execution never started")
	}

	require.NoError(t, f.server.Stop())
	assert.Eventually(t, func() bool {
		status, err := f.manager.NodeStatus(context.Background(), id)
		return err == nil && status.State == domain.StateConfigured
	}, 5*time.Second, 10*time.Millisecond)
	_, err = wait(t, pending.Get)
	require.Error(t, err)
}
