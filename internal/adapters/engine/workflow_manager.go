package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// WorkflowManager owns the node containers and connections of one
// (sub-)workflow. Every mutation runs under mu; listener events collected
// during a mutation are delivered once mu has been released.
type WorkflowManager struct {
	id         domain.NodeID
	name       string
	parent     *WorkflowManager
	logger     *slog.Logger
	registry   ports.NodeRegistryPort
	metrics    *Metrics
	config     domain.EngineConfig
	inspectors ports.InspectorFactory

	mu          sync.Mutex
	tableMu     sync.RWMutex
	containers  map[domain.NodeID]*NodeContainer
	nextSuffix  int
	connections map[domain.ConnectionID]*ConnectionModel
	dag         *DAGManager
	uiInfo      *domain.UIInfo
	closed      bool

	inPorts           []domain.WorkflowPortTemplate
	outPorts          []domain.WorkflowPortTemplate
	boundaryInSpecs   []domain.PortObjectSpec
	boundaryInObjects []domain.PortObject

	runs    map[uint64]context.CancelFunc
	nextRun uint64

	// set when the boundary outputs changed; consumed by unlock
	outputsStale bool

	pending     []domain.WorkflowEvent
	forwardMu   sync.Mutex
	forwarded   []domain.WorkflowEvent
	listenersMu sync.RWMutex
	listeners   map[uint64]ports.WorkflowListener
	nextListen  uint64
}

type Option func(*WorkflowManager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *WorkflowManager) { m.logger = logger }
}

func WithRegistry(registry ports.NodeRegistryPort) Option {
	return func(m *WorkflowManager) { m.registry = registry }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *WorkflowManager) { m.metrics = metrics }
}

func WithEngineConfig(config domain.EngineConfig) Option {
	return func(m *WorkflowManager) { m.config = config }
}

func WithInspectorFactory(factory ports.InspectorFactory) Option {
	return func(m *WorkflowManager) { m.inspectors = factory }
}

func WithWorkflowName(name string) Option {
	return func(m *WorkflowManager) { m.name = name }
}

func WithWorkflowID(id domain.NodeID) Option {
	return func(m *WorkflowManager) { m.id = id }
}

func NewWorkflowManager(opts ...Option) *WorkflowManager {
	m := &WorkflowManager{
		id:          domain.RootID,
		name:        "workflow",
		config:      domain.DefaultEngineConfig(),
		containers:  make(map[domain.NodeID]*NodeContainer),
		nextSuffix:  1,
		connections: make(map[domain.ConnectionID]*ConnectionModel),
		runs:        make(map[uint64]context.CancelFunc),
		listeners:   make(map[uint64]ports.WorkflowListener),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.config.WorkerCount <= 0 {
		m.config.WorkerCount = 1
	}
	m.logger = m.logger.With("component", "workflow-manager", "workflow_id", m.id.String())
	m.dag = NewDAGManager(m.logger)
	return m
}

func (m *WorkflowManager) ID() domain.NodeID { return m.id }
func (m *WorkflowManager) Name() string      { return m.name }

// Parent returns the enclosing workflow of a sub-workflow.
func (m *WorkflowManager) Parent() (*WorkflowManager, bool) {
	return m.parent, m.parent != nil
}

func (m *WorkflowManager) lock() {
	m.mu.Lock()
}

// unlock releases mu, delivers the collected events and, for a nested
// workflow whose boundary outputs changed, refreshes its container in the
// enclosing workflow. The parent is only locked after mu is released.
func (m *WorkflowManager) unlock() {
	events := m.pending
	m.pending = nil
	stale := m.outputsStale && m.parent != nil
	m.outputsStale = false
	m.mu.Unlock()
	m.deliver(events)
	if stale {
		m.parent.refreshSubWorkflow(m.id)
	}
}

// unlockForParent is unlock for calls made by the enclosing workflow while
// it holds its own lock. The parent already accounts for the change.
func (m *WorkflowManager) unlockForParent() {
	m.outputsStale = false
	m.unlock()
}

// markOutputsLocked flags the boundary outputs as stale when any of ids
// feeds an output port.
func (m *WorkflowManager) markOutputsLocked(ids []domain.NodeID) {
	if m.parent == nil || len(ids) == 0 {
		return
	}
	touched := make(map[domain.NodeID]bool, len(ids))
	for _, id := range ids {
		touched[id] = true
	}
	for _, conn := range m.connections {
		if conn.Dest() == m.id && touched[conn.Source()] {
			m.outputsStale = true
			return
		}
	}
}

// refreshSubWorkflow resets the container of a nested workflow whose
// outputs changed, together with everything downstream of it, and
// configures them again. The nested workflow itself is left as it is.
func (m *WorkflowManager) refreshSubWorkflow(id domain.NodeID) {
	m.lock()
	defer m.unlock()

	if m.closed {
		return
	}
	c, ok := m.lookup(id)
	if !ok || c.InProgress() {
		return
	}
	all := m.withDescendantsLocked([]domain.NodeID{id})
	for _, nid := range all {
		n, ok := m.lookup(nid)
		if !ok {
			continue
		}
		before := n.State()
		if nid == id {
			n.resetState()
		} else {
			n.reset()
		}
		m.track(n, before)
	}
	m.markOutputsLocked(all)
	m.configureNodesLocked(all)
	m.logger.Debug("sub-workflow outputs changed", "node_id", id, "affected", len(all))
}

func (m *WorkflowManager) deliver(events []domain.WorkflowEvent) {
	m.forwardMu.Lock()
	if len(m.forwarded) > 0 {
		events = append(m.forwarded, events...)
		m.forwarded = nil
	}
	m.forwardMu.Unlock()
	if len(events) == 0 {
		return
	}

	m.listenersMu.RLock()
	ids := make([]uint64, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]ports.WorkflowListener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, m.listeners[id])
	}
	m.listenersMu.RUnlock()

	for _, event := range events {
		for _, l := range listeners {
			l.OnWorkflowEvent(event)
		}
	}
}

// forward relays events of a nested workflow. If this workflow is mid
// mutation they wait for its unlock, otherwise they go out immediately.
func (m *WorkflowManager) forward(event domain.WorkflowEvent) {
	m.forwardMu.Lock()
	m.forwarded = append(m.forwarded, event)
	m.forwardMu.Unlock()

	if m.mu.TryLock() {
		m.mu.Unlock()
		m.deliver(nil)
	}
}

func (m *WorkflowManager) emit(event domain.WorkflowEvent) {
	event.WorkflowID = m.id
	event.Timestamp = time.Now()
	m.pending = append(m.pending, event)
}

// track records a state change of c made while holding the lock.
func (m *WorkflowManager) track(c *NodeContainer, before domain.NodeState) {
	status := c.Status()
	if status.State == before {
		return
	}
	m.metrics.recordTransition(status.State)
	m.logger.Debug("node state changed", "node_id", c.id, "from", before.String(), "to", status.State.String())
	m.emit(domain.WorkflowEvent{
		Type:     domain.EventNodeStateChanged,
		NodeID:   c.id,
		OldState: before,
		NewState: status.State,
		Message:  status.Message,
	})
}

// AddListener registers l and returns a function removing it again.
func (m *WorkflowManager) AddListener(l ports.WorkflowListener) func() {
	m.listenersMu.Lock()
	id := m.nextListen
	m.nextListen++
	m.listeners[id] = l
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

func (m *WorkflowManager) lookup(id domain.NodeID) (*NodeContainer, bool) {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()
	c, ok := m.containers[id]
	return c, ok
}

// Node returns the container with the given id, searching nested workflows
// for deeper ids.
func (m *WorkflowManager) Node(id domain.NodeID) (*NodeContainer, bool) {
	if c, ok := m.lookup(id); ok {
		return c, true
	}
	if !id.IsDescendantOf(m.id) {
		return nil, false
	}
	for cur := id; cur.Depth() > m.id.Depth()+1; {
		parent, _ := cur.Parent()
		if parent.Depth() == m.id.Depth()+1 {
			if c, ok := m.lookup(parent); ok && c.sub != nil {
				return c.sub.Node(id)
			}
			return nil, false
		}
		cur = parent
	}
	return nil, false
}

func (m *WorkflowManager) NodeIDs() []domain.NodeID {
	m.tableMu.RLock()
	ids := make([]domain.NodeID, 0, len(m.containers))
	for id := range m.containers {
		ids = append(ids, id)
	}
	m.tableMu.RUnlock()
	domain.SortNodeIDs(ids)
	return ids
}

func (m *WorkflowManager) Connections() []domain.Connection {
	m.lock()
	defer m.unlock()
	return m.connectionsLocked()
}

func (m *WorkflowManager) connectionsLocked() []domain.Connection {
	out := make([]domain.Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		out = append(out, conn.Connection())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dest != out[j].Dest {
			return domain.CompareNodeIDs(out[i].Dest, out[j].Dest) < 0
		}
		return out[i].DestPort < out[j].DestPort
	})
	return out
}

func (m *WorkflowManager) Connection(id domain.ConnectionID) (domain.Connection, bool) {
	m.lock()
	defer m.unlock()
	conn, ok := m.connections[id]
	if !ok {
		return domain.Connection{}, false
	}
	return conn.Connection(), true
}

func (m *WorkflowManager) UIInfo() *domain.UIInfo {
	m.lock()
	defer m.unlock()
	return m.uiInfo.Clone()
}

func (m *WorkflowManager) SetUIInfo(info *domain.UIInfo) {
	m.lock()
	defer m.unlock()
	m.uiInfo = info.Clone()
}

func closedError(op string) error {
	return &domain.Error{Kind: domain.KindInvalidState, Op: op, Message: "workflow is closed", Err: domain.ErrClosed}
}

type nodeOptions struct {
	suffix  int
	name    string
	factory string
	uiInfo  *domain.UIInfo
}

type NodeOption func(*nodeOptions)

// WithSuffix pins the node's index within the workflow; loaders use it to
// keep persisted ids.
func WithSuffix(suffix int) NodeOption {
	return func(o *nodeOptions) { o.suffix = suffix }
}

func WithNodeName(name string) NodeOption {
	return func(o *nodeOptions) { o.name = name }
}

func WithFactoryName(factory string) NodeOption {
	return func(o *nodeOptions) { o.factory = factory }
}

func WithNodeUIInfo(info *domain.UIInfo) NodeOption {
	return func(o *nodeOptions) { o.uiInfo = info }
}

// AddNode wraps model in a new container and configures it.
func (m *WorkflowManager) AddNode(model ports.NodeModel, opts ...NodeOption) (domain.NodeID, error) {
	const op = "add_node"
	if model == nil {
		return "", domain.NewStructuralError(op, "model is nil", domain.ErrInvalidInput)
	}

	m.lock()
	defer m.unlock()

	c, err := m.addContainerLocked(op, model, opts)
	if err != nil {
		return "", err
	}
	m.configureLocked([]domain.NodeID{c.id})
	return c.id, nil
}

// CreateNode instantiates a registered factory and adds the result.
func (m *WorkflowManager) CreateNode(factoryName string, opts ...NodeOption) (domain.NodeID, error) {
	if m.registry == nil {
		return "", domain.NewStructuralError("create_node", "no node registry configured", nil)
	}
	model, err := m.registry.CreateNode(factoryName)
	if err != nil {
		return "", domain.NewStructuralError("create_node", "unknown factory "+factoryName, err)
	}
	opts = append([]NodeOption{WithNodeName(factoryName)}, opts...)
	return m.AddNode(model, append(opts, WithFactoryName(factoryName))...)
}

// AddSubWorkflow adds a container holding a nested workflow whose boundary
// ports are fixed by in and out.
func (m *WorkflowManager) AddSubWorkflow(in, out []domain.WorkflowPortTemplate, opts ...NodeOption) (*WorkflowManager, domain.NodeID, error) {
	const op = "add_sub_workflow"
	m.lock()
	defer m.unlock()

	if m.closed {
		return nil, "", closedError(op)
	}

	var o nodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	id, err := m.allocateSuffixLocked(op, o.suffix)
	if err != nil {
		return nil, "", err
	}
	name := o.name
	if name == "" {
		name = "Sub Workflow"
	}

	child := NewWorkflowManager(
		WithWorkflowID(id),
		WithWorkflowName(name),
		WithLogger(m.logger),
		WithRegistry(m.registry),
		WithMetrics(m.metrics),
		WithEngineConfig(m.config),
		WithInspectorFactory(m.inspectors),
	)
	child.parent = m
	child.setBoundary(in, out)
	child.AddListener(ports.WorkflowListenerFunc(m.forward))

	c, err := m.addContainerLocked(op, &SubWorkflowNode{workflow: child}, append(opts, WithSuffix(id.Index()), WithNodeName(name)))
	if err != nil {
		return nil, "", err
	}
	c.sub = child
	m.configureLocked([]domain.NodeID{c.id})
	return child, c.id, nil
}

func (m *WorkflowManager) allocateSuffixLocked(op string, suffix int) (domain.NodeID, error) {
	if suffix <= 0 {
		suffix = m.nextSuffix
	}
	id := m.id.Child(suffix)
	if _, exists := m.lookup(id); exists {
		return "", domain.NewStructuralError(op, "node id "+id.String()+" is already in use", nil)
	}
	if suffix >= m.nextSuffix {
		m.nextSuffix = suffix + 1
	}
	return id, nil
}

func (m *WorkflowManager) addContainerLocked(op string, model ports.NodeModel, opts []NodeOption) (*NodeContainer, error) {
	if m.closed {
		return nil, closedError(op)
	}

	var o nodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	id, err := m.allocateSuffixLocked(op, o.suffix)
	if err != nil {
		return nil, err
	}

	c := newNodeContainer(id, model, m.lookup, m.inspectors)
	c.name = o.name
	if c.name == "" {
		c.name = fmt.Sprintf("Node %d", id.Index())
	}
	c.factory = o.factory
	c.uiInfo = o.uiInfo.Clone()

	if err := m.dag.AddNode(id); err != nil {
		return nil, domain.NewStructuralError(op, "failed to register node", err).WithNode(id)
	}
	m.tableMu.Lock()
	m.containers[id] = c
	count := len(m.containers)
	m.tableMu.Unlock()

	m.metrics.setNodeCount(m.id, count)
	m.emit(domain.WorkflowEvent{Type: domain.EventNodeAdded, NodeID: id, NewState: domain.StateIdle})
	m.logger.Debug("node added", "node_id", id, "name", c.name, "factory", c.factory)
	return c, nil
}

func (m *WorkflowManager) AddConnection(ctx context.Context, source domain.NodeID, sourcePort int, dest domain.NodeID, destPort int) (domain.Connection, error) {
	return m.AddConnectionWithUI(ctx, source, sourcePort, dest, destPort, nil)
}

// AddConnectionWithUI validates and adds an edge, then resets and
// reconfigures the destination and everything downstream of it. A rejected
// request leaves the workflow untouched.
func (m *WorkflowManager) AddConnectionWithUI(ctx context.Context, source domain.NodeID, sourcePort int, dest domain.NodeID, destPort int, ui *domain.UIInfo) (domain.Connection, error) {
	const op = "add_connection"
	if err := ctx.Err(); err != nil {
		return domain.Connection{}, domain.NewCancelledError(op, "request cancelled", err)
	}

	m.lock()
	defer m.unlock()

	if m.closed {
		return domain.Connection{}, closedError(op)
	}

	srcType, err := m.sourcePortTypeLocked(op, source, sourcePort)
	if err != nil {
		return domain.Connection{}, err
	}
	dstType, err := m.destPortTypeLocked(op, dest, destPort)
	if err != nil {
		return domain.Connection{}, err
	}
	if !dstType.Accepts(srcType) {
		return domain.Connection{}, domain.NewStructuralError(op,
			fmt.Sprintf("port type %s cannot accept %s", dstType, srcType), nil).WithNode(dest)
	}

	id := domain.ConnectionID{Dest: dest, DestPort: destPort}
	if existing, ok := m.connections[id]; ok {
		return domain.Connection{}, domain.NewStructuralError(op,
			"input port already connected by "+existing.Connection().String(), nil).WithNode(dest)
	}
	if dest != m.id {
		if c, _ := m.lookup(dest); c.InProgress() {
			return domain.Connection{}, domain.NewInvalidStateError(op, "destination is executing").WithNode(dest)
		}
	}

	if source != m.id && dest != m.id {
		if err := m.dag.AddEdge(source, dest); err != nil {
			return domain.Connection{}, domain.NewStructuralError(op, "connection rejected", err).WithNode(dest)
		}
	}

	conn := newConnectionModel(m.id, source, sourcePort, dest, destPort, ui)
	m.connections[id] = conn
	value := conn.Connection()
	m.emit(domain.WorkflowEvent{Type: domain.EventConnectionAdded, NodeID: dest, Connection: &value})
	m.logger.Debug("connection added", "connection", value.String(), "kind", value.Kind.String())

	if dest == m.id {
		m.outputsStale = true
	} else {
		m.resetLocked([]domain.NodeID{dest})
	}
	return conn.Connection(), nil
}

func (m *WorkflowManager) sourcePortTypeLocked(op string, source domain.NodeID, port int) (domain.PortType, error) {
	if source == m.id {
		if port < 0 || port >= len(m.inPorts) {
			return domain.PortType{}, domain.NewStructuralError(op, fmt.Sprintf("workflow has no input port %d", port), nil)
		}
		return m.inPorts[port].Type, nil
	}
	c, ok := m.lookup(source)
	if !ok {
		return domain.PortType{}, domain.NewStructuralError(op, "unknown source node", domain.ErrNotFound).WithNode(source)
	}
	p, ok := c.OutPort(port)
	if !ok {
		return domain.PortType{}, domain.NewStructuralError(op, fmt.Sprintf("node has no output port %d", port), nil).WithNode(source)
	}
	return p.portType, nil
}

func (m *WorkflowManager) destPortTypeLocked(op string, dest domain.NodeID, port int) (domain.PortType, error) {
	if dest == m.id {
		if port < 0 || port >= len(m.outPorts) {
			return domain.PortType{}, domain.NewStructuralError(op, fmt.Sprintf("workflow has no output port %d", port), nil)
		}
		return m.outPorts[port].Type, nil
	}
	c, ok := m.lookup(dest)
	if !ok {
		return domain.PortType{}, domain.NewStructuralError(op, "unknown destination node", domain.ErrNotFound).WithNode(dest)
	}
	p, ok := c.InPort(port)
	if !ok {
		return domain.PortType{}, domain.NewStructuralError(op, fmt.Sprintf("node has no input port %d", port), nil).WithNode(dest)
	}
	return p.portType, nil
}

func (m *WorkflowManager) RemoveConnection(ctx context.Context, id domain.ConnectionID) error {
	const op = "remove_connection"
	if err := ctx.Err(); err != nil {
		return domain.NewCancelledError(op, "request cancelled", err)
	}

	m.lock()
	defer m.unlock()

	if m.closed {
		return closedError(op)
	}
	conn, ok := m.connections[id]
	if !ok {
		return domain.NewNotFoundError(op, "no connection into "+id.String())
	}
	if conn.Dest() != m.id {
		if c, _ := m.lookup(conn.Dest()); c.InProgress() {
			return domain.NewInvalidStateError(op, "destination is executing").WithNode(conn.Dest())
		}
		m.resetLocked([]domain.NodeID{conn.Dest()}, withoutReconfigure)
	}
	m.removeConnectionLocked(conn)
	if conn.Dest() != m.id {
		m.configureLocked([]domain.NodeID{conn.Dest()})
	}
	return nil
}

func (m *WorkflowManager) removeConnectionLocked(conn *ConnectionModel) {
	if conn.isNodeToNode() {
		if err := m.dag.RemoveEdge(conn.Source(), conn.Dest()); err != nil {
			m.logger.Warn("failed to remove dependency edge", "connection", conn.Connection().String(), "error", err)
		}
	}
	delete(m.connections, conn.ID())
	if conn.Dest() == m.id {
		m.outputsStale = true
	}
	value := conn.Connection()
	m.emit(domain.WorkflowEvent{Type: domain.EventConnectionRemoved, NodeID: conn.Dest(), Connection: &value})
}

// RemoveNodesAndConnections removes the given nodes, every connection
// touching them and the given connections as one mutation. Everything is
// validated first, so an unknown id removes nothing.
func (m *WorkflowManager) RemoveNodesAndConnections(ctx context.Context, nodeIDs []domain.NodeID, connectionIDs []domain.ConnectionID) error {
	const op = "remove_nodes_and_connections"
	if err := ctx.Err(); err != nil {
		return domain.NewCancelledError(op, "request cancelled", err)
	}

	m.lock()
	defer m.unlock()

	if m.closed {
		return closedError(op)
	}

	removed := make(map[domain.NodeID]*NodeContainer, len(nodeIDs))
	for _, id := range nodeIDs {
		c, ok := m.lookup(id)
		if !ok {
			return domain.NewNotFoundError(op, "unknown node").WithNode(id)
		}
		if c.InProgress() {
			return domain.NewInvalidStateError(op, "node is executing").WithNode(id)
		}
		removed[id] = c
	}

	doomed := make(map[domain.ConnectionID]*ConnectionModel)
	for _, cid := range connectionIDs {
		conn, ok := m.connections[cid]
		if !ok {
			return domain.NewNotFoundError(op, "no connection into "+cid.String())
		}
		doomed[cid] = conn
	}
	for cid, conn := range m.connections {
		for id := range removed {
			if conn.touches(id) {
				doomed[cid] = conn
			}
		}
	}

	var affected []domain.NodeID
	seen := make(map[domain.NodeID]bool)
	for _, conn := range doomed {
		dest := conn.Dest()
		if dest == m.id || removed[dest] != nil || seen[dest] {
			continue
		}
		seen[dest] = true
		affected = append(affected, dest)
	}
	domain.SortNodeIDs(affected)
	m.resetLocked(affected, withoutReconfigure)

	for _, conn := range doomed {
		m.removeConnectionLocked(conn)
	}

	ids := make([]domain.NodeID, 0, len(removed))
	for id := range removed {
		ids = append(ids, id)
	}
	domain.SortNodeIDs(ids)
	for _, id := range ids {
		m.removeContainerLocked(removed[id])
	}

	m.configureLocked(affected)
	m.logger.Debug("nodes and connections removed", "nodes", len(ids), "connections", len(doomed))
	return nil
}

func (m *WorkflowManager) removeContainerLocked(c *NodeContainer) {
	c.closeInspectors()
	before := c.State()
	c.reset()
	if c.sub != nil {
		_ = c.sub.Close()
	}
	if err := m.dag.RemoveNode(c.id); err != nil {
		m.logger.Warn("failed to remove node from dependency graph", "node_id", c.id, "error", err)
	}

	m.tableMu.Lock()
	delete(m.containers, c.id)
	count := len(m.containers)
	m.tableMu.Unlock()

	m.metrics.setNodeCount(m.id, count)
	m.emit(domain.WorkflowEvent{Type: domain.EventNodeRemoved, NodeID: c.id, OldState: before, NewState: domain.StateIdle})
}

// Configure recomputes output specs of the given nodes, or of all nodes,
// and of everything downstream of them. Configuration failures stay on the
// failing node and are reported through its state and message.
func (m *WorkflowManager) Configure(ctx context.Context, ids ...domain.NodeID) error {
	const op = "configure"
	if err := ctx.Err(); err != nil {
		return domain.NewCancelledError(op, "request cancelled", err)
	}

	m.lock()
	defer m.unlock()

	if m.closed {
		return closedError(op)
	}
	targets, err := m.resolveLocked(op, ids)
	if err != nil {
		return err
	}
	m.configureLocked(targets)
	return nil
}

// configureLocked configures ids and their descendants in dependency order,
// skipping nodes that are not in a configurable state.
func (m *WorkflowManager) configureLocked(ids []domain.NodeID) {
	m.configureNodesLocked(m.withDescendantsLocked(ids))
}

func (m *WorkflowManager) configureNodesLocked(ids []domain.NodeID) {
	if len(ids) == 0 {
		return
	}
	for _, id := range m.dag.TopologicalOrder(ids...) {
		c, ok := m.lookup(id)
		if !ok {
			continue
		}
		before := c.State()
		if !before.Configurable() {
			continue
		}
		if err := c.configure(m.inputSpecsLocked(c)); err != nil {
			m.logger.Warn("node configuration failed", "node_id", id, "error", err)
		}
		m.track(c, before)
	}
}

// Reset moves the given nodes, or all nodes, and everything downstream of
// them back to IDLE, then reconfigures them. No downstream node is left
// EXECUTED once Reset returns.
func (m *WorkflowManager) Reset(ctx context.Context, ids ...domain.NodeID) error {
	const op = "reset"
	if err := ctx.Err(); err != nil {
		return domain.NewCancelledError(op, "request cancelled", err)
	}

	m.lock()
	defer m.unlock()

	if m.closed {
		return closedError(op)
	}
	targets, err := m.resolveLocked(op, ids)
	if err != nil {
		return err
	}
	m.resetLocked(targets)
	return nil
}

type resetMode int

const (
	withReconfigure resetMode = iota
	withoutReconfigure
)

func (m *WorkflowManager) resetLocked(ids []domain.NodeID, mode ...resetMode) {
	if len(ids) == 0 {
		return
	}
	all := m.withDescendantsLocked(ids)
	for _, id := range all {
		c, ok := m.lookup(id)
		if !ok {
			continue
		}
		before := c.State()
		c.reset()
		m.track(c, before)
	}
	m.markOutputsLocked(all)
	if len(mode) == 0 || mode[0] == withReconfigure {
		m.configureNodesLocked(all)
	}
}

func (m *WorkflowManager) resetAll() {
	m.lock()
	defer m.unlockForParent()
	m.resetLocked(m.NodeIDs())
}

func (m *WorkflowManager) resolveLocked(op string, ids []domain.NodeID) ([]domain.NodeID, error) {
	if len(ids) == 0 {
		return m.NodeIDs(), nil
	}
	for _, id := range ids {
		if _, ok := m.lookup(id); !ok {
			return nil, domain.NewNotFoundError(op, "unknown node").WithNode(id)
		}
	}
	return ids, nil
}

func (m *WorkflowManager) withDescendantsLocked(ids []domain.NodeID) []domain.NodeID {
	seen := make(map[domain.NodeID]bool)
	var out []domain.NodeID
	add := func(id domain.NodeID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range ids {
		add(id)
		for _, d := range m.dag.Descendants(id) {
			add(d)
		}
	}
	domain.SortNodeIDs(out)
	return out
}

func (m *WorkflowManager) inputSpecsLocked(c *NodeContainer) []domain.PortObjectSpec {
	specs := make([]domain.PortObjectSpec, len(c.inPorts))
	for i := range c.inPorts {
		conn, ok := m.connections[domain.ConnectionID{Dest: c.id, DestPort: i}]
		if !ok {
			continue
		}
		if conn.Source() == m.id {
			specs[i] = m.boundaryInSpecs[conn.SourcePort()]
			continue
		}
		if src, ok := m.lookup(conn.Source()); ok {
			specs[i] = src.PortObjectSpec(conn.SourcePort())
		}
	}
	return specs
}

func (m *WorkflowManager) inputObjectsLocked(c *NodeContainer) []domain.PortObject {
	objects := make([]domain.PortObject, len(c.inPorts))
	for i := range c.inPorts {
		conn, ok := m.connections[domain.ConnectionID{Dest: c.id, DestPort: i}]
		if !ok {
			continue
		}
		if conn.Source() == m.id {
			objects[i] = m.boundaryInObjects[conn.SourcePort()]
			continue
		}
		if src, ok := m.lookup(conn.Source()); ok {
			objects[i] = src.PortObject(conn.SourcePort())
		}
	}
	return objects
}

func (m *WorkflowManager) NodeStatus(ctx context.Context, id domain.NodeID) (domain.NodeStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.NodeStatus{}, domain.NewCancelledError("node_status", "request cancelled", err)
	}
	c, ok := m.Node(id)
	if !ok {
		return domain.NodeStatus{}, domain.NewNotFoundError("node_status", "unknown node").WithNode(id)
	}
	return c.Status(), nil
}

// Snapshot lists every node of this workflow and of nested workflows.
func (m *WorkflowManager) Snapshot() []domain.NodeStatus {
	var out []domain.NodeStatus
	for _, id := range m.NodeIDs() {
		c, ok := m.lookup(id)
		if !ok {
			continue
		}
		out = append(out, c.Status())
		if c.sub != nil {
			out = append(out, c.sub.Snapshot()...)
		}
	}
	return out
}

// RestoreExecuted marks a configured node EXECUTED with persisted outputs.
// Every upstream node has to be EXECUTED already.
func (m *WorkflowManager) RestoreExecuted(id domain.NodeID, outputs []domain.PortObject) error {
	const op = "restore"
	m.lock()
	defer m.unlock()

	c, ok := m.lookup(id)
	if !ok {
		return domain.NewNotFoundError(op, "unknown node").WithNode(id)
	}
	for i, obj := range m.inputObjectsLocked(c) {
		if obj == nil && !c.inPorts[i].portType.Optional {
			return domain.NewLoadError(op, fmt.Sprintf("input port %d is not available", i), nil).WithNode(id)
		}
	}

	inputs := m.inputObjectsLocked(c)
	before := c.State()
	err := c.restore(outputs)
	m.track(c, before)
	if err != nil {
		return err
	}
	if c.sub != nil {
		// nested nodes restored afterwards read these
		if err := c.sub.SetBoundaryInputs(inputs); err != nil {
			return domain.NewLoadError(op, "failed to feed nested workflow", err).WithNode(id)
		}
	}
	m.configureNodesLocked(m.dag.Children(id))
	return nil
}

// ExecutionOrder lists the nodes of this workflow in topological order.
func (m *WorkflowManager) ExecutionOrder() []domain.NodeID {
	m.lock()
	defer m.unlock()
	if m.dag.Size() == 0 {
		return nil
	}
	return m.dag.TopologicalOrder()
}

// Cancel aborts every execution currently running in this workflow.
func (m *WorkflowManager) Cancel() {
	m.lock()
	cancels := make([]context.CancelFunc, 0, len(m.runs))
	for _, cancel := range m.runs {
		cancels = append(cancels, cancel)
	}
	m.unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Close cancels running executions, releases every inspector and closes
// nested workflows. Further mutations fail.
func (m *WorkflowManager) Close() error {
	m.Cancel()

	m.lock()
	defer m.unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	for _, id := range m.NodeIDs() {
		c, ok := m.lookup(id)
		if !ok {
			continue
		}
		c.closeInspectors()
		if c.sub != nil {
			_ = c.sub.Close()
		}
	}
	m.logger.Debug("workflow closed")
	return nil
}
