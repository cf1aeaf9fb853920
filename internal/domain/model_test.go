package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	json "github.com/eleven-am/loom/internal/xjson"
)

func TestNodeID_Hierarchy(t *testing.T) {
	child := RootID.Child(3)
	grandchild := child.Child(1)

	assert.Equal(t, NodeID("0:3"), child)
	assert.Equal(t, NodeID("0:3:1"), grandchild)
	assert.Equal(t, 1, grandchild.Index())
	assert.Equal(t, 3, grandchild.Depth())
	assert.True(t, grandchild.IsDescendantOf(RootID))
	assert.True(t, grandchild.IsDescendantOf(child))
	assert.False(t, NodeID("0:31").IsDescendantOf(child))

	parent, ok := grandchild.Parent()
	require.True(t, ok)
	assert.Equal(t, child, parent)

	_, ok = RootID.Parent()
	assert.False(t, ok)
}

func TestParseNodeID(t *testing.T) {
	id, err := ParseNodeID("0:2:7")
	require.NoError(t, err)
	assert.Equal(t, NodeID("0:2:7"), id)

	for _, bad := range []string{"", "0::1", "0:a", "0:-1"} {
		_, err := ParseNodeID(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestNodeStateTransitions(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateConfigured))
	assert.True(t, CanTransition(StateConfigured, StateQueued))
	assert.True(t, CanTransition(StateQueued, StateExecuting))
	assert.True(t, CanTransition(StateExecuting, StateExecuted))
	assert.True(t, CanTransition(StateExecuting, StateFailed))

	assert.False(t, CanTransition(StateIdle, StateExecuting))
	assert.False(t, CanTransition(StateConfigured, StateExecuted))
	assert.False(t, CanTransition(StateExecuted, StateQueued))

	for state := StateIdle; state <= StateFailed; state++ {
		assert.True(t, CanTransition(state, StateIdle), state.String())
	}
}

func TestNodeStateText(t *testing.T) {
	data, err := json.Marshal(NodeStatus{ID: "0:1", State: StateConfigureFailed})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"CONFIGURE_FAILED"`)

	var status NodeStatus
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, StateConfigureFailed, status.State)

	_, err = ParseNodeState("sleeping")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.True(t, StateExecuting.InProgress())
	assert.False(t, StateQueued.InProgress())
}

func TestPortTypeAccepts(t *testing.T) {
	assert.True(t, PortTypeTable.Accepts(PortTypeTable))
	assert.True(t, PortTypeAny.Accepts(PortTypeModel))
	assert.False(t, PortTypeTable.Accepts(PortTypeModel))
	assert.True(t, PortTypeTable.Accepts(PortTypeTable.AsOptional()))
	assert.Equal(t, "table?", PortTypeTable.AsOptional().String())
}

func TestClassifyConnection(t *testing.T) {
	wf := RootID
	assert.Equal(t, ConnectionStandard, ClassifyConnection(wf, "0:1", "0:2"))
	assert.Equal(t, ConnectionBoundaryIn, ClassifyConnection(wf, wf, "0:2"))
	assert.Equal(t, ConnectionBoundaryOut, ClassifyConnection(wf, "0:1", wf))
	assert.Equal(t, ConnectionBoundaryThrough, ClassifyConnection(wf, wf, wf))
}

func TestConnectionTemplate(t *testing.T) {
	ui := &UIInfo{ClassName: "bendpoints", Data: json.RawMessage(`{"points":[1,2]}`)}
	template := NewConnectionTemplate(BoundarySuffix, 0, 4, 1, ui)

	ui.Data[0] = 'X'
	assert.Equal(t, byte('{'), template.UIInfo().Data[0])
	assert.Equal(t, ConnectionBoundaryIn, template.Kind())
	assert.Equal(t, "[-1(0) -> 4( 1)]", template.String())
	assert.False(t, template.Corrected())

	corrected := template.WithDestPort(0)
	assert.Equal(t, 0, corrected.DestPort())
	assert.True(t, corrected.Corrected())
	assert.Equal(t, 1, template.DestPort())

	source, dest := corrected.Resolve("0:5")
	assert.Equal(t, NodeID("0:5"), source)
	assert.Equal(t, NodeID("0:5:4"), dest)
}

func TestConnectionTemplateFrom(t *testing.T) {
	c := Connection{Source: "0:2", SourcePort: 1, Dest: RootID, DestPort: 0}
	template := ConnectionTemplateFrom(RootID, c)

	assert.Equal(t, TemplateKey{SourceSuffix: 2, SourcePort: 1, DestSuffix: BoundarySuffix, DestPort: 0}, template.Key())
	assert.Equal(t, ConnectionBoundaryOut, template.Kind())
}

func TestLoadResult_Nesting(t *testing.T) {
	child := NewLoadResult()
	child.AddError("node 0:1:2 failed to load")
	child.AddError("connection [1(0) -> 2( 0)] dropped")

	result := NewLoadResult()
	assert.False(t, result.HasErrors())

	result.AddError("table t-1 unreadable")
	result.AddNested("Sub Workflow (0:1)", child)
	result.AddNested("Clean (0:2)", NewLoadResult())

	assert.True(t, result.HasErrors())
	assert.Equal(t, 2, result.Len())
	assert.Equal(t,
		"table t-1 unreadable\n"+
			"Sub Workflow (0:1)\n"+
			"  node 0:1:2 failed to load\n"+
			"  connection [1(0) -> 2( 0)] dropped\n",
		result.String())
}

func TestLoadResult_Merge(t *testing.T) {
	a := NewLoadResult()
	a.AddError("one")
	b := NewLoadResult()
	b.AddError("two")

	a.Merge(b)
	a.Merge(a)
	assert.Equal(t, []string{"one", "two"}, a.Entries())
}

func TestMergeSettings(t *testing.T) {
	merged, err := MergeSettings(json.RawMessage(`{"limit":10,"column":"a"}`), json.RawMessage(`{"limit":25}`))
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(merged, &out))
	assert.Equal(t, float64(25), out["limit"])
	assert.Equal(t, "a", out["column"])

	replaced, err := MergeSettings(json.RawMessage(`{"limit":10}`), json.RawMessage(`[1,2]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(replaced))

	same, err := MergeSettings(nil, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(same))

	_, err = MergeSettings(json.RawMessage(`{`), json.RawMessage(`{"a":1}`))
	assert.Error(t, err)
}

func TestWorkflowRecordKey(t *testing.T) {
	assert.Equal(t, "workflow:record:etl", WorkflowRecordKey("etl"))
}

func TestSortNodeIDs(t *testing.T) {
	ids := []NodeID{"0:10", "0:2", "0:2:1", "0:1"}
	SortNodeIDs(ids)
	assert.Equal(t, []NodeID{"0:1", "0:2", "0:2:1", "0:10"}, ids)
	assert.Equal(t, 0, CompareNodeIDs("0:3", "0:3"))
}
