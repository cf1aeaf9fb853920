package bridge

import (
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Capability is what a target declares it can serve.
type Capability uint8

const (
	CapabilitySync Capability = 1 << iota
	CapabilityAsync
)

func (c Capability) String() string {
	switch c {
	case CapabilitySync:
		return "sync"
	case CapabilityAsync:
		return "async"
	case CapabilitySync | CapabilityAsync:
		return "dual"
	default:
		return "none"
	}
}

// Target is a dispatch destination tagged at construction with the forms it
// supports. The bridge switches on the tag, never on the target's type.
type Target struct {
	name       string
	capability Capability
	sync       ports.WorkflowOps
	async      ports.AsyncWorkflowOps
}

func SyncTarget(name string, ops ports.WorkflowOps) Target {
	return Target{name: name, capability: CapabilitySync, sync: ops}
}

func AsyncTarget(name string, ops ports.AsyncWorkflowOps) Target {
	return Target{name: name, capability: CapabilityAsync, async: ops}
}

func DualTarget(name string, sync ports.WorkflowOps, async ports.AsyncWorkflowOps) Target {
	return Target{name: name, capability: CapabilitySync | CapabilityAsync, sync: sync, async: async}
}

func (t Target) Name() string               { return t.name }
func (t Target) Capability() Capability     { return t.capability }
func (t Target) Supports(c Capability) bool { return t.capability&c == c }

// Sync returns the synchronous form. An async-only target fails with a
// UseAsync error instead of emulating the call.
func (t Target) Sync() (ports.WorkflowOps, error) {
	if !t.Supports(CapabilitySync) || t.sync == nil {
		return nil, domain.NewUseAsyncError(t.name)
	}
	return t.sync, nil
}

func (t Target) Async() (ports.AsyncWorkflowOps, bool) {
	if !t.Supports(CapabilityAsync) || t.async == nil {
		return nil, false
	}
	return t.async, true
}
