package state

import "supvisors/pkg/types"

// NodeStatus is the per-node liveness record: state, clocks, current
// load, and this node's view of its own process map. Created when its
// identifier appears in configuration; never deleted (§3).
type NodeStatus struct {
	Identifier string
	// Sequence is this node's configuration-order index, used as the
	// CONFIG placement tie-break order and for master-election display.
	Sequence int

	State types.NodeState

	RemoteTime int64 // seconds, Unix epoch, as reported by the peer
	LocalTime  int64 // seconds, Unix epoch, as observed locally

	// Load is the sum of ExpectedLoad over processes whose aggregate
	// state is RUNNING/STARTING and that run on this node (invariant 3).
	Load int

	// StateChangedAt is the local Unix time of the last State transition,
	// used by Context.OnTimer to time the SILENT→ISOLATING→ISOLATED chain.
	StateChangedAt int64
}

// NewNodeStatus creates a node in its initial UNKNOWN state.
func NewNodeStatus(identifier string, sequence int) *NodeStatus {
	return &NodeStatus{
		Identifier: identifier,
		Sequence:   sequence,
		State:      types.NodeUnknown,
	}
}

func (n *NodeStatus) touch(remoteTime, localTime int64) {
	n.RemoteTime = remoteTime
	n.LocalTime = localTime
}

func (n *NodeStatus) transition(to types.NodeState, now int64) {
	if n.State == to {
		return
	}
	n.State = to
	n.StateChangedAt = now
}

// Running reports whether this node currently counts toward membership
// (eligible for master election and placement).
func (n *NodeStatus) Running() bool {
	return n.State == types.NodeRunning
}

// Isolated reports whether this node is terminally excluded for the
// current run.
func (n *NodeStatus) Isolated() bool {
	return n.State == types.NodeIsolated
}
