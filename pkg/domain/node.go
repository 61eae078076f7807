package domain

import "strconv"

// NodeID identifies a position in the process tree.
// The ID stays the same when the process behind it is respawned.
type NodeID uint64

// RootID is the fixed slot of the master node. It exists before a master is
// registered so that stages can be attached to it early.
const RootID NodeID = 1

func (id NodeID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Origin tells where the data flowing out of a node comes from.
type Origin string

const (
	// OriginEnclosingProgram marks a master whose output is the standard input
	// of the program running the supervisor.
	OriginEnclosingProgram Origin = "enclosing"
	// OriginSpawnedProcess marks a node backed by a process we started.
	OriginSpawnedProcess Origin = "spawned"
)

// NodeState is the lifecycle state of a node.
type NodeState string

const (
	// NodeStatePending is the master slot before registration.
	NodeStatePending NodeState = "pending"
	// NodeStateRunning means the node has a live process (or live input).
	NodeStateRunning NodeState = "running"
	// NodeStateStopping means a termination signal was sent and the exit is not yet observed.
	NodeStateStopping NodeState = "stopping"
	// NodeStateExited means the process ended and will not be replaced.
	NodeStateExited NodeState = "exited"
)

// NodeInfo is a read-only snapshot of a node, safe to hand to other goroutines.
type NodeInfo struct {
	ID        NodeID    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Parent    NodeID    `json:"parent,omitempty"`
	Origin    Origin    `json:"origin"`
	PID       int       `json:"pid,omitempty"`
	Command   string    `json:"command,omitempty"`
	Args      []string  `json:"args,omitempty"`
	KeepAlive bool      `json:"keep_alive"`
	Restarts  int       `json:"restarts"`
	State     NodeState `json:"state"`
	Children  []NodeID  `json:"children,omitempty"`
}

// IsMaster reports whether the snapshot describes the root of the tree.
func (n NodeInfo) IsMaster() bool {
	return n.ID == RootID
}

// TreeInfo is a nested view of the tree, as served by the introspection endpoint.
type TreeInfo struct {
	NodeInfo
	Stages []TreeInfo `json:"stages,omitempty"`
}
