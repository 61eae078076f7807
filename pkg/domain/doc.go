/*
Package domain contains the core models shared by the manifold supervisor and its adapters.

It defines the identity of a position in the pipeline tree, the way the tree is
observed from the outside, and the events emitted while processes come and go.
This package is kept pure and free of I/O so it can be imported by every
adapter (HTTP, Redis, metrics) without pulling in the supervisor itself.

# Key Entities

  - NodeID: Stable identity of a tree position. It survives respawns.
  - Origin: Whether the master is the enclosing program or a spawned process.
  - NodeInfo: A point-in-time snapshot of a node (pid, restarts, children).
  - ExitStatus: How a process ended (exit code or terminating signal).
  - LifecycleHooks: Callbacks for spawn, exit, respawn and shutdown.
*/
package domain
