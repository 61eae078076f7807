/*
Package supervisor builds and supervises a tree of OS processes connected by pipes.

One input source (the master) feeds bytes through a fan-out/fan-in graph of
spawned programs, like shell pipes and tees, except that a stage which dies
unexpectedly is started again in place and re-wired to its neighbours.

# Topology

The master's output goes into a Buffered Relay (see package relay). The relay
feeds the program's stdout and every stage attached directly to the master.
A stage attached to another stage reads that stage's output relay instead.
Relays created before Ready is called stay paused, so output produced while
the tree is still being assembled reaches every stage.

# Exit handling

  - Master exits with code 0, or is ended by SIGTERM/SIGKILL: coordinated shutdown
    with the master's exit code.
  - Master crashes: it is spawned again with the same command and arguments.
  - Stage ends by SIGTERM/SIGKILL, has keep-alive disabled, or the supervisor is
    shutting down: its subtree is terminated and the position is removed.
  - Any other stage exit: a replacement process takes over the same NodeID,
    keeps its children, and its output is pumped into the same relay.

# Shutdown

Shutdown ends the master's input, then terminates every node in post-order
(children before parents, the master last). Wait returns once every tracked
process has been reaped.
*/
package supervisor
