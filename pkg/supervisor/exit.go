package supervisor

import (
	"context"
	"slices"

	"github.com/aretw0/manifold/pkg/adapters/process"
	"github.com/aretw0/manifold/pkg/domain"
)

// handleExit is the exit reaction for one process. Re-wiring after a respawn
// completes before the lock is released.
func (s *Supervisor) handleExit(id domain.NodeID, h *process.Handle, status domain.ExitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok || n.handle != h {
		return
	}
	s.live--
	n.handle = nil
	if n.killTimer != nil {
		n.killTimer.Stop()
		n.killTimer = nil
	}

	if id == domain.RootID {
		s.masterExitedLocked(n, status)
	} else {
		s.childExitedLocked(n, status)
	}
	s.maybeFinishLocked()
}

func (s *Supervisor) masterExitedLocked(n *node, status domain.ExitStatus) {
	intentional := status.Clean() || status.Terminated() || n.stopping || s.shuttingDown
	s.emitExitLocked(n, status, intentional)

	if intentional {
		s.logger.Info("master exited", "pid", n.pid, "status", status.String())
		n.state = domain.NodeStateExited
		s.beginShutdownLocked(status.ProgramCode(), "master exited with "+status.String())
		s.relay.Close()
		return
	}

	s.logger.Warn("master crashed, respawning", "pid", n.pid, "status", status.String(), "command", n.command)
	h, err := s.spawner.Spawn(n.command, n.args)
	if err != nil {
		s.logger.Error("master respawn failed", "command", n.command, "error", err)
		n.state = domain.NodeStateExited
		s.beginShutdownLocked(1, "master respawn failed")
		s.relay.Close()
		return
	}
	n.restarts++
	s.startLocked(n, h)
	s.emitRespawnLocked(n)
}

func (s *Supervisor) childExitedLocked(n *node, status domain.ExitStatus) {
	s.detachInputLocked(n)

	final := status.Terminated() || !n.keepAlive || s.shuttingDown || n.stopping
	s.emitExitLocked(n, status, final)

	if final {
		s.logger.Info("child exited", "node", n.id, "pid", n.pid, "status", status.String(), "keep_alive", n.keepAlive)
		s.retireLocked(n)
		return
	}

	s.logger.Warn("child crashed, respawning", "node", n.id, "pid", n.pid, "status", status.String(), "command", n.command)
	h, err := s.spawner.Spawn(n.command, n.args)
	if err != nil {
		s.logger.Error("child respawn failed", "node", n.id, "command", n.command, "error", err)
		s.retireLocked(n)
		return
	}
	// The output relay outlives the process, so the children stay attached
	// and now read from the replacement.
	n.restarts++
	s.startLocked(n, h)
	s.emitRespawnLocked(n)
}

// retireLocked ends a stage for good: its output is closed (end-of-stream for
// its children), its subtree is terminated, and the position leaves the tree
// once it has no children left.
func (s *Supervisor) retireLocked(n *node) {
	n.state = domain.NodeStateExited
	n.out.Close()

	// While draining, children got end-of-input above and may still flush;
	// the pending cascade terminates whatever is left.
	if !s.drainingLocked() {
		for _, c := range slices.Clone(n.children) {
			s.terminateSubtreeLocked(c)
		}
	}
	s.pruneLocked(n)
}

// pruneLocked removes exited, childless nodes walking up towards the master.
func (s *Supervisor) pruneLocked(n *node) {
	for n != nil && n.id != domain.RootID && n.state == domain.NodeStateExited && len(n.children) == 0 {
		delete(s.nodes, n.id)
		p, ok := s.nodes[n.parent]
		if !ok {
			return
		}
		p.children = slices.DeleteFunc(p.children, func(id domain.NodeID) bool { return id == n.id })
		n = p
	}
}

func (s *Supervisor) detachInputLocked(n *node) {
	if src := s.sourceRelayLocked(n.parent); src != nil {
		_ = src.Detach(n.inSink)
	}
}

func (s *Supervisor) emitExitLocked(n *node, status domain.ExitStatus, final bool) {
	if s.hooks.OnExit == nil {
		return
	}
	e := s.event(domain.EventExit, n)
	e.Exit = &status
	e.Final = final
	s.hooks.OnExit(context.Background(), e)
}

func (s *Supervisor) emitRespawnLocked(n *node) {
	if s.hooks.OnRespawn != nil {
		s.hooks.OnRespawn(context.Background(), s.event(domain.EventRespawn, n))
	}
}
