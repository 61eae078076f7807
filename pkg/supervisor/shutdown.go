package supervisor

import (
	"context"
	"slices"
	"time"

	"github.com/aretw0/manifold/pkg/domain"
)

// Shutdown starts a coordinated shutdown with exit code 0. It does not block;
// use Wait or Done to learn when the tree is gone.
//
// With a drain timeout the first call ends the master's input and schedules
// the post-order termination cascade; without one the cascade runs at once.
// A later call while the drain timeout is still pending runs the cascade
// right away. Otherwise repeated calls do nothing.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown && !s.cascaded {
		s.logger.Info("shutdown requested again, skipping drain")
		s.cascadeLocked()
	}
	s.beginShutdownLocked(0, "shutdown requested")
	s.maybeFinishLocked()
}

func (s *Supervisor) beginShutdownLocked(code int, cause string) {
	if s.shuttingDown {
		return
	}
	s.shuttingDown = true
	s.exitCode = code
	s.settleLocked()
	s.logger.Info("shutting down", "cause", cause, "exit_code", code, "drain_timeout", s.drainTimeout)

	if s.hooks.OnShutdown != nil {
		s.hooks.OnShutdown(context.Background(), &domain.ShutdownEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventShutdown},
			ExitCode:  code,
			Cause:     cause,
		})
	}

	if s.drainTimeout > 0 {
		// Draining: end the master's input and its output towards the stages,
		// so they can flush before the cascade.
		s.endMasterInputLocked()
		s.drainTimer = time.AfterFunc(s.drainTimeout, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if !s.cascaded {
				s.logger.Info("drain timeout elapsed, terminating remaining processes", "live", s.live)
				s.cascadeLocked()
			}
		})
		return
	}
	s.cascadeLocked()
}

// cascadeLocked terminates the whole tree in post-order: the stages, then the
// master's input, then the master.
func (s *Supervisor) cascadeLocked() {
	s.cascaded = true
	if s.drainTimer != nil {
		s.drainTimer.Stop()
	}
	root := s.nodes[domain.RootID]
	for _, c := range slices.Clone(root.children) {
		s.terminateSubtreeLocked(c)
	}
	s.endMasterInputLocked()
	s.terminateLocked(root)
}

// endMasterInputLocked closes the master's stdin and the master relay. Both
// are idempotent and neither waits on a consumer.
func (s *Supervisor) endMasterInputLocked() {
	root := s.nodes[domain.RootID]
	if root.handle != nil {
		s.logger.Debug("closing master input", "pid", root.pid)
		_ = root.handle.Stdin().Close()
	}
	s.relay.Close()
}

// terminateSubtreeLocked walks the subtree in post-order: children first, then the node.
func (s *Supervisor) terminateSubtreeLocked(id domain.NodeID) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	for _, c := range slices.Clone(n.children) {
		s.terminateSubtreeLocked(c)
	}
	s.terminateLocked(n)
}

// terminateLocked sends SIGTERM and moves on without waiting for the exit.
// A node asked to stop is never respawned.
func (s *Supervisor) terminateLocked(n *node) {
	n.stopping = true
	if n.handle == nil {
		return
	}
	if n.state == domain.NodeStateStopping {
		return
	}
	n.state = domain.NodeStateStopping
	s.logger.Debug("terminating", "node", n.id, "pid", n.pid)
	_ = n.handle.Stdin().Close()
	if err := n.handle.Terminate(); err != nil {
		s.logger.Debug("terminate failed", "node", n.id, "pid", n.pid, "error", err)
	}
	if s.killTimeout > 0 {
		h := n.handle
		id := n.id
		n.killTimer = time.AfterFunc(s.killTimeout, func() {
			if h.Exited() {
				return
			}
			s.logger.Warn("process ignored SIGTERM, killing", "node", id, "pid", h.PID())
			_ = h.Kill()
		})
	}
}

// drainingLocked reports whether shutdown is waiting for stages to flush.
func (s *Supervisor) drainingLocked() bool {
	return s.shuttingDown && !s.cascaded
}

// maybeFinishLocked closes Done once shutdown has begun, nothing is left
// running and the program output has received the master relay's bytes.
func (s *Supervisor) maybeFinishLocked() {
	if !s.shuttingDown || s.live > 0 || s.finished {
		return
	}
	s.finished = true
	if s.drainTimer != nil {
		s.drainTimer.Stop()
	}
	s.cascaded = true
	s.relay.Close()
	s.logger.Info("all processes exited", "exit_code", s.exitCode)

	drained := s.relay.Drained()
	go func() {
		select {
		case <-drained:
		case <-time.After(flushTimeout):
			s.logger.Warn("program output did not take the last bytes in time")
		}
		close(s.done)
	}()
}
