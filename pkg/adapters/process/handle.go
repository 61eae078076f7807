package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/aretw0/manifold/pkg/domain"
)

// Handle is the exclusive reference to one live OS process.
type Handle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File

	waitOnce sync.Once
	status   domain.ExitStatus
	exited   atomic.Bool
	done     chan struct{}
}

// PID returns the OS process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Stdin is the write end of the process's standard input.
func (h *Handle) Stdin() io.WriteCloser {
	return h.stdin
}

// Stdout is the read end of the process's standard output.
func (h *Handle) Stdout() io.Reader {
	return h.stdout
}

// CloseOutput releases the read end of stdout. A pending read returns an error.
func (h *Handle) CloseOutput() error {
	err := h.stdout.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// Exited reports whether Wait has observed the process exit.
func (h *Handle) Exited() bool {
	return h.exited.Load()
}

// Done is closed once Wait has observed the process exit.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits and returns how it ended. It does not
// wait for stdout to reach EOF: helpers the process forked may still hold it.
// Wait is safe to call more than once.
func (h *Handle) Wait() domain.ExitStatus {
	h.waitOnce.Do(func() {
		err := h.cmd.Wait()
		h.status = exitStatus(h.cmd.ProcessState, err)
		h.exited.Store(true)
		close(h.done)
	})
	<-h.done
	return h.status
}

// Terminate asks the process (and its process group) to stop with SIGTERM.
// It does not wait for the exit.
func (h *Handle) Terminate() error {
	if h.Exited() {
		return nil
	}
	return signalGroup(h.cmd.Process, syscall.SIGTERM)
}

// Kill forcibly stops the process (and its process group).
func (h *Handle) Kill() error {
	if h.Exited() {
		return nil
	}
	return signalGroup(h.cmd.Process, syscall.SIGKILL)
}

// KillGroup sends SIGKILL to whatever is left in the process group, also after
// the leader has exited. Without process groups it does nothing.
func (h *Handle) KillGroup() error {
	return killGroup(h.cmd.Process.Pid)
}

func exitStatus(state *os.ProcessState, err error) domain.ExitStatus {
	if state == nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			state = exitErr.ProcessState
		}
	}
	if state == nil {
		return domain.ExitStatus{Code: -1}
	}
	status := domain.ExitStatus{Code: state.ExitCode()}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = ws.Signal()
	}
	return status
}
