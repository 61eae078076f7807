//go:build !unix

package process

import (
	"os"
	"os/exec"
	"syscall"
)

func setSysProcAttr(cmd *exec.Cmd) {}

// signalGroup has no process groups to work with; anything but a kill is
// unsupported on these platforms, so fall back to Kill.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if err := p.Signal(sig); err != nil {
		return p.Kill()
	}
	return nil
}

func killGroup(pid int) error { return nil }
