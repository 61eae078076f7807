//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSysProcAttr puts each stage in its own process group, so a terminal
// interrupt reaches only the supervisor and group signals reach helpers a stage forks.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers sig to the whole process group led by p,
// falling back to the process itself.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if err := unix.Kill(-p.Pid, sig); err == nil {
		return nil
	}
	return p.Signal(sig)
}

// killGroup kills the group led by pid. The group outlives its leader while
// members remain; ESRCH means nothing is left.
func killGroup(pid int) error {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
