package domain

import (
	"fmt"
	"syscall"
)

// ExitStatus describes how a process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was ended by a signal.
	Code int `json:"code"`
	// Signal is the terminating signal, zero when the process exited on its own.
	Signal syscall.Signal `json:"signal,omitempty"`
}

// Signaled reports whether the process was ended by a signal.
func (s ExitStatus) Signaled() bool {
	return s.Signal != 0
}

// Terminated reports whether the process was ended by SIGTERM or SIGKILL.
// Such an exit is always treated as intentional.
func (s ExitStatus) Terminated() bool {
	return s.Signal == syscall.SIGTERM || s.Signal == syscall.SIGKILL
}

// Clean reports whether the process exited on its own with code 0.
func (s ExitStatus) Clean() bool {
	return !s.Signaled() && s.Code == 0
}

// ProgramCode is the code the enclosing program should exit with when this
// status ends the pipeline. Signals map to 0.
func (s ExitStatus) ProgramCode() int {
	if s.Signaled() || s.Code < 0 {
		return 0
	}
	return s.Code
}

func (s ExitStatus) String() string {
	if s.Signaled() {
		return fmt.Sprintf("signal %s", s.Signal)
	}
	return fmt.Sprintf("exit code %d", s.Code)
}
