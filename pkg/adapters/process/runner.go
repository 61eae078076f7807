package process

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Spawner starts OS processes for the supervisor.
// It is an interface so the supervisor can be exercised with custom launchers.
type Spawner interface {
	Spawn(command string, args []string) (*Handle, error)
}

// Runner implements Spawner on top of os/exec.
// Every process gets a stdin pipe and a stdout pipe; stderr is forwarded.
type Runner struct {
	baseDir string
	env     []string
	stderr  io.Writer
	logger  *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithConfig applies a loaded spawn configuration.
func WithConfig(cfg Config) RunnerOption {
	return func(r *Runner) {
		r.baseDir = cfg.Dir
		r.env = cfg.Environ()
	}
}

// WithBaseDir sets the working directory for spawned processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) RunnerOption {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// WithStderr sets where the stderr of spawned processes goes. Defaults to os.Stderr.
func WithStderr(w io.Writer) RunnerOption {
	return func(r *Runner) {
		r.stderr = w
	}
}

// WithLogger sets the logger used for spawn diagnostics.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		stderr: os.Stderr,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Spawn starts command with args and returns its live handle.
// The caller owns the handle: it drains Stdout, calls Wait, and finally
// CloseOutput. Stdout and Wait may run concurrently.
func (r *Runner) Spawn(command string, args []string) (*Handle, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("spawn: empty command")
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = r.baseDir
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}
	cmd.Stderr = r.stderr
	setSysProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn %s: stdin pipe: %w", command, err)
	}
	// A plain pipe rather than StdoutPipe: Wait must not close the read end,
	// so the exit can be observed while output is still being drained.
	stdout, pw, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("spawn %s: stdout pipe: %w", command, err)
	}
	cmd.Stdout = pw

	err = cmd.Start()
	pw.Close()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("spawn %s: %w", command, err)
	}

	r.logger.Debug("process started", "command", command, "args", args, "pid", cmd.Process.Pid)

	return &Handle{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		done:   make(chan struct{}),
	}, nil
}
