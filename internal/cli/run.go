package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/manifold"
	"github.com/aretw0/manifold/internal/logging"
	"github.com/aretw0/manifold/pkg/config"
	"golang.org/x/term"
)

// Exit codes of the manifold binary besides the pipeline's own.
const (
	ExitUsage  = 1
	ExitConfig = 2
)

// ErrConfigRequired is reported when --config is missing.
var ErrConfigRequired = errors.New("a pipeline config is required (--config/-c)")

// ExitError carries the process exit code for a failed command.
// A nil Err means the code is the pipeline's own and nothing is printed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	ConfigPath  string
	MetricsAddr string
	MCPAddr     string
	LogLevel    string
	LogFormat   string

	// Stdin, Stdout and Stderr default to the process streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// LoadConfig loads and validates the pipeline config, mapping failures to exit codes.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, &ExitError{Code: ExitUsage, Err: ErrConfigRequired}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &ExitError{Code: ExitConfig, Err: fmt.Errorf("failed to load %s: %w", path, err)}
	}
	return cfg, nil
}

// Execute runs the pipeline until it is gone and returns nil or an *ExitError.
func Execute(ctx context.Context, opts RunOptions) error {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}
	if opts.MCPAddr != "" {
		cfg.MCP.Addr = opts.MCPAddr
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}

	stdin, stdout, stderr := opts.Stdin, opts.Stdout, opts.Stderr
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return &ExitError{Code: ExitConfig, Err: err}
	}
	logger := logging.NewWithFormat(stderr, level, cfg.Log.Format)

	if cfg.Input.Stdin {
		if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			logger.Warn("reading pipeline input from the terminal, end it with Ctrl-D")
		}
	}

	sc := NewSignalContext(ctx)
	defer sc.Stop()

	code, err := manifold.Run(sc, cfg,
		manifold.WithLogger(logger),
		manifold.WithInput(stdin),
		manifold.WithOutput(stdout),
		manifold.WithStderr(stderr),
		manifold.WithForceContext(sc.Force),
	)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}
	if sig := sc.Signal(); sig != nil {
		logger.Info("stopped by signal", "signal", sig.String(), "exit_code", code)
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
