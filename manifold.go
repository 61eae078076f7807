package manifold

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/manifold/pkg/adapters/process"
	"github.com/aretw0/manifold/pkg/config"
	"github.com/aretw0/manifold/pkg/domain"
	"github.com/aretw0/manifold/pkg/supervisor"
)

// Pipeline is one configured process tree.
// It wraps the supervisor and provides a simplified API for consumers.
type Pipeline struct {
	cfg        *config.Config
	supervisor *supervisor.Supervisor

	input   io.Reader
	output  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
	hooks   []domain.LifecycleHooks
	supOpts []supervisor.Option
	force   context.Context
}

// Option defines a functional option for configuring the Pipeline.
type Option func(*Pipeline)

// WithLifecycleHooks registers observability hooks. May be given more than once.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(p *Pipeline) {
		p.hooks = append(p.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithInput sets the data source used when the configured input is stdin. Defaults to os.Stdin.
func WithInput(r io.Reader) Option {
	return func(p *Pipeline) {
		p.input = r
	}
}

// WithOutput sets where the master's output is copied. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) {
		p.output = w
	}
}

// WithStderr sets where the stages' stderr goes. Defaults to os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(p *Pipeline) {
		p.stderr = w
	}
}

// WithForceContext skips the drain when force is cancelled during Wait: the
// remaining processes are terminated right away. Typically fed by a second interrupt.
func WithForceContext(force context.Context) Option {
	return func(p *Pipeline) {
		p.force = force
	}
}

// WithSupervisorOptions passes extra options to the underlying supervisor.
func WithSupervisorOptions(opts ...supervisor.Option) Option {
	return func(p *Pipeline) {
		p.supOpts = append(p.supOpts, opts...)
	}
}

// New prepares a pipeline for cfg. Nothing is spawned until Start.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := newPipeline(cfg, opts...)
	p.initSupervisor()
	return p
}

func newPipeline(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		input:  os.Stdin,
		output: os.Stdout,
		stderr: os.Stderr,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) initSupervisor() {
	cfg := p.cfg
	runner := process.NewRunner(
		process.WithConfig(cfg.Config),
		process.WithStderr(p.stderr),
		process.WithLogger(p.logger),
	)
	base := []supervisor.Option{
		supervisor.WithSpawner(runner),
		supervisor.WithOutput(p.output),
		supervisor.WithLogger(p.logger),
		supervisor.WithDrainTimeout(cfg.Shutdown.DrainTimeout),
		supervisor.WithKillTimeout(cfg.Shutdown.KillTimeout),
		supervisor.WithLifecycleHooks(domain.Combine(p.hooks...)),
	}
	p.supervisor = supervisor.New(append(base, p.supOpts...)...)
}

// Supervisor exposes the process tree, for introspection and control.
func (p *Pipeline) Supervisor() *supervisor.Supervisor {
	return p.supervisor
}

// Start spawns the master and every stage, then lets data flow.
func (p *Pipeline) Start() error {
	return Build(p.supervisor, p.cfg, p.input)
}

// Wait blocks until the tree is gone and returns the exit code for the program.
// Cancelling ctx shuts the tree down.
func (p *Pipeline) Wait(ctx context.Context) int {
	if p.force != nil {
		go func() {
			select {
			case <-p.force.Done():
				p.logger.Warn("forced shutdown, skipping drain")
				// Begins shutdown if needed; the second call cascades without draining.
				p.supervisor.Shutdown()
				p.supervisor.Shutdown()
			case <-p.supervisor.Done():
			}
		}()
	}
	return p.supervisor.Wait(ctx)
}

// Build registers the configured master on sup, spawns the stages depth first
// and calls Ready. input is only read when the configured input is stdin.
// On error the tree built so far is shut down.
func Build(sup *supervisor.Supervisor, cfg *config.Config, input io.Reader) error {
	if err := buildMaster(sup, cfg.Input, input); err != nil {
		sup.Shutdown()
		return err
	}
	for i, stage := range cfg.Stages() {
		if err := buildStage(sup, domain.RootID, stage); err != nil {
			sup.Shutdown()
			return fmt.Errorf("stage %d (%s): %w", i, stage.Label(), err)
		}
	}
	sup.Ready()
	return nil
}

func buildMaster(sup *supervisor.Supervisor, in config.Input, input io.Reader) error {
	if in.Stdin || in.Bin == "" {
		_, err := sup.RegisterEnclosing(input)
		return err
	}
	_, err := sup.SpawnMaster(in.Bin, in.Args)
	return err
}

func buildStage(sup *supervisor.Supervisor, parent domain.NodeID, stage config.Stage) error {
	id, err := sup.SpawnChild(parent, stage.Bin, stage.Args,
		supervisor.WithKeepAlive(stage.KeepsAlive()),
		supervisor.WithName(stage.Name),
	)
	if err != nil {
		return err
	}
	for _, next := range stage.Next() {
		if err := buildStage(sup, id, next); err != nil {
			return fmt.Errorf("%s: %w", next.Label(), err)
		}
	}
	return nil
}
