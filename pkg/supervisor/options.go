package supervisor

import (
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/manifold/pkg/adapters/process"
	"github.com/aretw0/manifold/pkg/domain"
)

// Option defines a functional option for configuring the Supervisor.
type Option func(*Supervisor)

// WithSpawner sets how processes are started. Defaults to process.NewRunner().
func WithSpawner(spawner process.Spawner) Option {
	return func(s *Supervisor) {
		s.spawner = spawner
	}
}

// WithOutput sets the program output fed by the master relay. Defaults to os.Stdout.
// The supervisor never closes it.
func WithOutput(w io.Writer) Option {
	return func(s *Supervisor) {
		s.output = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Supervisor) {
		s.hooks = hooks
	}
}

// WithDrainTimeout delays the termination cascade after shutdown begins, so
// stages that received end-of-input can flush and exit on their own.
// Zero (the default) terminates immediately.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.drainTimeout = d
	}
}

// WithKillTimeout escalates SIGTERM to SIGKILL for processes still running after d.
// Zero disables escalation.
func WithKillTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.killTimeout = d
	}
}

// WithByteCounter is called with the size of every chunk leaving any relay.
func WithByteCounter(fn func(node domain.NodeID, n int)) Option {
	return func(s *Supervisor) {
		s.onBytes = fn
	}
}

// ChildOption configures a stage spawned with SpawnChild.
type ChildOption func(*childOptions)

type childOptions struct {
	keepAlive bool
	name      string
}

// WithKeepAlive controls whether an unintentional exit is respawned. Defaults to true.
func WithKeepAlive(keepAlive bool) ChildOption {
	return func(o *childOptions) {
		o.keepAlive = keepAlive
	}
}

// WithName labels the stage in snapshots and logs.
func WithName(name string) ChildOption {
	return func(o *childOptions) {
		o.name = name
	}
}
