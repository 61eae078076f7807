package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/manifold/pkg/adapters/process"
	"github.com/aretw0/manifold/pkg/domain"
	"github.com/aretw0/manifold/pkg/relay"
)

// node is one position in the tree. The handle changes on respawn; everything
// else about the position stays.
type node struct {
	id        domain.NodeID
	name      string
	parent    domain.NodeID
	origin    domain.Origin
	command   string
	args      []string
	keepAlive bool

	handle *process.Handle
	pid    int
	out    *relay.Relay

	// inSink is our stdin registered as a consumer of the parent's relay.
	inSink   relay.SinkID
	children []domain.NodeID

	restarts  int
	state     domain.NodeState
	stopping  bool
	killTimer *time.Timer
}

const (
	// orphanGrace is how long output may stay open after a process exited.
	orphanGrace = 500 * time.Millisecond
	// flushTimeout bounds how long Done waits for the program output to take
	// the master relay's last bytes.
	flushTimeout = 5 * time.Second
)

// Supervisor owns the process tree. All tree state is guarded by mu, which is
// taken by the public operations and by the exit reaction of every process.
type Supervisor struct {
	mu     sync.Mutex
	nodes  map[domain.NodeID]*node
	nextID domain.NodeID
	relay  *relay.Relay

	masterRegistered bool
	outputAttached   bool
	ready            bool
	shuttingDown     bool
	cascaded         bool
	finished         bool
	exitCode         int
	live             int
	drainTimer       *time.Timer
	settled          chan struct{}
	settledClosed    bool
	done             chan struct{}

	spawner      process.Spawner
	output       io.Writer
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	drainTimeout time.Duration
	killTimeout  time.Duration
	onBytes      func(domain.NodeID, int)
}

// New creates a Supervisor with an empty master slot and a paused master relay.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		nodes:   make(map[domain.NodeID]*node),
		nextID:  domain.RootID + 1,
		settled: make(chan struct{}),
		done:    make(chan struct{}),
		output:  os.Stdout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.spawner == nil {
		s.spawner = process.NewRunner(process.WithLogger(s.logger))
	}

	s.relay = s.newRelay(domain.RootID)
	s.nodes[domain.RootID] = &node{
		id:    domain.RootID,
		out:   s.relay,
		state: domain.NodeStatePending,
	}
	return s
}

// RegisterMaster adopts an already started process as the master. Its stdout
// is pumped into the master relay and the relay feeds the program output.
// command and args are kept to spawn a replacement if the master crashes.
func (s *Supervisor) RegisterMaster(h *process.Handle, command string, args []string) (domain.NodeID, error) {
	if h == nil {
		return 0, fmt.Errorf("register master: %w", domain.ErrNoInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMasterSlotLocked(); err != nil {
		return 0, err
	}
	s.registerMasterLocked(h, command, args)
	return domain.RootID, nil
}

// RegisterEnclosing makes the enclosing program the master: input (normally
// os.Stdin) is pumped into the master relay, and its end triggers Shutdown.
func (s *Supervisor) RegisterEnclosing(input io.Reader) (domain.NodeID, error) {
	if input == nil {
		return 0, fmt.Errorf("register enclosing program: %w", domain.ErrNoInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMasterSlotLocked(); err != nil {
		return 0, err
	}

	root := s.nodes[domain.RootID]
	root.origin = domain.OriginEnclosingProgram
	root.pid = os.Getpid()
	root.state = domain.NodeStateRunning
	s.masterRegistered = true
	s.attachOutputLocked()

	go func() {
		n, err := s.relay.ReadFrom(input)
		if err != nil && !errors.Is(err, os.ErrClosed) {
			s.logger.Warn("reading input failed", "error", err)
		}
		<-s.settled
		s.logger.Info("input closed, shutting down", "bytes", n)
		s.Shutdown()
	}()

	s.logger.Info("registered enclosing program as master", "pid", root.pid)
	s.emitSpawnLocked(root)
	return domain.RootID, nil
}

// SpawnMaster starts command as the master process.
func (s *Supervisor) SpawnMaster(command string, args []string) (domain.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMasterSlotLocked(); err != nil {
		return 0, err
	}
	h, err := s.spawner.Spawn(command, args)
	if err != nil {
		return 0, fmt.Errorf("spawn master: %w", err)
	}
	s.registerMasterLocked(h, command, args)
	return domain.RootID, nil
}

// SpawnChild starts command as a stage under parent. A stage under the master
// reads the master relay; any other stage reads its parent's output relay.
func (s *Supervisor) SpawnChild(parent domain.NodeID, command string, args []string, opts ...ChildOption) (domain.NodeID, error) {
	o := childOptions{keepAlive: true}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return 0, domain.ErrShuttingDown
	}
	p, ok := s.nodes[parent]
	if !ok || p.state == domain.NodeStateExited || p.stopping {
		return 0, fmt.Errorf("spawn child of %s: %w", parent, domain.ErrUnknownNode)
	}

	h, err := s.spawner.Spawn(command, args)
	if err != nil {
		return 0, fmt.Errorf("spawn child: %w", err)
	}

	id := s.nextID
	s.nextID++
	n := &node{
		id:        id,
		name:      o.name,
		parent:    parent,
		origin:    domain.OriginSpawnedProcess,
		command:   command,
		args:      slices.Clone(args),
		keepAlive: o.keepAlive,
		out:       s.newRelay(id),
	}
	s.nodes[id] = n
	p.children = append(p.children, id)

	s.startLocked(n, h)
	s.emitSpawnLocked(n)
	s.logger.Info("spawned child", "node", id, "name", o.name, "parent", parent, "pid", n.pid, "command", command, "keep_alive", o.keepAlive)
	return id, nil
}

// Ready declares the initial topology complete and lets bytes flow: the master
// relay and every relay created so far are resumed, and exits that happened
// during setup are handled. Later calls do nothing. Until Ready is called
// nothing reaches the stages.
func (s *Supervisor) Ready() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return
	}
	s.ready = true
	s.settleLocked()
	s.relay.Resume()
	for _, n := range s.nodes {
		n.out.Resume()
	}
	s.logger.Debug("topology ready", "nodes", len(s.nodes))
}

// Done is closed when shutdown has begun and every tracked process has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until Done and returns the exit code for the enclosing program.
// Cancelling ctx starts a Shutdown, after which Wait still waits for the tree.
func (s *Supervisor) Wait(ctx context.Context) int {
	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down", "cause", context.Cause(ctx))
		s.Shutdown()
		<-s.done
	}
	return s.ExitCode()
}

// ExitCode is the code the enclosing program should exit with.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// ShuttingDown reports whether shutdown has begun. It never reverts.
func (s *Supervisor) ShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

func (s *Supervisor) checkMasterSlotLocked() error {
	if s.masterRegistered {
		return domain.ErrMasterExists
	}
	if s.shuttingDown {
		return domain.ErrShuttingDown
	}
	return nil
}

func (s *Supervisor) registerMasterLocked(h *process.Handle, command string, args []string) {
	root := s.nodes[domain.RootID]
	root.origin = domain.OriginSpawnedProcess
	root.command = command
	root.args = slices.Clone(args)
	s.masterRegistered = true
	s.attachOutputLocked()
	s.startLocked(root, h)
	s.emitSpawnLocked(root)
	s.logger.Info("registered master", "pid", root.pid, "command", command, "args", args)
}

// attachOutputLocked connects the master relay to the program output, once per supervisor.
func (s *Supervisor) attachOutputLocked() {
	if s.outputAttached || s.output == nil {
		return
	}
	s.relay.Attach(s.output, relay.Named("output"))
	s.outputAttached = true
}

// startLocked binds h to n: stdin is wired to the parent's relay (except for
// the master, whose input is its own), and stdout is pumped into n.out.
func (s *Supervisor) startLocked(n *node, h *process.Handle) {
	n.handle = h
	n.pid = h.PID()
	n.state = domain.NodeStateRunning
	n.stopping = false
	if n.id != domain.RootID {
		if src := s.sourceRelayLocked(n.parent); src != nil {
			n.inSink = src.Attach(h.Stdin(), relay.Owned(), relay.Named("node "+n.id.String()))
		} else {
			h.Stdin().Close()
		}
	}
	s.live++
	go s.supervise(n.id, h, n.out)
}

// sourceRelayLocked returns the relay a stage under parent reads from.
func (s *Supervisor) sourceRelayLocked(parent domain.NodeID) *relay.Relay {
	if parent == domain.RootID {
		return s.relay
	}
	if p, ok := s.nodes[parent]; ok {
		return p.out
	}
	return nil
}

func (s *Supervisor) newRelay(id domain.NodeID) *relay.Relay {
	opts := []relay.Option{relay.WithLogger(s.logger.With("relay", id.String()))}
	if s.onBytes != nil {
		onBytes := s.onBytes
		opts = append(opts, relay.WithByteCounter(func(n int) { onBytes(id, n) }))
	}
	r := relay.New(opts...)
	if s.ready {
		r.Resume()
	}
	return r
}

// supervise pumps the process output and waits for its exit, then reports it.
// The tail of the output is pumped before the exit is handled. If a helper
// the process forked keeps stdout open after the exit, the rest of the
// process group is killed. Exits are only acted on once the topology is
// settled, so a master that finishes during setup cannot shut the tree down
// under the caller.
func (s *Supervisor) supervise(id domain.NodeID, h *process.Handle, out *relay.Relay) {
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		if _, err := out.ReadFrom(h.Stdout()); err != nil && !errors.Is(err, os.ErrClosed) {
			s.logger.Debug("output pump stopped", "node", id, "error", err)
		}
	}()

	status := h.Wait()
	select {
	case <-pumped:
	case <-time.After(orphanGrace):
		s.logger.Debug("output still open after exit, killing process group", "node", id, "pid", h.PID())
		if err := h.KillGroup(); err != nil {
			s.logger.Debug("kill process group failed", "node", id, "error", err)
		}
		select {
		case <-pumped:
		case <-time.After(orphanGrace):
			_ = h.CloseOutput()
			<-pumped
		}
	}
	_ = h.CloseOutput()

	<-s.settled
	s.handleExit(id, h, status)
}

// settleLocked releases exit reactions held back during setup.
func (s *Supervisor) settleLocked() {
	if s.settledClosed {
		return
	}
	s.settledClosed = true
	close(s.settled)
}

func (s *Supervisor) event(t domain.EventType, n *node) *domain.ProcessEvent {
	return &domain.ProcessEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: t},
		NodeID:    n.id,
		Parent:    n.parent,
		Master:    n.id == domain.RootID,
		PID:       n.pid,
		Command:   n.command,
		Args:      slices.Clone(n.args),
		Restarts:  n.restarts,
	}
}

func (s *Supervisor) emitSpawnLocked(n *node) {
	if s.hooks.OnSpawn != nil {
		s.hooks.OnSpawn(context.Background(), s.event(domain.EventSpawn, n))
	}
}
