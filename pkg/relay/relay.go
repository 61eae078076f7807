package relay

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// ErrNoSink is returned by Detach for an unknown SinkID.
var ErrNoSink = errors.New("relay: no such sink")

// DefaultQueue is how many chunks may wait for a consumer before the producer is held back.
const DefaultQueue = 64

// SinkID identifies an attached consumer.
type SinkID uint64

// sink is one consumer and the goroutine that writes to it. The relay lock is
// never held while writing, so a consumer that stops reading only holds back
// the producer, and Detach or Close can always abandon it.
type sink struct {
	id    SinkID
	w     io.Writer
	name  string
	owned bool

	ch   chan []byte
	eof  chan struct{} // closed by Relay.Close: flush the queue, then stop
	quit chan struct{} // closed by Detach: stop now
	gone chan struct{} // closed when the writer goroutine returns

	endOnce   sync.Once
	closeOnce sync.Once
}

// Relay is a pausable fan-out byte relay. The zero value is not usable; use New.
type Relay struct {
	mu      sync.Mutex
	paused  bool
	resumed bool
	closed  bool
	buf     bytes.Buffer
	sinks   []*sink
	nextID  SinkID
	written uint64
	writers sync.WaitGroup
	drained chan struct{}

	// wmu serializes producers so chunks keep their order without holding mu.
	wmu sync.Mutex

	queue   int
	logger  *slog.Logger
	onBytes func(n int)
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger used for dropped-consumer diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithByteCounter registers a callback invoked with the size of every chunk that flows out.
func WithByteCounter(fn func(n int)) Option {
	return func(r *Relay) {
		r.onBytes = fn
	}
}

// WithQueue sets how many chunks each consumer may have pending. Defaults to DefaultQueue.
func WithQueue(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.queue = n
		}
	}
}

// New creates a paused relay.
func New(opts ...Option) *Relay {
	r := &Relay{
		paused:  true,
		queue:   DefaultQueue,
		drained: make(chan struct{}),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AttachOption configures a single consumer.
type AttachOption func(*sink)

// Owned marks the consumer as owned by the relay: Close and Detach close it
// if it is an io.Closer.
func Owned() AttachOption {
	return func(s *sink) {
		s.owned = true
	}
}

// Named labels the consumer in diagnostics.
func Named(name string) AttachOption {
	return func(s *sink) {
		s.name = name
	}
}

// Attach adds a consumer. While the relay is paused the consumer will receive
// everything buffered so far once Resume is called. On a running relay it
// receives only what is written from now on. Attaching an owned consumer to a
// closed relay closes it immediately.
func (r *Relay) Attach(w io.Writer, opts ...AttachOption) SinkID {
	s := &sink{w: w}
	for _, opt := range opts {
		opt(s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	s.id = r.nextID
	if r.closed {
		s.closeWriter()
		return s.id
	}
	s.ch = make(chan []byte, r.queue)
	s.eof = make(chan struct{})
	s.quit = make(chan struct{})
	s.gone = make(chan struct{})
	r.sinks = append(r.sinks, s)
	r.writers.Add(1)
	go r.run(s)
	return s.id
}

// Detach removes a consumer. Pending chunks are discarded and an owned
// consumer is closed, which also unblocks a write it is stuck in.
func (r *Relay) Detach(id SinkID) error {
	r.mu.Lock()
	s := r.removeLocked(id)
	r.mu.Unlock()

	if s == nil {
		return ErrNoSink
	}
	s.endOnce.Do(func() { close(s.quit) })
	s.closeWriter()
	return nil
}

// Write is the producer side. It never fails: a consumer whose write fails is
// dropped, and writes to a closed relay are discarded so producers keep draining.
// Write waits while a consumer's queue is full; it never waits on a consumer
// that has been detached or has failed.
func (r *Relay) Write(p []byte) (int, error) {
	r.wmu.Lock()
	defer r.wmu.Unlock()

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return len(p), nil
	case r.paused:
		r.buf.Write(p)
		r.mu.Unlock()
		return len(p), nil
	}
	sinks := make([]*sink, len(r.sinks))
	copy(sinks, r.sinks)
	r.written += uint64(len(p))
	r.mu.Unlock()

	chunk := bytes.Clone(p)
	for _, s := range sinks {
		s.enqueue(chunk)
	}
	if r.onBytes != nil {
		r.onBytes(len(p))
	}
	return len(p), nil
}

// ReadFrom pumps src into the relay until EOF or a read error.
// It does not close the relay, so a replacement producer can continue the stream.
func (r *Relay) ReadFrom(src io.Reader) (int64, error) {
	return io.Copy(writerOnly{r}, src)
}

// Resume flushes the buffer to all consumers and switches to pass-through.
// Only the first call has an effect. It never blocks on a consumer.
func (r *Relay) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resumed {
		return
	}
	r.resumed = true
	r.paused = false
	if !r.closed {
		r.flushLocked()
	}
}

// Paused reports whether the relay is still buffering.
func (r *Relay) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Buffered returns the number of bytes held while paused.
func (r *Relay) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Len()
}

// Written returns the number of bytes handed to consumers (counted once per chunk).
func (r *Relay) Written() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Sinks returns the number of attached consumers.
func (r *Relay) Sinks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sinks)
}

// Close ends the stream without waiting for consumers. A paused relay is
// flushed first so buffered bytes are not lost; each consumer then receives
// what is queued for it and owned consumers are closed. Drained reports when
// that is done. Close is idempotent.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	if r.paused {
		r.flushLocked()
	}
	r.paused = false
	r.closed = true

	for _, s := range r.sinks {
		s.endOnce.Do(func() { close(s.eof) })
	}
	r.sinks = nil

	go func() {
		r.writers.Wait()
		close(r.drained)
	}()
	return nil
}

// Closed reports whether Close has been called.
func (r *Relay) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Drained is closed once the relay is closed and every consumer has received
// its queued bytes or been dropped.
func (r *Relay) Drained() <-chan struct{} {
	return r.drained
}

// flushLocked hands the paused buffer to every consumer as one chunk. Queues
// are empty while paused, so this never blocks. Caller holds mu.
func (r *Relay) flushLocked() {
	if r.buf.Len() > 0 {
		chunk := bytes.Clone(r.buf.Bytes())
		for _, s := range r.sinks {
			s.ch <- chunk
		}
		r.written += uint64(len(chunk))
		if r.onBytes != nil {
			r.onBytes(len(chunk))
		}
	}
	r.buf = bytes.Buffer{}
}

func (r *Relay) removeLocked(id SinkID) *sink {
	for i, s := range r.sinks {
		if s.id == id {
			r.sinks = append(r.sinks[:i], r.sinks[i+1:]...)
			return s
		}
	}
	return nil
}

// run is the writer goroutine of one consumer.
func (r *Relay) run(s *sink) {
	defer r.writers.Done()
	defer close(s.gone)

	for {
		select {
		case p := <-s.ch:
			if !r.write(s, p) {
				return
			}
		case <-s.quit:
			return
		case <-s.eof:
			for {
				select {
				case p := <-s.ch:
					if !r.write(s, p) {
						return
					}
				default:
					s.closeWriter()
					return
				}
			}
		}
	}
}

// write delivers one chunk; a failing consumer is dropped and closed.
func (r *Relay) write(s *sink, p []byte) bool {
	if _, err := s.w.Write(p); err != nil {
		r.logger.Debug("relay consumer dropped", "sink", s.name, "error", err)
		r.mu.Lock()
		r.removeLocked(s.id)
		r.mu.Unlock()
		s.closeWriter()
		return false
	}
	return true
}

func (s *sink) enqueue(p []byte) {
	select {
	case s.ch <- p:
	case <-s.quit:
	case <-s.gone:
	}
}

func (s *sink) closeWriter() {
	if !s.owned {
		return
	}
	s.closeOnce.Do(func() {
		if c, ok := s.w.(io.Closer); ok {
			c.Close()
		}
	})
}

// writerOnly hides ReadFrom so io.Copy does not recurse into Relay.ReadFrom.
type writerOnly struct {
	io.Writer
}
