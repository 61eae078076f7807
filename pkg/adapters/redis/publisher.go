package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/manifold/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("event publisher closed")

const defaultBuffer = 256

// Publisher appends lifecycle events to a Redis stream. Hooks never block the
// supervisor: events are queued and written by a background goroutine, and
// dropped when the queue is full.
type Publisher struct {
	client  *backend.Client
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan entry
	wg      sync.WaitGroup
	dropped atomic.Int64
	buffer  int
}

type entry struct {
	eventType domain.EventType
	node      string
	payload   []byte
}

type Option func(*Publisher)

// WithStream sets the stream key. Defaults to domain.DefaultEventStream.
func WithStream(stream string) Option {
	return func(p *Publisher) {
		if stream != "" {
			p.stream = stream
		}
	}
}

// WithMaxLen trims the stream to the newest n entries. Zero keeps everything.
func WithMaxLen(n int64) Option {
	return func(p *Publisher) {
		p.maxLen = n
	}
}

// WithBuffer sets how many events may wait to be written.
func WithBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates a publisher with its own client.
func New(address, password string, db int, opts ...Option) *Publisher {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a publisher from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Publisher {
	p := &Publisher{
		client:  client,
		stream:  domain.DefaultEventStream,
		timeout: 2 * time.Second,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		buffer:  defaultBuffer,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.queue = make(chan entry, p.buffer)
	p.wg.Add(1)
	go p.loop()
	return p
}

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", p.client.Options().Addr, err)
	}
	return nil
}

// Publish writes one event synchronously.
func (p *Publisher) Publish(ctx context.Context, eventType domain.EventType, node domain.NodeID, event any) error {
	e, err := newEntry(eventType, node, event)
	if err != nil {
		return err
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPublisherClosed
	}
	return p.write(ctx, e)
}

// Dropped returns how many events were discarded because the queue was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Hooks queues every lifecycle event for the stream.
func (p *Publisher) Hooks() domain.LifecycleHooks {
	process := func(_ context.Context, e *domain.ProcessEvent) {
		p.enqueue(e.Type, e.NodeID, e)
	}
	return domain.LifecycleHooks{
		OnSpawn:   process,
		OnExit:    process,
		OnRespawn: process,
		OnShutdown: func(_ context.Context, e *domain.ShutdownEvent) {
			p.enqueue(e.Type, domain.RootID, e)
		},
	}
}

// Close stops accepting events and waits for the queue to drain, or for ctx.
// The client is closed afterwards.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = fmt.Errorf("event queue not drained: %w", ctx.Err())
	}
	if cerr := p.client.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (p *Publisher) enqueue(eventType domain.EventType, node domain.NodeID, event any) {
	e, err := newEntry(eventType, node, event)
	if err != nil {
		p.logger.Error("event encode failed", "error", err)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- e:
	default:
		p.dropped.Add(1)
		p.logger.Warn("event queue full, dropping event", "type", eventType, "node", node)
	}
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for e := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.write(ctx, e); err != nil {
			p.logger.Warn("event publish failed", "stream", p.stream, "type", e.eventType, "error", err)
		}
		cancel()
	}
}

func (p *Publisher) write(ctx context.Context, e entry) error {
	args := &backend.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":  string(e.eventType),
			"node":  e.node,
			"event": e.payload,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd %s: %w", p.stream, err)
	}
	return nil
}

func newEntry(eventType domain.EventType, node domain.NodeID, event any) (entry, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return entry{}, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return entry{eventType: eventType, node: node.String(), payload: payload}, nil
}
