package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalContext wraps a context that is cancelled by the first SIGINT or
// SIGTERM. A second signal cancels Force, so the caller can stop waiting for
// a graceful drain.
type SignalContext struct {
	context.Context
	Cancel func()

	// Force is cancelled by the second signal.
	Force       context.Context
	cancelForce func()

	sigCh  chan os.Signal
	stop   sync.Once
	mu     sync.Mutex
	sigVal os.Signal
	count  int
}

// NewSignalContext starts listening for SIGINT and SIGTERM.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	force, cancelForce := context.WithCancel(parent)
	sc := &SignalContext{
		Context:     ctx,
		Cancel:      cancel,
		Force:       force,
		cancelForce: cancelForce,
		sigCh:       make(chan os.Signal, 2),
	}

	signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
	go sc.loop()
	return sc
}

func (sc *SignalContext) loop() {
	for {
		select {
		case sig := <-sc.sigCh:
			sc.mu.Lock()
			sc.count++
			n := sc.count
			if n == 1 {
				sc.sigVal = sig
			}
			sc.mu.Unlock()

			if n == 1 {
				sc.Cancel()
				continue
			}
			sc.cancelForce()
			sc.Stop()
			return
		case <-sc.Force.Done():
			sc.Stop()
			return
		}
	}
}

// Signal returns the signal that cancelled the context, if any.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// Stop releases the signal handler. Signals arriving later get their default behavior.
func (sc *SignalContext) Stop() {
	sc.stop.Do(func() {
		signal.Stop(sc.sigCh)
		sc.Cancel()
		sc.cancelForce()
	})
}
