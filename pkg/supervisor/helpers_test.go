//go:build unix

package supervisor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/aretw0/manifold/pkg/domain"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

// syncBuffer is a bytes.Buffer safe for the relay goroutines and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// recorder counts lifecycle events.
type recorder struct {
	spawns   atomic.Int32
	respawns atomic.Int32
	exits    atomic.Int32
	nonFinal atomic.Int32

	mu        sync.Mutex
	respawned []domain.ProcessEvent
}

func (r *recorder) hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSpawn: func(_ context.Context, e *domain.ProcessEvent) { r.spawns.Add(1) },
		OnRespawn: func(_ context.Context, e *domain.ProcessEvent) {
			r.respawns.Add(1)
			r.mu.Lock()
			r.respawned = append(r.respawned, *e)
			r.mu.Unlock()
		},
		OnExit: func(_ context.Context, e *domain.ProcessEvent) {
			r.exits.Add(1)
			if !e.Final {
				r.nonFinal.Add(1)
			}
		},
	}
}

func (r *recorder) lastRespawn() domain.ProcessEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.respawned[len(r.respawned)-1]
}

func newTestSupervisor(t *testing.T, rec *recorder, opts ...Option) (*Supervisor, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	base := []Option{
		WithOutput(out),
		WithLifecycleHooks(rec.hooks()),
		WithKillTimeout(2 * time.Second),
	}
	s := New(append(base, opts...)...)
	t.Cleanup(func() {
		s.Shutdown()
		select {
		case <-s.Done():
		case <-time.After(10 * time.Second):
			t.Errorf("supervisor did not finish during cleanup, live=%d", s.Live())
		}
	})
	return s, out
}

func waitDone(t *testing.T, s *Supervisor) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	select {
	case <-s.Done():
	case <-ctx.Done():
		t.Fatalf("supervisor did not finish, live=%d", s.Live())
	}
	return s.ExitCode()
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func sinkFile(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

// stdinPipe gives the supervisor an input the test controls.
func stdinPipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
