//go:build unix

package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected *ExitError, got %v", err)
	return exitErr.Code
}

func TestLoadConfig(t *testing.T) {
	t.Run("Missing Flag", func(t *testing.T) {
		_, err := LoadConfig("")
		assert.Equal(t, ExitUsage, exitCode(t, err))
		assert.ErrorIs(t, err, ErrConfigRequired)
	})

	t.Run("Unreadable File", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Equal(t, ExitConfig, exitCode(t, err))
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Contains(t, err.Error(), "missing.yaml")
	})

	t.Run("Invalid Document", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "outputs:\n  - args: [x]\n"))
		assert.Equal(t, ExitConfig, exitCode(t, err))
		assert.Contains(t, err.Error(), "stage has no bin")
	})

	t.Run("Valid", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "outputs:\n  - bin: cat\n"))
		require.NoError(t, err)
		assert.Len(t, cfg.Outputs, 1)
	})
}

func TestExecute_StdinPipeline(t *testing.T) {
	path := writeConfig(t, `
input: stdin
outputs:
  - bin: cat
shutdown:
  drain_timeout: 1s
`)
	out := &syncBuffer{}
	stderr := &syncBuffer{}

	done := make(chan error, 1)
	go func() {
		done <- Execute(context.Background(), RunOptions{
			ConfigPath: path,
			LogLevel:   "debug",
			Stdin:      strings.NewReader("hello\n"),
			Stdout:     out,
			Stderr:     stderr,
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not finish after end of input")
	}
	assert.Equal(t, "hello\n", out.String())
	assert.Contains(t, stderr.String(), "level=DEBUG")
}

func TestExecute_BadLogLevel(t *testing.T) {
	path := writeConfig(t, "input: stdin\n")
	err := Execute(context.Background(), RunOptions{
		ConfigPath: path,
		LogLevel:   "chatty",
		Stdin:      strings.NewReader(""),
		Stdout:     &syncBuffer{},
		Stderr:     &syncBuffer{},
	})
	assert.Equal(t, ExitConfig, exitCode(t, err))
}

func TestSignalContext(t *testing.T) {
	sc := NewSignalContext(context.Background())
	defer sc.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	select {
	case <-sc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("first signal did not cancel the context")
	}
	assert.Equal(t, syscall.SIGTERM, sc.Signal())
	assert.NoError(t, sc.Force.Err(), "one signal is not a forced stop")

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	select {
	case <-sc.Force.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("second signal did not force")
	}
	assert.Equal(t, syscall.SIGTERM, sc.Signal(), "the first signal is the one reported")
}

func TestExitError(t *testing.T) {
	silent := &ExitError{Code: 3}
	assert.Equal(t, "exit status 3", silent.Error())

	cause := errors.New("boom")
	wrapped := &ExitError{Code: 2, Err: cause}
	assert.Equal(t, "boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}
