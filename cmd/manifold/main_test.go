package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/manifold/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func pipelineFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sample = `
input:
  bin: tail
  args: ["-F", "app.log"]
outputs:
  - bin: grep
    args: [ERROR]
    pipe:
      bin: wc
      args: [-l]
`

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "-c", pipelineFile(t, sample))
	require.NoError(t, err)
	assert.Contains(t, out, "tail -F app.log")
	assert.Contains(t, out, "└── grep ERROR")
	assert.Contains(t, out, "    └── wc -l")
	assert.Contains(t, out, "Pipeline is valid!")
}

func TestValidateCommand_Report(t *testing.T) {
	out, err := execute(t, "validate", "--report", "-c", pipelineFile(t, sample))
	require.NoError(t, err)
	assert.Contains(t, out, "Pipeline")
	assert.Contains(t, out, "ERROR")
	assert.NotContains(t, out, "Pipeline is valid!")
}

func TestValidateCommand_ExitCodes(t *testing.T) {
	var exitErr *cli.ExitError

	_, err := execute(t, "validate", "-c", "")
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitUsage, exitErr.Code)

	_, err = execute(t, "validate", "-c", pipelineFile(t, "input: 42\n"))
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitConfig, exitErr.Code)
}

func TestRootCommand_MissingConfig(t *testing.T) {
	_, err := execute(t, "-c", "")
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.ErrorIs(t, err, cli.ErrConfigRequired)
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, "graph", "--addr", "", "-c", pipelineFile(t, sample))
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD\n")
	assert.Contains(t, out, `master[["tail -F app.log"]]`)
	assert.Contains(t, out, "s0 --> s0_0")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Contains(t, out, "manifold version ")
}
