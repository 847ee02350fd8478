package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and captures both streams.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestRootRejectsInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "blocks")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestBlocksCommandListsTypes(t *testing.T) {
	out, _, err := execute(t, "blocks")
	require.NoError(t, err)
	assert.Contains(t, out, "constant")
	assert.Contains(t, out, "discrete_integrator")
	assert.Contains(t, out, "quadratic_program")
}

func TestBlocksCommandJSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "blocks")
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"ok"`)
	assert.Contains(t, out, `"pid"`)
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "nope", assert.AnError)))
}
