package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsGoodProject(t *testing.T) {
	out, _, err := execute(t, "validate",
		"testdata/loop/model.yaml", "testdata/loop/parameters.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: model 'closed-loop-demo'")
	assert.Contains(t, out, "3 blocks")
	assert.Contains(t, out, "order: ref -> acc -> err")
}

func TestValidateAcceptsProjectDirectory(t *testing.T) {
	out, _, err := execute(t, "validate", "testdata/loop")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: model 'closed-loop-demo'")
}

func TestValidateJSONPayload(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "validate",
		"testdata/loop/model.yaml", "testdata/loop/parameters.yaml")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "closed-loop-demo", data["model"])
	assert.Equal(t, float64(3), data["blocks"])
}

func TestValidateRejectsMissingFile(t *testing.T) {
	_, _, err := execute(t, "validate", "testdata/loop/model.yaml", "testdata/nope.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateWrongArity(t *testing.T) {
	_, _, err := execute(t, "validate", "testdata/loop/model.yaml")
	require.Error(t, err)
}
