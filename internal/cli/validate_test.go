package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	fx := newFixture(t)

	out, err := execute(t, "validate", fx.config, "--timeline", fx.timeline, "--datastore", fx.datastore)
	require.NoError(t, err)
	assert.Equal(t, "✓ Configuration valid (2 device(s), 2 mapping(s), 4 object(s))\n", out)
}

func TestValidate_ConfigOnly(t *testing.T) {
	fx := newFixture(t)

	out, err := execute(t, "validate", fx.config)
	require.NoError(t, err)
	assert.Contains(t, out, "0 object(s)")
}

func TestValidate_JSON(t *testing.T) {
	fx := newFixture(t)

	out, err := execute(t, "--format", "json", "validate", fx.config, "--timeline", fx.timeline)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Devices)
	assert.Equal(t, 4, resp.Data.Objects)
}

func TestValidate_UnknownDevice(t *testing.T) {
	fx := newFixture(t)
	cfg := writeFile(t, fx.dir, "bad.cue", `
devices: abs0: type: "abstract"
mappings: gfx: {device: "abstract", deviceId: "abs9"}
`)

	out, err := execute(t, "validate", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "C010")
}

func TestValidate_UnknownDevice_JSON(t *testing.T) {
	fx := newFixture(t)
	cfg := writeFile(t, fx.dir, "bad.cue", `
devices: abs0: type: "abstract"
mappings: gfx: {device: "abstract", deviceId: "abs9"}
`)

	out, err := execute(t, "--format", "json", "validate", cfg)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "C010", resp.Error.Code)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, "C010", resp.Data.Errors[0].Code)
}

func TestValidate_SchemaViolation(t *testing.T) {
	fx := newFixture(t)
	cfg := writeFile(t, fx.dir, "bad.cue", `
devices: abs0: type: ""
`)

	out, err := execute(t, "validate", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "C002")
}

func TestValidate_MissingFile(t *testing.T) {
	fx := newFixture(t)

	out, err := execute(t, "validate", fx.path("missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [C001]")
}

func TestValidate_MalformedDatastore(t *testing.T) {
	fx := newFixture(t)
	ds := writeFile(t, fx.dir, "bad.yaml", "- just\n- a list\n")

	out, err := execute(t, "validate", fx.config, "--datastore", ds)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "C003")
}
