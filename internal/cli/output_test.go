package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeDatabase, "failed to open database", "disk full"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeDatabase, resp.Error.Code)
	assert.Equal(t, "failed to open database", resp.Error.Message)
	assert.Equal(t, "disk full", resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("deleted headline"))
	assert.Equal(t, "deleted headline\n", buf.String())
}

type customText struct{}

func (customText) WriteText(w io.Writer) error {
	_, err := fmt.Fprintln(w, "custom")
	return err
}

func TestOutputFormatter_TextWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(customText{}))
	assert.Equal(t, "custom\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeGeneric, "something failed", nil))
	assert.Equal(t, "Error [E001]: something failed\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Error(ErrCodeGeneric, "something failed", "because"))
	assert.Equal(t, "Error [E001]: something failed\n  because\n", buf.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	cause := errors.New("no such table")
	err := formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to read", cause)

	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, buf.String(), "Error [E002]: failed to read")
}

func TestExitError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ExitError
		wantMsg string
	}{
		{"simple", NewExitError(ExitFailure, "validation failed"), "validation failed"},
		{"wrapped", WrapExitError(ExitCommandError, "failed to open", errors.New("denied")), "failed to open: denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad"))))
}
