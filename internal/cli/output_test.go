package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
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

	details := map[string]any{"reason": "DUPLICATE_SUFFIX_COLLISION"}
	require.NoError(t, formatter.Error(ErrCodeCopyAborted, "copy aborted, nothing changed", details))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E006", resp.Error.Code)
	assert.Equal(t, "copy aborted, nothing changed", resp.Error.Message)
	assert.Equal(t, details, resp.Error.Details)
}

func TestOutputFormatter_JSONFailureKeepsData(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Failure(ErrCodeCheckFailed, "1 warning(s) found", ValidationResult{Trees: []TreeReport{}}))

	resp := decodeResponse(t, buf.String())
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeCheckFailed, resp.Error.Code)
	assert.JSONEq(t, `{"valid":false,"trees":[]}`, string(resp.Data))
}

type stringer struct{}

func (stringer) String() string { return "rendered" }

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(stringer{}))
	assert.Equal(t, "rendered\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("E001", "something failed", "hidden"))
	assert.Equal(t, "Error [E001]: something failed\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E001", "something failed", "shown"))
	assert.Contains(t, buf.String(), "Details: shown")
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	formatter.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	formatter.Verbose = true
	formatter.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}
	cause := errors.New("disk full")

	err := formatter.fail(ExitCommandError, ErrCodeStore, "failed to import tree", cause, nil)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, Reported(err))

	resp := decodeResponse(t, buf.String())
	assert.Equal(t, ErrCodeStore, resp.Error.Code)
	assert.Equal(t, "disk full", resp.Error.Details)
}

func TestReported(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	rendered := formatter.fail(ExitCommandError, ErrCodeStore, "failed to open store", errors.New("locked"), nil)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rendered command error", rendered, true},
		{"wrapped rendered error", fmt.Errorf("run: %w", rendered), true},
		{"failure summary", summaryExitError(ExitFailure, "2 scenario(s) failed"), true},
		{"unrendered command error", NewExitError(ExitCommandError, "bad path"), false},
		{"unrendered failure", NewExitError(ExitFailure, "copy failed"), false},
		{"plain error", errors.New("accepts 1 arg(s), received 0"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reported(tt.err))
		})
	}
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("failed to open store")))
}

func TestExitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"nil", nil, ExitSuccess, ""},
		{"plain error", errors.New("boom"), ExitFailure, "boom"},
		{"exit error", NewExitError(ExitCommandError, "bad path"), ExitCommandError, "bad path"},
		{"wrapped", WrapExitError(ExitFailure, "copy failed", errors.New("locked")), ExitFailure, "copy failed: locked"},
		{"nested", fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "inner")), ExitCommandError, "outer: inner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, GetExitCode(tt.err))
			if tt.err != nil {
				assert.Equal(t, tt.msg, tt.err.Error())
			}
		})
	}
}
