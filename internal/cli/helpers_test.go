package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// env is an isolated config file and database shared by the commands of
// one test.
type env struct {
	t      *testing.T
	config string
	db     string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithConfig(t, "")
}

// newEnvWithConfig appends extra YAML to the test config.
func newEnvWithConfig(t *testing.T, extra string) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "captree.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  level: error\n"+extra), 0644))
	return &env{t: t, config: cfg, db: filepath.Join(dir, "captree.db")}
}

// run executes the CLI and returns stdout.
func (e *env) run(args ...string) (string, error) {
	e.t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", e.config, "--db", e.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// mustRun executes the CLI and fails the test on error.
func (e *env) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "output: %s", out)
	return out
}

// jsonResponse is CLIResponse with the payload left raw.
type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decodeResponse(t *testing.T, out string) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func decodeData[T any](t *testing.T, out string) T {
	t.Helper()
	var data T
	resp := decodeResponse(t, out)
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data
}

var houseFile = filepath.Join("testdata", "trees", "house.yaml")
