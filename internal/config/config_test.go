package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the developer's own config out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "captree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "captree.db", cfg.DB)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Log.File)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
	assert.False(t, cfg.Duplicate.GlobalSharedRefs)
	assert.Empty(t, cfg.Duplicate.SharedTables)
	assert.True(t, cfg.Evaluator.ContainsFallback)
	assert.Equal(t, 32, cfg.Evaluator.MaxDepth)
	assert.Empty(t, cfg.File)
}

func TestFileOverridesDefaults(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
db: /var/lib/captree/trees.db
log:
  level: debug
  file: /var/log/captree.log
duplicate:
  global_shared_refs: true
  shared_tables: [t-slope, t-tiles]
evaluator:
  contains_fallback: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "/var/lib/captree/trees.db", cfg.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/log/captree.log", cfg.Log.File)
	assert.True(t, cfg.Duplicate.GlobalSharedRefs)
	assert.Equal(t, map[string]bool{"t-slope": true, "t-tiles": true}, cfg.Duplicate.SharedTableSet())
	assert.False(t, cfg.Evaluator.ContainsFallback)
	assert.Equal(t, 32, cfg.Evaluator.MaxDepth)
}

func TestDiscoversWorkingDirectoryFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("captree.yaml", []byte("db: local.db\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local.db", cfg.DB)
	assert.Equal(t, "captree.yaml", cfg.File)
}

func TestEnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "db: from-file.db\nlog:\n  level: warn\n")
	t.Setenv("CAPTREE_DB", "from-env.db")
	t.Setenv("CAPTREE_EVALUATOR_MAX_DEPTH", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DB)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Evaluator.MaxDepth)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad depth", "evaluator:\n  max_depth: 0\n", "max_depth"},
		{"empty db", "db: \"\"\n", "db must not be empty"},
		{"negative rotation", "log:\n  max_backups: -1\n", "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExplicitFileMustExist(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}
