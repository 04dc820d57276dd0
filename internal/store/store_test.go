package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesPragmas(t *testing.T) {
	st := createTestStore(t)

	require.NoError(t, st.verifyPragma("journal_mode", "wal"))
	require.NoError(t, st.verifyPragma("synchronous", "1"))
	require.NoError(t, st.verifyPragma("busy_timeout", "5000"))
	require.NoError(t, st.verifyPragma("foreign_keys", "1"))
}

func TestOpenSetsSchemaVersion(t *testing.T) {
	st := createTestStore(t)

	var version int
	require.NoError(t, st.DB().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	var count int
	err = second.DB().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_capacities_node'",
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOpenMemory(t *testing.T) {
	st, err := Open(MemoryPath)
	require.NoError(t, err)
	defer st.Close()

	trees, err := st.ListTrees(t.Context())
	require.NoError(t, err)
	assert.Empty(t, trees)
}

func TestCloseNilDB(t *testing.T) {
	var st Store
	assert.NoError(t, st.Close())
}

func TestDSNRequestsImmediateTransactions(t *testing.T) {
	assert.Equal(t, "trees.db?_txlock=immediate", dsn("trees.db"))
	assert.Equal(t, "file:trees.db?cache=shared&_txlock=immediate", dsn("file:trees.db?cache=shared"))
	assert.Equal(t, ":memory:?_txlock=immediate", dsn(MemoryPath))
}
