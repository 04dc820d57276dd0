package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
)

// createTestStore creates a temporary SQLite store for testing.
// The store is automatically closed when the test completes.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	st, err := Open(dbPath)
	require.NoError(t, err, "failed to open test store")

	t.Cleanup(func() {
		st.Close()
	})

	return st
}

// seedTree writes a root with one child carrying a formula and a variable.
func seedTree(t *testing.T, st *Store) {
	t.Helper()
	ctx := context.Background()

	root := &model.Node{ID: "root", TreeID: "t1", Label: "Root", Type: "branch"}
	child := &model.Node{ID: "child", TreeID: "t1", ParentID: "root", Label: "Width", Type: "field", Order: 1}
	require.NoError(t, st.CreateNode(ctx, root))
	require.NoError(t, st.CreateNode(ctx, child))

	require.NoError(t, st.CreateCapacity(ctx, &model.Formula{
		ID: "f1", NodeID: "child", Name: "area",
		Tokens: ir.IRArray{ir.IRString("@value.root"), ir.IRString("*"), ir.IRNumber(2)},
	}))
	require.NoError(t, st.CreateCapacity(ctx, &model.Variable{
		ID: "v1", NodeID: "child", ExposedKey: "width", SourceRef: "node-formula:f1", SourceType: "formula",
	}))
}
