package duplicate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
	"github.com/roach88/captree/internal/refs"
	"github.com/roach88/captree/internal/store"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to open test store")
	t.Cleanup(func() { st.Close() })
	return st
}

// seed writes P and the template subtree of plan_test.go.
func seed(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateNode(ctx, &model.Node{ID: "P", TreeID: "tree", Label: "Quote"}))
	require.NoError(t, st.CreateNode(ctx, &model.Node{ID: "EXT", TreeID: "tree", ParentID: "P", Order: 7}))
	for _, n := range template("") {
		require.NoError(t, st.CreateNode(ctx, stripCapacities(n)))
		for _, c := range n.Capacities() {
			require.NoError(t, st.CreateCapacity(ctx, c))
		}
	}
}

func newTestEngine(repo model.Repository, ops ...string) *Engine {
	if len(ops) == 0 {
		ops = []string{"op-1", "op-2", "op-3"}
	}
	return New(repo,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithOperationIDs(NewSequenceGenerator(ops...)),
	)
}

func countNodes(t *testing.T, st *store.Store) int {
	t.Helper()
	nodes, err := st.ListTree(context.Background(), "tree")
	require.NoError(t, err)
	return len(nodes)
}

func TestDuplicateScenario(t *testing.T) {
	st := createTestStore(t)
	seed(t, st)
	ctx := context.Background()

	res, err := newTestEngine(st).Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 1})
	require.NoError(t, err)

	assert.Equal(t, "T-1", res.RootCopyID)
	assert.Equal(t, []string{"T-1", "A-1", "B-1"}, res.CreatedNodeIDs)
	assert.Equal(t, []string{"FA-1", "FB-1", "CB-1", "V-1"}, res.CreatedCapacityIDs)
	assert.Equal(t, "op-1", res.OperationID)
	assert.Len(t, res.Fingerprint, 64)

	a, err := st.FindNode(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("@value.B-1"), a.Formula.Tokens[0])
	assert.True(t, a.ForceRecalculation)
	assert.Subset(t, a.Linked.Variables, []string{"B-1", "V-1"})
	assert.NotContains(t, a.Linked.Variables, "B")

	b, err := st.FindNode(ctx, "B-1")
	require.NoError(t, err)
	require.NotNil(t, b.Variable)
	assert.Equal(t, "V-1", b.Variable.ID)

	root, err := st.FindNode(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "P", root.ParentID)
	assert.Equal(t, 8, root.Order, "copy root goes after the last sibling")

	// The template keeps its own state.
	orig, err := st.FindNode(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("@value.B"), orig.Formula.Tokens[0])
	assert.False(t, orig.ForceRecalculation)

	used, err := st.UsedSuffixes(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, used)
}

func TestDuplicateSameSuffixTwiceIsRejected(t *testing.T) {
	st := createTestStore(t)
	seed(t, st)
	ctx := context.Background()
	eng := newTestEngine(st)

	_, err := eng.Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 1})
	require.NoError(t, err)
	before := countNodes(t, st)

	_, err = eng.Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 1})
	require.Error(t, err)
	assert.True(t, IsSuffixCollision(err))
	assert.Equal(t, before, countNodes(t, st))
}

func TestDuplicateSameSuffixConcurrently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	first, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { first.Close() })
	seed(t, first)
	before := countNodes(t, first)

	second, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	ctx := context.Background()
	engines := []*Engine{newTestEngine(first, "op-a"), newTestEngine(second, "op-b")}
	errs := make([]error, len(engines))
	var wg sync.WaitGroup
	for i, eng := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = eng.Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 1})
		}()
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	require.Len(t, failed, 1, "exactly one copy commits: %v", errs)
	assert.True(t, IsSuffixCollision(failed[0]), "got %v", failed[0])

	assert.Equal(t, before+3, countNodes(t, first))
	used, err := first.UsedSuffixes(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, used)
}

func TestDuplicateTwoSuffixesAreDisjoint(t *testing.T) {
	st := createTestStore(t)
	seed(t, st)
	ctx := context.Background()
	eng := newTestEngine(st)

	r1, err := eng.Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 1})
	require.NoError(t, err)
	r2, err := eng.Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 2})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, id := range append(r1.CreatedNodeIDs, r1.CreatedCapacityIDs...) {
		seen[id] = true
	}
	for _, id := range append(r2.CreatedNodeIDs, r2.CreatedCapacityIDs...) {
		assert.False(t, seen[id], "id %s created twice", id)
	}
}

func TestDuplicateOfCopySharesSuffixSpace(t *testing.T) {
	st := createTestStore(t)
	seed(t, st)
	ctx := context.Background()
	eng := newTestEngine(st)

	_, err := eng.Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 1})
	require.NoError(t, err)

	res, err := eng.Duplicate(ctx, Request{TemplateRootID: "T-1", Suffix: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"T-2", "A-2", "B-2"}, res.CreatedNodeIDs)

	a, err := st.FindNode(ctx, "A-2")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("@value.B-2"), a.Formula.Tokens[0])

	_, err = eng.Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 2})
	assert.True(t, IsSuffixCollision(err))

	next, err := eng.NextSuffix(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, 3, next)
}

func TestNextSuffix(t *testing.T) {
	st := createTestStore(t)
	seed(t, st)
	ctx := context.Background()
	eng := newTestEngine(st)

	next, err := eng.NextSuffix(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	_, err = eng.Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 4})
	require.NoError(t, err)

	next, err = eng.NextSuffix(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, 5, next)
}

func TestDuplicateRejections(t *testing.T) {
	st := createTestStore(t)
	seed(t, st)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		code ErrorCode
	}{
		{"zero suffix", Request{TemplateRootID: "T", Suffix: 0}, CodeInvalidSuffix},
		{"negative suffix", Request{TemplateRootID: "T", Suffix: -2}, CodeInvalidSuffix},
		{"missing template", Request{TemplateRootID: "nope", Suffix: 1}, CodeTemplateNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEngine(st).Duplicate(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
	assert.True(t, IsTemplateNotFound(func() error {
		_, err := newTestEngine(st).Duplicate(ctx, Request{TemplateRootID: "nope", Suffix: 1})
		return err
	}()))
}

func TestDuplicateExistingIDIsRejectedBeforeWrite(t *testing.T) {
	st := createTestStore(t)
	seed(t, st)
	ctx := context.Background()
	require.NoError(t, st.CreateNode(ctx, &model.Node{ID: "A-5", TreeID: "tree"}))
	before := countNodes(t, st)

	_, err := newTestEngine(st).Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 5})
	require.Error(t, err)
	assert.Equal(t, CodeIDCollision, CodeOf(err))
	assert.Equal(t, before, countNodes(t, st))

	used, err := st.UsedSuffixes(ctx, "T")
	require.NoError(t, err)
	assert.Empty(t, used)
}

// failingRepo makes CreateCapacity fail inside transactions after n calls.
type failingRepo struct {
	model.Repository
	after int
}

func (f *failingRepo) RunInTransaction(ctx context.Context, fn func(tx model.Repository) error) error {
	return f.Repository.RunInTransaction(ctx, func(tx model.Repository) error {
		return fn(&failingTx{Repository: tx, left: f.after})
	})
}

type failingTx struct {
	model.Repository
	left int
}

func (f *failingTx) CreateCapacity(ctx context.Context, c model.Capacity) error {
	if f.left == 0 {
		return errors.New("disk full")
	}
	f.left--
	return f.Repository.CreateCapacity(ctx, c)
}

func (f *failingTx) RunInTransaction(_ context.Context, fn func(tx model.Repository) error) error {
	return fn(f)
}

func TestDuplicateRollsBackOnWriteFailure(t *testing.T) {
	st := createTestStore(t)
	seed(t, st)
	ctx := context.Background()
	before := countNodes(t, st)

	_, err := newTestEngine(&failingRepo{Repository: st, after: 2}).Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 1})
	require.Error(t, err)
	assert.Equal(t, CodePartialWrite, CodeOf(err))
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, before, countNodes(t, st))
	_, err = st.FindCapacity(ctx, "", "FA-1")
	assert.ErrorIs(t, err, model.ErrNotFound)
	used, err := st.UsedSuffixes(ctx, "T")
	require.NoError(t, err)
	assert.Empty(t, used)

	// A retry with the same suffix completes the same copy.
	res, err := newTestEngine(st).Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 1})
	require.NoError(t, err)
	assert.Equal(t, "T-1", res.RootCopyID)
}

func TestDuplicateCancelled(t *testing.T) {
	st := createTestStore(t)
	seed(t, st)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(st).Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 1})
	require.Error(t, err)
	assert.Equal(t, CodeCancelled, CodeOf(err))

	_, err = st.FindNode(context.Background(), "T-1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDuplicateSharedPolicyFromEngine(t *testing.T) {
	st := createTestStore(t)
	seed(t, st)
	ctx := context.Background()

	eng := New(st,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPolicy(refs.Policy{Shared: map[string]bool{"FB": true}}),
	)
	res, err := eng.Duplicate(ctx, Request{TemplateRootID: "T", Suffix: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"FB"}, res.KeptSharedIDs)
	assert.NotContains(t, res.CreatedCapacityIDs, "FB-1")

	b, err := st.FindNode(ctx, "B-1")
	require.NoError(t, err)
	assert.Nil(t, b.Formula)
	assert.Equal(t, "node-formula:FB", b.Variable.SourceRef)
}

func TestErrorMessage(t *testing.T) {
	err := newError(CodeSuffixCollision, "T", 2, nil, "suffix %d already used", 2)
	assert.Equal(t, "DUPLICATE_SUFFIX_COLLISION: suffix 2 already used (template=T, suffix=2)", err.Error())

	wrapped := newError(CodePartialWrite, "T", 1, model.ErrConflict, "create node")
	assert.ErrorIs(t, wrapped, model.ErrConflict)
}
