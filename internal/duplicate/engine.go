package duplicate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/captree/internal/ident"
	"github.com/roach88/captree/internal/linker"
	"github.com/roach88/captree/internal/model"
	"github.com/roach88/captree/internal/refs"
)

// Request asks for one copy of a template subtree.
type Request struct {
	TemplateRootID string `json:"templateRootId"`
	Suffix         int    `json:"suffix"`

	// CopySharedTables duplicates shared tables owned inside the subtree
	// instead of leaving copies pointing at them.
	CopySharedTables bool `json:"copySharedTables,omitempty"`
}

// Result describes a committed copy.
type Result struct {
	RootCopyID         string            `json:"rootCopyId"`
	CreatedNodeIDs     []string          `json:"createdNodeIds"`
	CreatedCapacityIDs []string          `json:"createdCapacityIds"`
	KeptSharedIDs      []string          `json:"keptSharedIds,omitempty"`
	OperationID        string            `json:"operationId"`
	Fingerprint        string            `json:"fingerprint"`
	Diagnostics        model.Diagnostics `json:"diagnostics,omitempty"`
}

// Engine duplicates subtrees through a repository.
type Engine struct {
	repo   model.Repository
	logger *slog.Logger
	policy refs.Policy
	opIDs  OperationIDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithPolicy sets how identifiers outside the subtree are treated.
func WithPolicy(p refs.Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithOperationIDs replaces the UUIDv7 operation ID generator.
func WithOperationIDs(g OperationIDGenerator) Option {
	return func(e *Engine) {
		e.opIDs = g
	}
}

// New returns an Engine writing through repo.
func New(repo model.Repository, opts ...Option) *Engine {
	e := &Engine{repo: repo, opIDs: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// suffixKey is the identity suffixes are reserved under. A template that is
// itself a copy shares the suffix space of its original, since both
// allocate the same IDs.
func suffixKey(templateID string) string {
	return ident.StripSuffix(templateID)
}

// NextSuffix returns one more than the largest suffix used for the
// template, or 1 if none is.
func (e *Engine) NextSuffix(ctx context.Context, templateRootID string) (int, error) {
	used, err := e.repo.UsedSuffixes(ctx, suffixKey(templateRootID))
	if err != nil {
		return 0, fmt.Errorf("used suffixes of %s: %w", templateRootID, err)
	}
	next := 1
	for _, s := range used {
		next = max(next, s+1)
	}
	return next, nil
}

// Duplicate copies the subtree rooted at req.TemplateRootID. It returns an
// *Error when the copy is rejected or rolled back; nothing is written in
// that case.
func (e *Engine) Duplicate(ctx context.Context, req Request) (Result, error) {
	tpl, k := req.TemplateRootID, req.Suffix
	if k < 1 {
		return Result{}, newError(CodeInvalidSuffix, tpl, k, nil, "suffix must be at least 1")
	}

	opID := e.opIDs.Generate()
	log := e.logger.With("operation", opID, "template", tpl, "suffix", k)
	log.Info("duplicating subtree")

	var res Result
	err := e.repo.RunInTransaction(ctx, func(tx model.Repository) error {
		var err error
		res, err = e.duplicate(ctx, tx, req, opID, log)
		return err
	})
	if err != nil {
		var de *Error
		if !errors.As(err, &de) {
			de = classify(ctx, err, tpl, k)
		}
		log.Warn("duplication aborted", "code", de.Code, "error", de.Error())
		return Result{}, de
	}

	log.Info("subtree duplicated",
		"root_copy", res.RootCopyID,
		"nodes", len(res.CreatedNodeIDs),
		"capacities", len(res.CreatedCapacityIDs))
	return res, nil
}

func (e *Engine) duplicate(ctx context.Context, tx model.Repository, req Request, opID string, log *slog.Logger) (Result, error) {
	tpl, k := req.TemplateRootID, req.Suffix

	root, err := tx.FindNode(ctx, tpl)
	if errors.Is(err, model.ErrNotFound) {
		return Result{}, newError(CodeTemplateNotFound, tpl, k, err, "template root does not exist")
	}
	if err != nil {
		return Result{}, newError(CodePartialWrite, tpl, k, err, "read template root")
	}

	used, err := tx.UsedSuffixes(ctx, suffixKey(tpl))
	if err != nil {
		return Result{}, newError(CodePartialWrite, tpl, k, err, "read used suffixes")
	}
	if slices.Contains(used, k) {
		return Result{}, newError(CodeSuffixCollision, tpl, k, nil, "suffix %d already used", k)
	}

	subtree, err := collectSubtree(ctx, tx, root)
	if err != nil {
		return Result{}, newError(CodePartialWrite, tpl, k, err, "read template subtree")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, newError(CodeCancelled, tpl, k, err, "cancelled after reading template")
	}

	plan, err := BuildPlan(subtree, k, e.policy, req.CopySharedTables)
	if err != nil {
		var leak *leakError
		if errors.As(err, &leak) {
			return Result{}, newError(CodeInconsistentCopy, tpl, k, err, "rewritten copy is not hermetic")
		}
		return Result{}, newError(CodeIDCollision, tpl, k, err, "allocate copy identifiers")
	}
	log.Debug("copy planned", "nodes", len(plan.Nodes), "capacities", len(plan.Capacities), "kept", len(plan.Kept))

	if err := checkCollisions(ctx, tx, plan); err != nil {
		return Result{}, newError(CodeIDCollision, tpl, k, err, "allocated identifier already exists")
	}
	if err := placeRoot(ctx, tx, plan.Root()); err != nil {
		return Result{}, newError(CodePartialWrite, tpl, k, err, "read template siblings")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, newError(CodeCancelled, tpl, k, err, "cancelled before write")
	}

	if err := tx.ReserveSuffix(ctx, suffixKey(tpl), k, opID); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return Result{}, newError(CodeSuffixCollision, tpl, k, err, "suffix %d already used", k)
		}
		return Result{}, newError(CodePartialWrite, tpl, k, err, "reserve suffix")
	}
	for _, n := range plan.Nodes {
		if err := tx.CreateNode(ctx, stripCapacities(n)); err != nil {
			return Result{}, newError(CodePartialWrite, tpl, k, err, "create node %s", n.ID)
		}
	}
	for _, c := range plan.Capacities {
		if err := tx.CreateCapacity(ctx, c); err != nil {
			return Result{}, newError(CodePartialWrite, tpl, k, err, "create capacity %s", c.CapacityID())
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, newError(CodeCancelled, tpl, k, err, "cancelled before relink")
	}

	relink := linker.NewService(tx, linker.WithLogger(log))
	report, err := relink.RebuildNodes(ctx, tx, root.TreeID, plan.NodeIDs())
	if err != nil {
		return Result{}, newError(CodePartialWrite, tpl, k, err, "rebuild linked sets")
	}

	fp, err := plan.Fingerprint()
	if err != nil {
		return Result{}, newError(CodePartialWrite, tpl, k, err, "fingerprint copy")
	}

	return Result{
		RootCopyID:         plan.Root().ID,
		CreatedNodeIDs:     plan.NodeIDs(),
		CreatedCapacityIDs: plan.CapacityIDs(),
		KeptSharedIDs:      plan.Kept,
		OperationID:        opID,
		Fingerprint:        fp,
		Diagnostics:        report.Diagnostics,
	}, nil
}

// collectSubtree returns root and all its descendants, breadth first with
// siblings in Order.
func collectSubtree(ctx context.Context, r model.Reader, root *model.Node) ([]*model.Node, error) {
	out := []*model.Node{root}
	seen := map[string]bool{root.ID: true}
	for i := 0; i < len(out); i++ {
		children, err := r.ListChildren(ctx, out[i].ID)
		if err != nil {
			return nil, fmt.Errorf("children of %s: %w", out[i].ID, err)
		}
		for _, c := range children {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func checkCollisions(ctx context.Context, r model.Reader, plan *Plan) error {
	for _, id := range plan.newIDs() {
		_, err := r.FindNode(ctx, id)
		if err == nil {
			return fmt.Errorf("node %s exists", id)
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		_, err = r.FindCapacity(ctx, "", id)
		if err == nil {
			return fmt.Errorf("capacity %s exists", id)
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}
	}
	return nil
}

// placeRoot orders the copy root after its last sibling.
func placeRoot(ctx context.Context, r model.Reader, root *model.Node) error {
	if root.ParentID == "" {
		return nil
	}
	siblings, err := r.ListChildren(ctx, root.ParentID)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		root.Order = max(root.Order, s.Order+1)
	}
	return nil
}

func stripCapacities(n *model.Node) *model.Node {
	cp := *n
	cp.Formula, cp.Condition, cp.Table, cp.Variable = nil, nil, nil, nil
	return &cp
}

// classify turns an error returned by the transaction itself (begin,
// commit, cancellation) into an *Error.
func classify(ctx context.Context, err error, tpl string, k int) *Error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(CodeCancelled, tpl, k, err, "cancelled")
	}
	return newError(CodePartialWrite, tpl, k, err, "transaction failed")
}
