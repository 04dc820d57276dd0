package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/captree/internal/ident"
	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
)

// DefaultMaxDepth bounds nested reference resolution.
const DefaultMaxDepth = 32

// Evaluator resolves capacity values. It is safe for concurrent use as long
// as the Reader is.
type Evaluator struct {
	source           model.Reader
	logger           *slog.Logger
	containsFallback bool
	maxDepth         int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger. nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// WithContainsFallback toggles the substring match over form data keys.
// Enabled by default.
func WithContainsFallback(enabled bool) Option {
	return func(e *Evaluator) {
		e.containsFallback = enabled
	}
}

// WithMaxDepth sets the recursion limit.
//
// Default: 32 (DefaultMaxDepth)
func WithMaxDepth(n int) Option {
	return func(e *Evaluator) {
		e.maxDepth = n
	}
}

// New returns an Evaluator reading nodes and capacities from source.
func New(source model.Reader, opts ...Option) *Evaluator {
	e := &Evaluator{
		source:           source,
		containsFallback: true,
		maxDepth:         DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.maxDepth <= 0 {
		e.maxDepth = DefaultMaxDepth
	}
	return e
}

// Evaluate computes the value of c. The result is never nil: failures give
// ir.Null with the reason in the diagnostics.
func (e *Evaluator) Evaluate(ctx context.Context, c model.Capacity, form FormData) (ir.IRValue, model.Diagnostics) {
	r := e.newRun(ctx, form)
	v := r.capacity(c)
	e.logger.Debug("capacity evaluated",
		"capacity", c.CapacityID(),
		"kind", c.Kind(),
		"result", ir.AsString(v),
		"diagnostics", len(r.diags))
	return v, r.diags
}

// EvaluateByID evaluates the capacity with the given ID. A node ID is
// accepted too and evaluates the node's own capacities. An ID matching
// neither returns an error wrapping model.ErrNotFound.
func (e *Evaluator) EvaluateByID(ctx context.Context, id string, form FormData) (ir.IRValue, model.Diagnostics, error) {
	if ref, ok := ident.ParseRef(id); ok {
		id = ref.ID
	}

	c, err := e.source.FindCapacity(ctx, "", id)
	if err == nil {
		v, diags := e.Evaluate(ctx, c, form)
		return v, diags, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return ir.Null, nil, fmt.Errorf("evaluate %s: %w", id, err)
	}

	n, err := e.source.FindNode(ctx, id)
	if err != nil {
		return ir.Null, nil, fmt.Errorf("evaluate %s: %w", id, err)
	}
	r := e.newRun(ctx, form)
	return r.node(n), r.diags, nil
}

// run holds the state of one top-level evaluation.
type run struct {
	*Evaluator
	ctx   context.Context
	form  FormData
	keys  []string
	diags model.Diagnostics
	stack []string

	// aliased holds the references already reported as FORM_KEY_ALIAS.
	aliased map[string]bool
}

func (e *Evaluator) newRun(ctx context.Context, form FormData) *run {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return &run{Evaluator: e, ctx: ctx, form: form, keys: keys}
}

// enter pushes key on the resolution stack. It returns false, with a
// diagnostic, on a cycle or when the depth limit is reached.
func (r *run) enter(key string) bool {
	if slices.Contains(r.stack, key) {
		r.diags.Warn(model.DiagCircularReference, "circular reference: %s -> %s",
			strings.Join(r.stack, " -> "), key)
		return false
	}
	if len(r.stack) >= r.maxDepth {
		r.diags.Warn(model.DiagCircularReference, "reference depth exceeds %d at %s", r.maxDepth, key)
		return false
	}
	r.stack = append(r.stack, key)
	return true
}

func (r *run) leave() {
	r.stack = r.stack[:len(r.stack)-1]
}

// capacity evaluates c by kind.
func (r *run) capacity(c model.Capacity) ir.IRValue {
	if r.ctx.Err() != nil {
		return ir.Null
	}
	if !r.enter(string(c.Kind()) + ":" + c.CapacityID()) {
		return ir.Null
	}
	defer r.leave()

	switch v := c.(type) {
	case *model.Formula:
		return r.formula(v)
	case *model.Condition:
		return r.condition(v)
	case *model.Table:
		return r.table(v)
	case *model.Variable:
		return r.variable(v)
	}
	return ir.Null
}

// lookupForm finds id in the form data: exact key first, then the first
// sorted key that contains id or is contained in it. A fallback match is
// reported once per reference as FORM_KEY_ALIAS.
func (r *run) lookupForm(id string) (ir.IRValue, bool) {
	if id == "" {
		return nil, false
	}
	if v, ok := r.form[id]; ok {
		return v, true
	}
	if !r.containsFallback {
		return nil, false
	}
	for _, k := range r.keys {
		if strings.Contains(k, id) {
			return r.alias(id, k), true
		}
	}
	for _, k := range r.keys {
		if k != "" && strings.Contains(id, k) {
			return r.alias(id, k), true
		}
	}
	return nil, false
}

func (r *run) alias(id, key string) ir.IRValue {
	if !r.aliased[id] {
		if r.aliased == nil {
			r.aliased = make(map[string]bool)
		}
		r.aliased[id] = true
		d := r.diags.Info(model.DiagFormKeyAlias, "form key %q used for %s", key, id)
		d.Ref = id
	}
	return r.form[key]
}

// resolve returns the value a reference denotes.
func (r *run) resolve(ref ident.Ref) ir.IRValue {
	switch ref.Kind {
	case ident.KindFormula, ident.KindCondition, ident.KindTable:
		if c := r.findCapacity(model.CapacityKind(ref.Kind), ref.ID); c != nil {
			return r.capacity(c)
		}
		// The source data sometimes writes a node ID behind a capacity prefix.
		if n := r.findNode(ref.ID); n != nil {
			if c := n.Capacity(model.CapacityKind(ref.Kind)); c != nil {
				return r.capacity(c)
			}
			return r.node(n)
		}
		if v, ok := r.lookupForm(ref.ID); ok {
			return v
		}
	default:
		if v, ok := r.lookupForm(ref.ID); ok {
			return v
		}
		if n := r.findNode(ref.ID); n != nil {
			return r.node(n)
		}
		if c := r.findCapacity("", ref.ID); c != nil {
			return r.capacity(c)
		}
	}

	d := r.diags.Warn(model.DiagDanglingReference, "%s reference %q does not resolve", ref.Kind, ref.ID)
	d.Ref = ref.ID
	return ir.Null
}

// resolveID resolves a bare or prefixed identifier string.
func (r *run) resolveID(s string) ir.IRValue {
	ref, ok := ident.ParseRef(s)
	if !ok {
		return ir.Null
	}
	return r.resolve(ref)
}

// node evaluates a node's own capacities in kind order and falls back to
// its cached value.
func (r *run) node(n *model.Node) ir.IRValue {
	if !r.enter("node:" + n.ID) {
		return ir.Null
	}
	defer r.leave()

	if v, ok := r.lookupForm(n.ID); ok {
		return v
	}
	for _, c := range n.Capacities() {
		if v, ok := c.(*model.Variable); ok && exposesOwner(v) {
			continue
		}
		if v := r.capacity(c); !ir.IsNull(v) {
			return v
		}
	}
	if n.CalculatedValue != nil && !n.ForceRecalculation {
		return ir.IRString(*n.CalculatedValue)
	}
	return ir.Null
}

// exposesOwner reports whether v only aliases its own node's input.
func exposesOwner(v *model.Variable) bool {
	if strings.TrimSpace(v.SourceRef) == "" {
		return true
	}
	ref, ok := ident.ParseRef(v.SourceRef)
	return ok && ref.ID == v.NodeID && ref.Kind == ident.KindNode
}

func (r *run) variable(v *model.Variable) ir.IRValue {
	if strings.TrimSpace(v.SourceRef) == "" {
		if val, ok := r.lookupForm(v.NodeID); ok {
			return val
		}
		return ir.Null
	}
	return r.resolveID(v.SourceRef)
}

func (r *run) findNode(id string) *model.Node {
	n, err := r.source.FindNode(r.ctx, id)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			r.logger.Warn("node lookup failed", "node", id, "error", err)
		}
		return nil
	}
	return n
}

func (r *run) findCapacity(kind model.CapacityKind, id string) model.Capacity {
	c, err := r.source.FindCapacity(r.ctx, kind, id)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			r.logger.Warn("capacity lookup failed", "capacity", id, "error", err)
		}
		return nil
	}
	return c
}
