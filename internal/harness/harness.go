package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/captree/internal/duplicate"
	"github.com/roach88/captree/internal/evaluator"
	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/linker"
	"github.com/roach88/captree/internal/model"
	"github.com/roach88/captree/internal/refs"
	"github.com/roach88/captree/internal/store"
	"github.com/roach88/captree/internal/testutil"
	"github.com/roach88/captree/internal/treefile"
)

// Harness holds the collaborators of one scenario run.
type Harness struct {
	store *store.Store
	tree  string
	links *linker.Service
	dup   *duplicate.Engine
	eval  *evaluator.Evaluator
	seq   *testutil.Counter
}

// Run executes a scenario in a fresh in-memory database and returns the
// trace with any failed expectations and assertions. An error means the
// scenario could not run at all.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ids := testutil.NewCounter()
	doc, err := treefile.Load(scenario.Tree, treefile.WithIDGenerator(ids.IDs("gen")))
	if err != nil {
		return nil, fmt.Errorf("failed to load tree: %w", err)
	}
	if err := doc.Import(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to import tree: %w", err)
	}

	opID := scenario.OperationID
	if opID == "" {
		opID = "op-" + scenario.Name
	}
	globalShared := false
	if scenario.GlobalSharedRefs != nil {
		globalShared = *scenario.GlobalSharedRefs
	}

	// Suppress logs in tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		store: st,
		tree:  doc.Tree,
		links: linker.NewService(st, linker.WithLogger(logger)),
		dup: duplicate.New(st,
			duplicate.WithLogger(logger),
			duplicate.WithOperationIDs(testutil.NewFixedOperationIDs(opID)),
			duplicate.WithPolicy(refs.Policy{GlobalSharedRefs: globalShared}),
		),
		eval: evaluator.New(st, evaluator.WithLogger(logger)),
		seq:  testutil.NewCounter(),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		event := h.execute(ctx, step)
		result.Trace = append(result.Trace, event)
		for _, msg := range checkExpect(step, event) {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Action, msg))
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) TraceEvent {
	event := TraceEvent{Seq: h.seq.Next(), Action: step.Action, Outcome: OutcomeOK}

	switch step.Action {
	case ActionRebuild:
		report, err := h.links.RebuildTree(ctx, h.tree)
		if err != nil {
			event.Outcome = outcomeOf(err)
			return event
		}
		event.Result = ir.IRObject{
			"updated":   stringArray(report.Updated),
			"unchanged": ir.IRNumber(report.Unchanged),
		}
		event.Diagnostics = codes(report.Diagnostics)

	case ActionDuplicate:
		suffix := step.Suffix
		if suffix == 0 {
			next, err := h.dup.NextSuffix(ctx, step.Template)
			if err != nil {
				event.Outcome = outcomeOf(err)
				return event
			}
			suffix = next
		}
		event.Args = ir.IRObject{
			"template": ir.IRString(step.Template),
			"suffix":   ir.IRNumber(suffix),
		}
		if step.CopySharedTables {
			event.Args["copy_shared_tables"] = ir.IRBool(true)
		}

		res, err := h.dup.Duplicate(ctx, duplicate.Request{
			TemplateRootID:   step.Template,
			Suffix:           suffix,
			CopySharedTables: step.CopySharedTables,
		})
		if err != nil {
			event.Outcome = outcomeOf(err)
			return event
		}
		summary := ir.IRObject{
			"root":       ir.IRString(res.RootCopyID),
			"nodes":      stringArray(res.CreatedNodeIDs),
			"capacities": stringArray(res.CreatedCapacityIDs),
			"operation":  ir.IRString(res.OperationID),
		}
		if len(res.KeptSharedIDs) > 0 {
			summary["kept"] = stringArray(res.KeptSharedIDs)
		}
		event.Result = summary
		event.Diagnostics = codes(res.Diagnostics)

	case ActionEvaluate:
		event.Args = ir.IRObject{"target": ir.IRString(step.Target)}
		form, err := evaluator.FormDataFromAny(step.Form)
		if err != nil {
			event.Outcome = outcomeOf(err)
			return event
		}
		if len(form) > 0 {
			event.Args["form"] = ir.IRObject(form)
		}

		v, diags, err := h.eval.EvaluateByID(ctx, step.Target, form)
		if err != nil {
			event.Outcome = outcomeOf(err)
			return event
		}
		event.Result = v
		event.Diagnostics = codes(diags)
	}
	return event
}

// outcomeOf maps an error to the code recorded in the trace.
func outcomeOf(err error) string {
	if code := duplicate.CodeOf(err); code != "" {
		return string(code)
	}
	if errors.Is(err, model.ErrNotFound) {
		return "NOT_FOUND"
	}
	return "ERROR"
}

func checkExpect(step Step, event TraceEvent) []string {
	if step.Expect == nil {
		if event.Outcome != OutcomeOK {
			return []string{fmt.Sprintf("unexpected outcome %s", event.Outcome)}
		}
		return nil
	}

	var msgs []string
	exp := step.Expect
	if exp.Outcome != event.Outcome {
		msgs = append(msgs, fmt.Sprintf("outcome: expected %s, got %s", exp.Outcome, event.Outcome))
	}
	if exp.HasValue() {
		var raw any
		if err := exp.Value.Decode(&raw); err != nil {
			msgs = append(msgs, fmt.Sprintf("expected value: %v", err))
		} else if want, err := ir.FromAny(raw); err != nil {
			msgs = append(msgs, fmt.Sprintf("expected value: %v", err))
		} else if got := orNull(event.Result); !ir.Equal(want, got) {
			msgs = append(msgs, fmt.Sprintf("value: expected %s, got %s", display(want), display(got)))
		}
	}
	if exp.Diagnostics != nil && !slices.Equal(exp.Diagnostics, orEmpty(event.Diagnostics)) {
		msgs = append(msgs, fmt.Sprintf("diagnostics: expected %v, got %v", exp.Diagnostics, event.Diagnostics))
	}
	return msgs
}

func codes(diags model.Diagnostics) []string {
	var out []string
	for _, d := range diags {
		out = append(out, string(d.Code))
	}
	return out
}

func stringArray(ss []string) ir.IRArray {
	arr := make(ir.IRArray, len(ss))
	for i, s := range ss {
		arr[i] = ir.IRString(s)
	}
	return arr
}

func orNull(v ir.IRValue) ir.IRValue {
	if v == nil {
		return ir.Null
	}
	return v
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func display(v ir.IRValue) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
