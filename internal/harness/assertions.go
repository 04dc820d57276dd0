package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/captree/internal/model"
	"github.com/roach88/captree/internal/store"
)

// Assertion types.
const (
	AssertNodeExists     = "node_exists"
	AssertNodeAbsent     = "node_absent"
	AssertLabelEquals    = "label_equals"
	AssertParentEquals   = "parent_equals"
	AssertLinkedContains = "linked_contains"
	AssertSuffixesUsed   = "suffixes_used"
)

// Assertion checks the final state of the store.
type Assertion struct {
	Type string `yaml:"type"`

	// Node is the subject of node assertions.
	Node string `yaml:"node,omitempty"`

	// Label is the expected label for label_equals.
	Label string `yaml:"label,omitempty"`

	// Parent is the expected parent for parent_equals. Empty means root.
	Parent string `yaml:"parent,omitempty"`

	// IDs must all appear in the node's linked sets.
	IDs []string `yaml:"ids,omitempty"`

	// Template and Suffixes are used by suffixes_used.
	Template string `yaml:"template,omitempty"`
	Suffixes []int  `yaml:"suffixes,omitempty"`
}

func validateAssertion(i int, a *Assertion) error {
	switch a.Type {
	case AssertNodeExists, AssertNodeAbsent, AssertLabelEquals, AssertParentEquals:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: %s requires 'node'", i, a.Type)
		}
		if a.Type == AssertLabelEquals && a.Label == "" {
			return fmt.Errorf("assertions[%d]: label_equals requires 'label'", i)
		}
	case AssertLinkedContains:
		if a.Node == "" || len(a.IDs) == 0 {
			return fmt.Errorf("assertions[%d]: linked_contains requires 'node' and 'ids'", i)
		}
	case AssertSuffixesUsed:
		if a.Template == "" {
			return fmt.Errorf("assertions[%d]: suffixes_used requires 'template'", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: missing required field 'type'", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Action, event.Outcome)
		}
	}
	return buf.String()
}

// AssertionContext provides the store assertions read from.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions and returns a message for
// every failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		if actx == nil || actx.Store == nil {
			err = fmt.Errorf("assertions[%d]: %s requires database context", i, a.Type)
		} else {
			err = evaluateAssertion(actx, a)
		}

		if ae, ok := err.(*AssertionError); ok {
			ae.Trace = result.Trace
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluateAssertion(actx *AssertionContext, a Assertion) error {
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if a.Type == AssertSuffixesUsed {
		used, err := actx.Store.UsedSuffixes(ctx, a.Template)
		if err != nil {
			return fmt.Errorf("suffixes_used: %w", err)
		}
		want := slices.Clone(a.Suffixes)
		got := slices.Clone(used)
		slices.Sort(want)
		slices.Sort(got)
		if !slices.Equal(want, got) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s used %v", a.Template, want),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
		return nil
	}

	n, err := actx.Store.FindNode(ctx, a.Node)
	if errors.Is(err, model.ErrNotFound) {
		if a.Type == AssertNodeAbsent {
			return nil
		}
		return &AssertionError{Type: a.Type, Expected: "node " + a.Node, Actual: "not found"}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}

	switch a.Type {
	case AssertNodeAbsent:
		return &AssertionError{Type: a.Type, Expected: "no node " + a.Node, Actual: "node exists"}
	case AssertLabelEquals:
		if n.Label != a.Label {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s labelled %q", a.Node, a.Label),
				Actual:   fmt.Sprintf("%q", n.Label),
			}
		}
	case AssertParentEquals:
		if n.ParentID != a.Parent {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s under %q", a.Node, a.Parent),
				Actual:   fmt.Sprintf("%q", n.ParentID),
			}
		}
	case AssertLinkedContains:
		linked := n.Linked.All()
		var missing []string
		for _, id := range a.IDs {
			if !slices.Contains(linked, id) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s linked to %v", a.Node, a.IDs),
				Actual:   fmt.Sprintf("missing %v from %v", missing, linked),
			}
		}
	}
	return nil
}
