package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/captree/internal/evaluator"
	"github.com/roach88/captree/internal/ident"
	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
	"github.com/roach88/captree/internal/store"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	FormFile string
	Set      []string
	Save     bool
}

// EvalResult is the value of one evaluation.
type EvalResult struct {
	Target      string            `json:"target"`
	Value       ir.IRValue        `json:"value"`
	SavedTo     string            `json:"saved_to,omitempty"`
	Diagnostics model.Diagnostics `json:"diagnostics,omitempty"`
}

func (r EvalResult) String() string {
	var b strings.Builder
	text, err := ir.MarshalCanonical(r.Value)
	if err != nil {
		text = []byte(ir.AsString(r.Value))
	}
	fmt.Fprintf(&b, "%s = %s", r.Target, text)
	if r.SavedTo != "" {
		fmt.Fprintf(&b, "\nSaved as calculated value of %s", r.SavedTo)
	}
	writeDiagnostics(&b, r.Diagnostics)
	return b.String()
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <capacity-or-node-id>",
		Short: "Evaluate a capacity against form data",
		Long: `Evaluate a formula, condition, table or variable. A node ID evaluates
the node's own capacities. Form data comes from a JSON or YAML file and
from --set pairs, which take precedence.

Examples:
  captree eval f-area --set width=4 --set length=5
  captree eval t-slope --form answers.yaml --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.FormFile, "form", "", "JSON or YAML file with form data")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "form value as key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "store the result as the owning node's calculated value")

	return cmd
}

func runEval(opts *EvalOptions, target string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	form, err := loadForm(opts.FormFile, opts.Set)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeInvalidInput, "invalid form data", err, nil)
	}

	st, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer st.Close()

	eval := evaluator.New(st,
		evaluator.WithLogger(opts.Logger),
		evaluator.WithContainsFallback(opts.Config.Evaluator.ContainsFallback),
		evaluator.WithMaxDepth(opts.Config.Evaluator.MaxDepth),
	)
	v, diags, err := eval.EvaluateByID(ctx, target, form)
	if errors.Is(err, model.ErrNotFound) {
		return f.fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("%s is neither a capacity nor a node", target), nil, nil)
	}
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "evaluation failed", err, nil)
	}

	result := EvalResult{Target: target, Value: v, Diagnostics: diags}
	if opts.Save {
		owner, err := saveValue(cmd, st, target, v)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeStore, "failed to save calculated value", err, nil)
		}
		result.SavedTo = owner
	}
	return f.Success(result)
}

// saveValue stores v on the node owning target. Null clears the value.
func saveValue(cmd *cobra.Command, st *store.Store, target string, v ir.IRValue) (string, error) {
	ctx := cmd.Context()
	id := target
	if ref, ok := ident.ParseRef(target); ok {
		id = ref.ID
	}

	owner := id
	if c, err := st.FindCapacity(ctx, "", id); err == nil {
		owner = c.OwnerID()
	} else if !errors.Is(err, model.ErrNotFound) {
		return "", err
	}

	var value *string
	if !ir.IsNull(v) {
		s := ir.AsString(v)
		value = &s
	}
	return owner, st.SaveCalculatedValue(ctx, owner, value)
}

// loadForm reads the form file, then applies key=value pairs on top.
func loadForm(path string, pairs []string) (evaluator.FormData, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read form file: %w", err)
		}
		// JSON documents are valid YAML.
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse form file %s: %w", path, err)
		}
	}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("--set %q: expected key=value", p)
		}
		raw[strings.TrimSpace(key)] = value
	}
	return evaluator.FormDataFromAny(raw)
}
