package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/captree/internal/duplicate"
	"github.com/roach88/captree/internal/refs"
)

// DuplicateOptions holds flags for the duplicate command.
type DuplicateOptions struct {
	*RootOptions
	Suffix           int
	CopySharedTables bool
}

// DuplicateResult wraps a committed copy for output.
type DuplicateResult struct {
	duplicate.Result
	Template string `json:"template"`
	Suffix   int    `json:"suffix"`
}

func (r DuplicateResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Copied %s as %s (suffix %d, operation %s)\n", r.Template, r.RootCopyID, r.Suffix, r.OperationID)
	fmt.Fprintf(&b, "  nodes:      %s\n", strings.Join(r.CreatedNodeIDs, ", "))
	fmt.Fprintf(&b, "  capacities: %s", strings.Join(r.CreatedCapacityIDs, ", "))
	if len(r.KeptSharedIDs) > 0 {
		fmt.Fprintf(&b, "\n  kept:       %s", strings.Join(r.KeptSharedIDs, ", "))
	}
	writeDiagnostics(&b, r.Diagnostics)
	return b.String()
}

// NewDuplicateCommand creates the duplicate command.
func NewDuplicateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DuplicateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "duplicate <template-root-id>",
		Short: "Copy a subtree under a numeric suffix",
		Long: `Copy the subtree rooted at a template node. Every copied node and
capacity gets the suffix "-<k>", and references inside the copy are
rewritten to point at the copies. The copy is written in one transaction:
on any failure nothing changes.

Without --suffix the next free suffix for the template is used.

Exit codes:
  0 - Copy committed
  1 - Copy aborted (suffix in use, template missing, ...)
  2 - Command error

Examples:
  captree duplicate section
  captree duplicate section --suffix 3 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDuplicate(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Suffix, "suffix", 0, "copy suffix (default: next free suffix)")
	cmd.Flags().BoolVar(&opts.CopySharedTables, "copy-shared-tables", false, "copy shared tables owned by the subtree instead of keeping them")

	return cmd
}

func runDuplicate(opts *DuplicateOptions, templateID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	if cmd.Flags().Changed("suffix") && opts.Suffix < 1 {
		return f.fail(ExitCommandError, ErrCodeInvalidInput,
			fmt.Sprintf("invalid suffix %d: must be at least 1", opts.Suffix), nil, nil)
	}

	st, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := duplicate.New(st,
		duplicate.WithLogger(opts.Logger),
		duplicate.WithPolicy(refs.Policy{
			GlobalSharedRefs: opts.Config.Duplicate.GlobalSharedRefs,
			Shared:           opts.Config.Duplicate.SharedTableSet(),
		}),
	)

	suffix := opts.Suffix
	if suffix == 0 {
		suffix, err = engine.NextSuffix(ctx, templateID)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeStore, "failed to find a free suffix", err, nil)
		}
		f.VerboseLog("Using next free suffix %d", suffix)
	}

	res, err := engine.Duplicate(ctx, duplicate.Request{
		TemplateRootID:   templateID,
		Suffix:           suffix,
		CopySharedTables: opts.CopySharedTables,
	})
	if err != nil {
		details := map[string]any{"template": templateID, "suffix": suffix, "cause": err.Error()}
		if code := duplicate.CodeOf(err); code != "" {
			details["reason"] = string(code)
		}
		return f.fail(ExitFailure, ErrCodeCopyAborted, duplicate.AbortedMessage, err, details)
	}

	return f.Success(DuplicateResult{Result: res, Template: templateID, Suffix: suffix})
}
