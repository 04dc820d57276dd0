package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/captree/internal/linker"
	"github.com/roach88/captree/internal/model"
	"github.com/roach88/captree/internal/treefile"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	File string
}

// TreeReport lists the issues found in one tree.
type TreeReport struct {
	Tree   string            `json:"tree"`
	Nodes  int               `json:"nodes"`
	Issues model.Diagnostics `json:"issues"`
}

// ValidationResult holds validation results. Info diagnostics, such as
// shared references with the same label, do not make a tree invalid.
type ValidationResult struct {
	Valid bool         `json:"valid"`
	Trees []TreeReport `json:"trees"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	for i, t := range r.Trees {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Tree %s: %d node(s), %d issue(s)", t.Tree, t.Nodes, len(t.Issues))
		writeDiagnostics(&b, t.Issues)
	}
	if len(r.Trees) == 0 {
		b.WriteString("No trees found.")
	}
	if r.Valid {
		b.WriteString("\n✓ Valid")
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [tree-id...]",
		Short: "Report dangling references, cycles and shared label clashes",
		Long: `Check trees for references that resolve to nothing, circular references
between nodes, and shared references carrying the same label.

With --file the check runs on a tree document without touching the
database. Otherwise the named trees, or every tree, are read from it.

Exit codes:
  0 - No warnings
  1 - At least one warning
  2 - Command error

Examples:
  captree validate
  captree validate roof --format json
  captree validate --file ./trees/roof.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "validate a tree document instead of the database")

	return cmd
}

func runValidate(opts *ValidateOptions, treeIDs []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	var (
		reports []TreeReport
		err     error
	)
	if opts.File != "" {
		doc, loadErr := treefile.Load(opts.File)
		if loadErr != nil {
			return f.fail(ExitFailure, ErrCodeTreeInvalid, "invalid tree document", loadErr, treeErrorDetails(loadErr))
		}
		reports = []TreeReport{checkTree(doc.Tree, doc.Nodes())}
	} else {
		reports, err = validateStored(opts, treeIDs, cmd, f)
		if err != nil {
			return err
		}
	}

	result := ValidationResult{Valid: true, Trees: reports}
	warnings := 0
	for _, r := range reports {
		for _, d := range r.Issues {
			if d.Severity == model.SeverityWarning {
				warnings++
			}
		}
	}
	if warnings == 0 {
		return f.Success(result)
	}

	result.Valid = false
	msg := fmt.Sprintf("%d warning(s) found", warnings)
	if err := f.Failure(ErrCodeCheckFailed, msg, result); err != nil {
		return err
	}
	return summaryExitError(ExitFailure, msg)
}

func validateStored(opts *ValidateOptions, treeIDs []string, cmd *cobra.Command, f *OutputFormatter) ([]TreeReport, error) {
	ctx := cmd.Context()
	st, err := opts.openStore(f)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if len(treeIDs) == 0 {
		treeIDs, err = st.ListTrees(ctx)
		if err != nil {
			return nil, f.fail(ExitCommandError, ErrCodeStore, "failed to list trees", err, nil)
		}
	}

	reports := make([]TreeReport, 0, len(treeIDs))
	for _, id := range treeIDs {
		nodes, err := st.ListTree(ctx, id)
		if err != nil {
			return nil, f.fail(ExitCommandError, ErrCodeStore, "failed to read tree", err, nil)
		}
		if len(nodes) == 0 {
			return nil, f.fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("tree %s not found", id), nil, nil)
		}
		f.VerboseLog("Checking tree %s (%d nodes)", id, len(nodes))
		reports = append(reports, checkTree(id, nodes))
	}
	return reports, nil
}

// checkTree runs the link analysis without writing anything.
func checkTree(treeID string, nodes []*model.Node) TreeReport {
	res := linker.RebuildLinks(nodes)
	issues := model.Diagnostics{}
	issues.Append(res.Diagnostics)
	_, cycles := linker.AnalyzeCycles(res.Edges)
	issues.Append(cycles)
	issues.Append(linker.SharedLabels(nodes))
	return TreeReport{Tree: treeID, Nodes: len(nodes), Issues: issues}
}
