package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/captree/internal/linker"
	"github.com/roach88/captree/internal/model"
	"github.com/roach88/captree/internal/treefile"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Replace bool
}

// ImportResult summarizes an imported tree.
type ImportResult struct {
	Tree        string            `json:"tree"`
	Nodes       int               `json:"nodes"`
	Deleted     int64             `json:"deleted,omitempty"`
	Updated     []string          `json:"updated"`
	Unchanged   int               `json:"unchanged"`
	Diagnostics model.Diagnostics `json:"diagnostics,omitempty"`
}

func (r ImportResult) String() string {
	var b strings.Builder
	if r.Deleted > 0 {
		fmt.Fprintf(&b, "Replaced %d node(s) of tree %s\n", r.Deleted, r.Tree)
	}
	fmt.Fprintf(&b, "Imported tree %s: %d node(s), %d linked set(s) written", r.Tree, r.Nodes, len(r.Updated))
	writeDiagnostics(&b, r.Diagnostics)
	return b.String()
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <tree-file>",
		Short: "Import a tree document and link it",
		Long: `Import a tree document (.yaml, .yml, .json or .cue) into the database
and rebuild the linked sets of every node.

The document is validated against the tree schema first; nothing is
written if it is invalid.

Examples:
  captree import ./trees/roof.yaml
  captree import ./trees/roof.cue --replace --db ./captree.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "delete an existing tree with the same ID first")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	doc, err := treefile.Load(path)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeTreeInvalid, "invalid tree document", err, treeErrorDetails(err))
	}
	f.VerboseLog("Loaded tree %s with %d node(s)", doc.Tree, len(doc.Nodes()))

	st, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer st.Close()

	result := ImportResult{Tree: doc.Tree, Nodes: len(doc.Nodes())}
	var report linker.Report
	// Delete, import and link commit together.
	err = st.RunInTransaction(ctx, func(tx model.Repository) error {
		if opts.Replace {
			deleted, err := doc.Replace(ctx, tx)
			if err != nil {
				return err
			}
			result.Deleted = deleted
		} else if err := doc.Import(ctx, tx); err != nil {
			return err
		}
		var err error
		report, err = linker.NewService(tx, linker.WithLogger(opts.Logger)).RebuildTree(ctx, doc.Tree)
		return err
	})
	if errors.Is(err, model.ErrConflict) {
		msg := fmt.Sprintf("tree %s overlaps existing data (use --replace)", doc.Tree)
		if opts.Replace {
			msg = fmt.Sprintf("tree %s reuses identifiers of another tree", doc.Tree)
		}
		return f.fail(ExitFailure, ErrCodeStore, msg, err, nil)
	}
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to import tree", err, nil)
	}
	result.Updated = orEmpty(report.Updated)
	result.Unchanged = report.Unchanged
	result.Diagnostics = report.Diagnostics

	opts.Logger.Info("tree imported", "tree", doc.Tree, "nodes", result.Nodes, "source", doc.Source)
	return f.Success(result)
}

// treeErrorDetails locates a schema error in the document.
func treeErrorDetails(err error) any {
	var te *treefile.Error
	if !errors.As(err, &te) {
		return nil
	}
	details := map[string]any{"message": te.Message}
	if te.Path != "" {
		details["path"] = te.Path
	}
	if te.Pos.IsValid() {
		details["file"] = te.Pos.Filename()
		details["line"] = te.Pos.Line()
		details["column"] = te.Pos.Column()
	}
	return details
}

func writeDiagnostics(b *strings.Builder, diags model.Diagnostics) {
	for _, d := range diags {
		fmt.Fprintf(b, "\n  %s", d)
	}
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
