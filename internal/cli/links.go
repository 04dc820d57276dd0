package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/captree/internal/linker"
	"github.com/roach88/captree/internal/model"
)

// LinksResult reports a linked-set rebuild.
type LinksResult struct {
	Tree        string            `json:"tree"`
	Updated     []string          `json:"updated"`
	Unchanged   int               `json:"unchanged"`
	Cycles      []linker.Cycle    `json:"cycles,omitempty"`
	Diagnostics model.Diagnostics `json:"diagnostics,omitempty"`
}

func (r LinksResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tree %s: %d updated, %d unchanged", r.Tree, len(r.Updated), r.Unchanged)
	for _, id := range r.Updated {
		fmt.Fprintf(&b, "\n  ~ %s", id)
	}
	writeDiagnostics(&b, r.Diagnostics)
	return b.String()
}

// NewLinksCommand creates the links command group.
func NewLinksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Maintain linked sets",
	}
	cmd.AddCommand(newLinksRebuildCommand(rootOpts))
	return cmd
}

func newLinksRebuildCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <tree-id>",
		Short: "Recompute the linked sets of every node in a tree",
		Long: `Recompute the linked sets of every node in a tree from its capacity
payloads. Only sets that changed are written, in one transaction.

Example:
  captree links rebuild roof`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinksRebuild(opts, args[0], cmd)
		},
	}
}

func runLinksRebuild(opts *RootOptions, treeID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	st, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer st.Close()

	nodes, err := st.ListTree(ctx, treeID)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to read tree", err, nil)
	}
	if len(nodes) == 0 {
		return f.fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("tree %s not found", treeID), nil, nil)
	}

	report, err := linker.NewService(st, linker.WithLogger(opts.Logger)).RebuildTree(ctx, treeID)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to rebuild linked sets", err, nil)
	}

	return f.Success(LinksResult{
		Tree:        treeID,
		Updated:     orEmpty(report.Updated),
		Unchanged:   report.Unchanged,
		Cycles:      report.Cycles,
		Diagnostics: report.Diagnostics,
	})
}
