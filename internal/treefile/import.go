package treefile

import (
	"context"
	"fmt"

	"github.com/roach88/captree/internal/model"
)

// Import writes every node of d, then every capacity, in one transaction.
// Linked sets are left empty; rebuild them afterwards.
func (d *Document) Import(ctx context.Context, repo model.Repository) error {
	return repo.RunInTransaction(ctx, func(tx model.Repository) error {
		for _, n := range d.nodes {
			bare := *n
			bare.Formula, bare.Condition, bare.Table, bare.Variable = nil, nil, nil, nil
			if err := tx.CreateNode(ctx, &bare); err != nil {
				return fmt.Errorf("import node %s: %w", n.ID, err)
			}
		}
		for _, n := range d.nodes {
			for _, c := range n.Capacities() {
				if err := tx.CreateCapacity(ctx, c); err != nil {
					return fmt.Errorf("import capacity %s: %w", c.CapacityID(), err)
				}
			}
		}
		return nil
	})
}

// Replace deletes the stored tree d.Tree and imports d in its place, in one
// transaction: if the import fails the stored tree is left as it was. It
// returns the number of nodes deleted.
func (d *Document) Replace(ctx context.Context, repo model.Repository) (int64, error) {
	var deleted int64
	err := repo.RunInTransaction(ctx, func(tx model.Repository) error {
		n, err := tx.DeleteTree(ctx, d.Tree)
		if err != nil {
			return fmt.Errorf("replace tree %s: %w", d.Tree, err)
		}
		deleted = n
		return d.Import(ctx, tx)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
