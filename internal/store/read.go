package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/captree/internal/model"
)

// repo implements the read and write methods of model.Repository over a
// querier, so the same code serves the database and open transactions.
type repo struct {
	q querier
}

const nodeColumns = `
	id, tree_id, parent_id, label, type, sort_order,
	linked_variable_ids, linked_formula_ids, linked_condition_ids, linked_table_ids,
	calculated_value, force_recalculation, source_template_id`

const capacityColumns = `c.id, c.kind, c.node_id, c.name, c.payload, c.shared`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(s rowScanner) (*model.Node, error) {
	var (
		n          model.Node
		parentID   sql.NullString
		calculated sql.NullString
		templateID sql.NullString
		linked     [4]string
		force      int
	)
	err := s.Scan(
		&n.ID, &n.TreeID, &parentID, &n.Label, &n.Type, &n.Order,
		&linked[0], &linked[1], &linked[2], &linked[3],
		&calculated, &force, &templateID,
	)
	if err != nil {
		return nil, err
	}

	n.ParentID = parentID.String
	n.SourceTemplateID = templateID.String
	n.ForceRecalculation = force != 0
	if calculated.Valid {
		v := calculated.String
		n.CalculatedValue = &v
	}
	n.Linked, err = unmarshalLinked(linked)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.ID, err)
	}
	return &n, nil
}

func scanCapacity(s rowScanner) (model.Capacity, error) {
	var (
		rec     model.Record
		kind    string
		payload string
		shared  int
	)
	if err := s.Scan(&rec.ID, &kind, &rec.NodeID, &rec.Name, &payload, &shared); err != nil {
		return nil, err
	}
	rec.Kind = model.CapacityKind(kind)
	rec.Shared = shared != 0

	var err error
	rec.Payload, err = unmarshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("capacity %s: %w", rec.ID, err)
	}
	return model.FromRecord(rec)
}

// FindNode returns the node with its capacities attached.
func (r repo) FindNode(ctx context.Context, id string) (*model.Node, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find node %s: %w", id, err)
	}

	if err := r.attach(ctx, []*model.Node{n}, `c.node_id = ?`, id); err != nil {
		return nil, err
	}
	return n, nil
}

// ListChildren returns the direct children of parentID ordered by
// sort_order then id. An empty parentID lists root nodes of every tree.
func (r repo) ListChildren(ctx context.Context, parentID string) ([]*model.Node, error) {
	if parentID == "" {
		return r.listNodes(ctx, `parent_id IS NULL`, `n.parent_id IS NULL`)
	}
	return r.listNodes(ctx, `parent_id = ?`, `n.parent_id = ?`, parentID)
}

// ListTree returns every node of a tree with capacities attached.
func (r repo) ListTree(ctx context.Context, treeID string) ([]*model.Node, error) {
	return r.listNodes(ctx, `tree_id = ?`, `n.tree_id = ?`, treeID)
}

// ListTrees returns the distinct tree IDs in the store.
func (r repo) ListTrees(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT DISTINCT tree_id FROM nodes ORDER BY tree_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}
	defer rows.Close()

	trees := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tree id: %w", err)
		}
		trees = append(trees, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trees: %w", err)
	}
	return trees, nil
}

// FindCapacity returns the capacity with the given ID. An empty kind
// matches any kind.
func (r repo) FindCapacity(ctx context.Context, kind model.CapacityKind, id string) (model.Capacity, error) {
	query := `SELECT ` + capacityColumns + ` FROM capacities c WHERE c.id = ?`
	args := []any{id}
	if kind != "" {
		query += ` AND c.kind = ?`
		args = append(args, string(kind))
	}

	c, err := scanCapacity(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("capacity %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find capacity %s: %w", id, err)
	}
	return c, nil
}

// listNodes reads matching nodes, then their capacities. The node rows are
// closed before the capacity query starts; the pool has one connection.
func (r repo) listNodes(ctx context.Context, nodeWhere, capWhere string, args ...any) ([]*model.Node, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE `+nodeWhere+` ORDER BY sort_order ASC, id ASC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}

	nodes := []*model.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	rows.Close()

	if len(nodes) == 0 {
		return nodes, nil
	}
	if err := r.attach(ctx, nodes, capWhere, args...); err != nil {
		return nil, err
	}
	return nodes, nil
}

// attach loads the capacities selected by where (over capacities c joined
// to nodes n) and sets them on the matching nodes.
func (r repo) attach(ctx context.Context, nodes []*model.Node, where string, args ...any) error {
	byID := make(map[string]*model.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+capacityColumns+` FROM capacities c JOIN nodes n ON n.id = c.node_id
		 WHERE `+where+` ORDER BY c.node_id ASC, c.kind ASC`,
		args...)
	if err != nil {
		return fmt.Errorf("query capacities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCapacity(rows)
		if err != nil {
			return fmt.Errorf("scan capacity: %w", err)
		}
		n, ok := byID[c.OwnerID()]
		if !ok {
			continue
		}
		if err := n.Attach(c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate capacities: %w", err)
	}
	return nil
}
