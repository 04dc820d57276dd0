package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/captree/internal/model"
)

// CreateNode inserts n without its capacities. An existing ID returns an
// error wrapping model.ErrConflict.
func (r repo) CreateNode(ctx context.Context, n *model.Node) error {
	linked, err := marshalLinked(n.Linked)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.ID, err)
	}

	var calculated sql.NullString
	if n.CalculatedValue != nil {
		calculated = sql.NullString{String: *n.CalculatedValue, Valid: true}
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO nodes (
			id, tree_id, parent_id, label, type, sort_order,
			linked_variable_ids, linked_formula_ids, linked_condition_ids, linked_table_ids,
			calculated_value, force_recalculation, source_template_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID, n.TreeID, nullable(n.ParentID), n.Label, n.Type, n.Order,
		linked[0], linked[1], linked[2], linked[3],
		calculated, boolToInt(n.ForceRecalculation), nullable(n.SourceTemplateID),
	)
	if err != nil {
		return mapConstraint(err, fmt.Sprintf("insert node %s", n.ID))
	}
	return nil
}

// CreateCapacity inserts c. The owning node must exist. An existing
// capacity ID, or a second capacity of the same kind on one node, returns
// an error wrapping model.ErrConflict.
func (r repo) CreateCapacity(ctx context.Context, c model.Capacity) error {
	rec := model.ToRecord(c)
	if !rec.Kind.Valid() {
		return fmt.Errorf("capacity %s: unknown kind %q", rec.ID, rec.Kind)
	}

	payload, hash, err := marshalPayload(rec.Payload)
	if err != nil {
		return fmt.Errorf("capacity %s: %w", rec.ID, err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO capacities (id, kind, node_id, name, payload, payload_hash, shared)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, string(rec.Kind), rec.NodeID, rec.Name, payload, hash, boolToInt(rec.Shared))
	if err != nil {
		return mapConstraint(err, fmt.Sprintf("insert capacity %s", rec.ID))
	}
	return nil
}

// UpdateLinkedSets replaces the four linked sets of a node.
func (r repo) UpdateLinkedSets(ctx context.Context, nodeID string, sets model.LinkedSets) error {
	linked, err := marshalLinked(sets)
	if err != nil {
		return fmt.Errorf("node %s: %w", nodeID, err)
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE nodes SET
			linked_variable_ids = ?, linked_formula_ids = ?,
			linked_condition_ids = ?, linked_table_ids = ?
		WHERE id = ?
	`, linked[0], linked[1], linked[2], linked[3], nodeID)
	if err != nil {
		return fmt.Errorf("update linked sets of %s: %w", nodeID, err)
	}
	return requireAffected(res, "node", nodeID)
}

// SaveCalculatedValue stores the value the evaluator produced for a node and
// clears its recalculation flag. A nil value clears the cache.
func (r repo) SaveCalculatedValue(ctx context.Context, nodeID string, value *string) error {
	var v sql.NullString
	if value != nil {
		v = sql.NullString{String: *value, Valid: true}
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE nodes SET calculated_value = ?, force_recalculation = 0 WHERE id = ?
	`, v, nodeID)
	if err != nil {
		return fmt.Errorf("save calculated value of %s: %w", nodeID, err)
	}
	return requireAffected(res, "node", nodeID)
}

// UsedSuffixes returns the suffixes reserved for templateID in ascending
// order.
func (r repo) UsedSuffixes(ctx context.Context, templateID string) ([]int, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT suffix FROM template_suffixes WHERE template_id = ? ORDER BY suffix ASC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("query suffixes of %s: %w", templateID, err)
	}
	defer rows.Close()

	suffixes := []int{}
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan suffix: %w", err)
		}
		suffixes = append(suffixes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suffixes: %w", err)
	}
	return suffixes, nil
}

// ReserveSuffix records suffix as used for templateID. A suffix that is
// already reserved returns an error wrapping model.ErrConflict.
func (r repo) ReserveSuffix(ctx context.Context, templateID string, suffix int, operationID string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO template_suffixes (template_id, suffix, operation_id) VALUES (?, ?, ?)
	`, templateID, suffix, operationID)
	if err != nil {
		return mapConstraint(err, fmt.Sprintf("reserve suffix %d of %s", suffix, templateID))
	}
	return nil
}

// DeleteTree removes every node of a tree and, through the foreign key,
// their capacities. Suffix reservations of the tree's templates go too.
// It returns the number of nodes removed.
func (r repo) DeleteTree(ctx context.Context, treeID string) (int64, error) {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM template_suffixes
		WHERE template_id IN (SELECT id FROM nodes WHERE tree_id = ?)
	`, treeID)
	if err != nil {
		return 0, fmt.Errorf("delete suffixes of tree %s: %w", treeID, err)
	}

	res, err := r.q.ExecContext(ctx, `DELETE FROM nodes WHERE tree_id = ?`, treeID)
	if err != nil {
		return 0, fmt.Errorf("delete tree %s: %w", treeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete tree %s: %w", treeID, err)
	}
	return n, nil
}

func requireAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, model.ErrNotFound)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
