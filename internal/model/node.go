package model

import (
	"fmt"
	"slices"

	"github.com/roach88/captree/internal/ir"
)

// CapacityKind names one of the four capacity variants.
type CapacityKind string

const (
	KindFormula   CapacityKind = "formula"
	KindCondition CapacityKind = "condition"
	KindTable     CapacityKind = "table"
	KindVariable  CapacityKind = "variable"
)

// CapacityKinds lists every kind in a stable order.
var CapacityKinds = []CapacityKind{KindFormula, KindCondition, KindTable, KindVariable}

// Valid reports whether k is a known kind.
func (k CapacityKind) Valid() bool {
	return slices.Contains(CapacityKinds, k)
}

// Node is one element of a configuration tree.
type Node struct {
	ID       string `json:"id"`
	TreeID   string `json:"tree_id"`
	ParentID string `json:"parent_id,omitempty"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Order    int    `json:"order"`

	Formula   *Formula   `json:"formula,omitempty"`
	Condition *Condition `json:"condition,omitempty"`
	Table     *Table     `json:"table,omitempty"`
	Variable  *Variable  `json:"variable,omitempty"`

	Linked LinkedSets `json:"linked"`

	// CalculatedValue is the last value the evaluator stored for this node.
	CalculatedValue *string `json:"calculated_value,omitempty"`

	// ForceRecalculation blocks reuse of CalculatedValue until the node has
	// been evaluated again.
	ForceRecalculation bool `json:"force_recalculation,omitempty"`

	// SourceTemplateID is set on copies and names the template node.
	SourceTemplateID string `json:"source_template_id,omitempty"`
}

// Capacities returns the capacities the node owns, in CapacityKinds order.
func (n *Node) Capacities() []Capacity {
	var out []Capacity
	if n.Formula != nil {
		out = append(out, n.Formula)
	}
	if n.Condition != nil {
		out = append(out, n.Condition)
	}
	if n.Table != nil {
		out = append(out, n.Table)
	}
	if n.Variable != nil {
		out = append(out, n.Variable)
	}
	return out
}

// Capacity returns the node's capacity of kind k, or nil.
func (n *Node) Capacity(k CapacityKind) Capacity {
	switch k {
	case KindFormula:
		if n.Formula != nil {
			return n.Formula
		}
	case KindCondition:
		if n.Condition != nil {
			return n.Condition
		}
	case KindTable:
		if n.Table != nil {
			return n.Table
		}
	case KindVariable:
		if n.Variable != nil {
			return n.Variable
		}
	}
	return nil
}

// Attach sets c as the node's capacity of its kind.
func (n *Node) Attach(c Capacity) error {
	switch v := c.(type) {
	case *Formula:
		n.Formula = v
	case *Condition:
		n.Condition = v
	case *Table:
		n.Table = v
	case *Variable:
		n.Variable = v
	default:
		return fmt.Errorf("attach: unknown capacity type %T", c)
	}
	return nil
}

// Capacity is implemented by Formula, Condition, Table and Variable.
type Capacity interface {
	CapacityID() string
	OwnerID() string
	Kind() CapacityKind
	// Payload returns the JSON body the reference extractor scans.
	Payload() ir.IRValue
}

// Formula is a token-based arithmetic expression.
type Formula struct {
	ID     string     `json:"id"`
	NodeID string     `json:"node_id"`
	Name   string     `json:"name,omitempty"`
	Tokens ir.IRArray `json:"tokens"`
}

func (f *Formula) CapacityID() string { return f.ID }
func (f *Formula) OwnerID() string    { return f.NodeID }
func (f *Formula) Kind() CapacityKind { return KindFormula }
func (f *Formula) Payload() ir.IRValue {
	return ir.IRObject{"tokens": arrayOrNull(f.Tokens)}
}

// Condition is a first-match branch set. Set holds the raw
// {mode, branches, fallback} object; see ParseConditionSet.
type Condition struct {
	ID     string      `json:"id"`
	NodeID string      `json:"node_id"`
	Name   string      `json:"name,omitempty"`
	Set    ir.IRObject `json:"set"`
}

func (c *Condition) CapacityID() string  { return c.ID }
func (c *Condition) OwnerID() string     { return c.NodeID }
func (c *Condition) Kind() CapacityKind  { return KindCondition }
func (c *Condition) Payload() ir.IRValue { return objectOrNull(c.Set) }

// Table is a lookup matrix. Columns and Rows hold header labels with the
// corner cell at index 0; Data[r-1][c-1] is the cell for Rows[r] x Columns[c].
type Table struct {
	ID      string      `json:"id"`
	NodeID  string      `json:"node_id"`
	Name    string      `json:"name,omitempty"`
	Columns ir.IRArray  `json:"columns"`
	Rows    ir.IRArray  `json:"rows"`
	Data    ir.IRArray  `json:"data"`
	Meta    ir.IRObject `json:"meta,omitempty"`
	// Shared tables are referenced across subtrees and never duplicated.
	Shared bool `json:"shared,omitempty"`
}

func (t *Table) CapacityID() string { return t.ID }
func (t *Table) OwnerID() string    { return t.NodeID }
func (t *Table) Kind() CapacityKind { return KindTable }
func (t *Table) Payload() ir.IRValue {
	return ir.IRObject{
		"columns": arrayOrNull(t.Columns),
		"rows":    arrayOrNull(t.Rows),
		"data":    arrayOrNull(t.Data),
		"meta":    objectOrNull(t.Meta),
	}
}

// Variable exposes a node's resolved value under ExposedKey.
type Variable struct {
	ID         string `json:"id"`
	NodeID     string `json:"node_id"`
	ExposedKey string `json:"exposed_key"`
	SourceRef  string `json:"source_ref,omitempty"`
	SourceType string `json:"source_type,omitempty"`
}

func (v *Variable) CapacityID() string { return v.ID }
func (v *Variable) OwnerID() string    { return v.NodeID }
func (v *Variable) Kind() CapacityKind { return KindVariable }
func (v *Variable) Payload() ir.IRValue {
	return ir.IRObject{
		"exposedKey": ir.IRString(v.ExposedKey),
		"sourceRef":  ir.IRString(v.SourceRef),
		"sourceType": ir.IRString(v.SourceType),
	}
}

func arrayOrNull(v ir.IRArray) ir.IRValue {
	if v == nil {
		return ir.Null
	}
	return v
}

func objectOrNull(v ir.IRObject) ir.IRValue {
	if v == nil {
		return ir.Null
	}
	return v
}

// Record is the storage form of a capacity: kind, identity and one JSON
// payload. Store implementations persist records; the engine works with the
// typed capacities.
type Record struct {
	Kind    CapacityKind
	ID      string
	NodeID  string
	Name    string
	Payload ir.IRValue
	Shared  bool
}

// ToRecord flattens a capacity.
func ToRecord(c Capacity) Record {
	rec := Record{
		Kind:    c.Kind(),
		ID:      c.CapacityID(),
		NodeID:  c.OwnerID(),
		Payload: c.Payload(),
	}
	switch v := c.(type) {
	case *Formula:
		rec.Name = v.Name
	case *Condition:
		rec.Name = v.Name
	case *Table:
		rec.Name = v.Name
		rec.Shared = v.Shared
	case *Variable:
		rec.Name = v.ExposedKey
	}
	return rec
}

// FromRecord rebuilds a typed capacity from its storage form.
func FromRecord(rec Record) (Capacity, error) {
	obj, _ := rec.Payload.(ir.IRObject)
	switch rec.Kind {
	case KindFormula:
		tokens, _ := obj.Get("tokens").(ir.IRArray)
		return &Formula{ID: rec.ID, NodeID: rec.NodeID, Name: rec.Name, Tokens: tokens}, nil
	case KindCondition:
		return &Condition{ID: rec.ID, NodeID: rec.NodeID, Name: rec.Name, Set: obj}, nil
	case KindTable:
		cols, _ := obj.Get("columns").(ir.IRArray)
		rows, _ := obj.Get("rows").(ir.IRArray)
		data, _ := obj.Get("data").(ir.IRArray)
		meta, _ := obj.Get("meta").(ir.IRObject)
		return &Table{
			ID: rec.ID, NodeID: rec.NodeID, Name: rec.Name,
			Columns: cols, Rows: rows, Data: data, Meta: meta,
			Shared: rec.Shared,
		}, nil
	case KindVariable:
		key, _ := obj.String("exposedKey")
		src, _ := obj.String("sourceRef")
		typ, _ := obj.String("sourceType")
		return &Variable{ID: rec.ID, NodeID: rec.NodeID, ExposedKey: key, SourceRef: src, SourceType: typ}, nil
	default:
		return nil, fmt.Errorf("capacity %s: unknown kind %q", rec.ID, rec.Kind)
	}
}

// CloneCapacity returns a deep copy of c.
func CloneCapacity(c Capacity) Capacity {
	switch v := c.(type) {
	case *Formula:
		cp := *v
		cp.Tokens = cloneArray(v.Tokens)
		return &cp
	case *Condition:
		cp := *v
		cp.Set = cloneObject(v.Set)
		return &cp
	case *Table:
		cp := *v
		cp.Columns = cloneArray(v.Columns)
		cp.Rows = cloneArray(v.Rows)
		cp.Data = cloneArray(v.Data)
		cp.Meta = cloneObject(v.Meta)
		return &cp
	case *Variable:
		cp := *v
		return &cp
	}
	return c
}

func cloneArray(a ir.IRArray) ir.IRArray {
	if a == nil {
		return nil
	}
	return ir.Clone(a).(ir.IRArray)
}

func cloneObject(o ir.IRObject) ir.IRObject {
	if o == nil {
		return nil
	}
	return ir.Clone(o).(ir.IRObject)
}
