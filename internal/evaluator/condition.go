package evaluator

import (
	"strings"

	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
)

// condition runs the first branch whose predicate holds, else the
// fallback. The result is the value of the first SHOW target.
func (r *run) condition(c *model.Condition) ir.IRValue {
	set, diags := model.ParseConditionSet(c.Set)
	r.note(diags, c)

	for _, b := range set.Branches {
		if r.predicate(b.When, c) {
			return r.actions(b.Actions, c)
		}
	}
	if set.Fallback != nil {
		return r.actions(set.Fallback, c)
	}
	return ir.Null
}

// note attaches capacity context to parse diagnostics and records them.
func (r *run) note(diags model.Diagnostics, c model.Capacity) {
	for _, d := range diags {
		d.CapacityID = c.CapacityID()
		d.NodeID = c.OwnerID()
		r.diags = append(r.diags, d)
	}
}

func (r *run) actions(actions []model.Action, c *model.Condition) ir.IRValue {
	for _, a := range actions {
		switch a.Type {
		case model.ActionShow:
			if len(a.NodeIDs) == 0 {
				continue
			}
			return r.resolveID(a.NodeIDs[0])
		case model.ActionHide:
			continue
		default:
			d := r.diags.Warn(model.DiagUnsupportedActionType, "unsupported action type %q", a.Type)
			d.CapacityID = c.ID
			d.NodeID = c.NodeID
		}
	}
	return ir.Null
}

// predicate evaluates a condition expression. Anything it cannot evaluate
// is false.
func (r *run) predicate(x model.Expr, c *model.Condition) bool {
	switch x.Kind {
	case model.ExprGroup:
		if x.Combinator == "OR" {
			for _, child := range x.Children {
				if r.predicate(child, c) {
					return true
				}
			}
			return false
		}
		for _, child := range x.Children {
			if !r.predicate(child, c) {
				return false
			}
		}
		return true
	case model.ExprNot:
		if len(x.Children) != 1 {
			return false
		}
		return !r.predicate(x.Children[0], c)
	}

	left := r.operand(x.Left)
	right := r.operand(x.Right)

	switch strings.TrimSpace(x.Op) {
	case "isEmpty":
		return isEmpty(left)
	case "isNotEmpty":
		return !isEmpty(left)
	case "equals", "==", "eq":
		return looseEquals(left, right)
	case "notEquals", "!=", "neq":
		return !looseEquals(left, right)
	case "gt", ">":
		return compare(left, right, func(a, b float64) bool { return a > b })
	case "gte", ">=":
		return compare(left, right, func(a, b float64) bool { return a >= b })
	case "lt", "<":
		return compare(left, right, func(a, b float64) bool { return a < b })
	case "lte", "<=":
		return compare(left, right, func(a, b float64) bool { return a <= b })
	case "contains":
		return strings.Contains(fold(toText(left)), fold(toText(right)))
	case "notContains":
		return !strings.Contains(fold(toText(left)), fold(toText(right)))
	case "startsWith":
		return strings.HasPrefix(fold(toText(left)), fold(toText(right)))
	case "endsWith":
		return strings.HasSuffix(fold(toText(left)), fold(toText(right)))
	}

	d := r.diags.Warn(model.DiagUnsupportedOperator, "unsupported operator %q", x.Op)
	d.CapacityID = c.ID
	d.NodeID = c.NodeID
	return false
}

func (r *run) operand(o *model.Operand) ir.IRValue {
	if o == nil {
		return ir.Null
	}
	if o.Ref != nil {
		return r.resolve(*o.Ref)
	}
	if o.Value == nil {
		return ir.Null
	}
	return o.Value
}

func compare(a, b ir.IRValue, cmp func(a, b float64) bool) bool {
	fa, okA := toNumber(a)
	fb, okB := toNumber(b)
	return okA && okB && cmp(fa, fb)
}
