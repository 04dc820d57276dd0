package model

import (
	"strconv"
	"strings"

	"github.com/roach88/captree/internal/ident"
	"github.com/roach88/captree/internal/ir"
)

// TokenKind tags a formula token.
type TokenKind int

const (
	TokenLiteral TokenKind = iota
	TokenOperator
	TokenReference
)

func (k TokenKind) String() string {
	switch k {
	case TokenOperator:
		return "operator"
	case TokenReference:
		return "reference"
	default:
		return "literal"
	}
}

// Token is one parsed formula token.
type Token struct {
	Kind TokenKind
	// Text is the literal or operator text. Empty for references.
	Text string
	Ref  ident.Ref
}

const operatorChars = "+-*/()"

// ParseTokens reads a formula token list. Tokens are either strings
// ("@value.X", "+", "3") or objects ({"type":"ref","ref":"@value.X"},
// {"type":"operator","value":"+"}, {"type":"value","value":3}). Tokens of
// unknown shape are skipped and reported.
func ParseTokens(tokens ir.IRArray) ([]Token, Diagnostics) {
	var diags Diagnostics
	out := make([]Token, 0, len(tokens))
	for i, raw := range tokens {
		tok, ok := parseToken(raw)
		if !ok {
			diags.Warn(DiagMalformedPayload, "formula token %d has unsupported shape %s", i, ir.AsString(raw))
			continue
		}
		out = append(out, tok)
	}
	return out, diags
}

func parseToken(raw ir.IRValue) (Token, bool) {
	switch v := raw.(type) {
	case ir.IRNumber:
		return Token{Kind: TokenLiteral, Text: ir.FormatNumber(float64(v))}, true
	case ir.IRString:
		return parseStringToken(string(v)), true
	case ir.IRObject:
		typ, _ := v.String("type")
		switch strings.ToLower(typ) {
		case "ref", "reference":
			s, ok := v.String("ref")
			if !ok {
				s, ok = v.String("value")
			}
			if !ok {
				return Token{}, false
			}
			ref, ok := ident.ParseRef(s)
			if !ok {
				return Token{}, false
			}
			return Token{Kind: TokenReference, Ref: ref}, true
		case "operator", "op":
			s, ok := v.String("value")
			if !ok {
				return Token{}, false
			}
			return Token{Kind: TokenOperator, Text: strings.TrimSpace(s)}, true
		case "value", "literal", "number":
			return Token{Kind: TokenLiteral, Text: ir.AsString(v.Get("value"))}, true
		}
	}
	return Token{}, false
}

func parseStringToken(s string) Token {
	t := strings.TrimSpace(s)
	if len(t) == 1 && strings.Contains(operatorChars, t) {
		return Token{Kind: TokenOperator, Text: t}
	}
	if _, err := strconv.ParseFloat(t, 64); err == nil {
		return Token{Kind: TokenLiteral, Text: t}
	}
	if m := ident.Scan(t); len(m) == 1 && m[0].Ref.Raw == t {
		return Token{Kind: TokenReference, Ref: m[0].Ref}
	}
	return Token{Kind: TokenLiteral, Text: s}
}

// ExprKind tags a condition expression.
type ExprKind string

const (
	ExprCompare ExprKind = "binary"
	ExprGroup   ExprKind = "group"
	ExprNot     ExprKind = "not"
)

// Expr is a condition predicate.
type Expr struct {
	Kind ExprKind
	// Op is the comparison operator for ExprCompare.
	Op          string
	Left, Right *Operand
	// Combinator is "AND" or "OR" for ExprGroup.
	Combinator string
	// Children holds group members, or the single negated expression.
	Children []Expr
}

// Operand is either a reference or a literal value.
type Operand struct {
	Ref   *ident.Ref
	Value ir.IRValue
}

// ParseExpr reads a "when" clause:
//
//	{"op":"isNotEmpty","left":{"ref":"@value.X"}}
//	{"op":"equals","left":{"ref":"@value.X"},"right":{"value":"Oui"}}
//	{"type":"group","combinator":"OR","children":[...]}
//	{"type":"not","expr":{...}}
func ParseExpr(v ir.IRValue) (Expr, Diagnostics) {
	var diags Diagnostics
	obj, ok := v.(ir.IRObject)
	if !ok {
		diags.Warn(DiagMalformedPayload, "condition expression is not an object")
		return Expr{}, diags
	}

	typ, _ := obj.String("type")
	op, _ := obj.String("op")
	switch {
	case strings.EqualFold(typ, "group"):
		comb, _ := obj.String("combinator")
		if comb == "" {
			comb, _ = obj.String("logic")
		}
		expr := Expr{Kind: ExprGroup, Combinator: strings.ToUpper(comb)}
		if expr.Combinator != "OR" {
			expr.Combinator = "AND"
		}
		children, _ := obj.Get("children").(ir.IRArray)
		if children == nil {
			children, _ = obj.Get("conditions").(ir.IRArray)
		}
		for _, c := range children {
			child, d := ParseExpr(c)
			diags.Append(d)
			expr.Children = append(expr.Children, child)
		}
		return expr, diags

	case strings.EqualFold(typ, "not") || strings.EqualFold(op, "not"):
		inner := obj.Get("expr")
		if ir.IsNull(inner) {
			inner = obj.Get("left")
		}
		child, d := ParseExpr(inner)
		diags.Append(d)
		return Expr{Kind: ExprNot, Children: []Expr{child}}, diags
	}

	expr := Expr{Kind: ExprCompare, Op: op}
	if l := obj.Get("left"); !ir.IsNull(l) {
		expr.Left = ParseOperand(l)
	}
	if r := obj.Get("right"); !ir.IsNull(r) {
		expr.Right = ParseOperand(r)
	}
	if op == "" {
		diags.Warn(DiagMalformedPayload, "condition expression has no operator")
	}
	return expr, diags
}

// ParseOperand reads {"ref": "..."}, {"value": ...} or a bare scalar. A bare
// string is a reference only when it carries a value prefix.
func ParseOperand(v ir.IRValue) *Operand {
	switch val := v.(type) {
	case ir.IRObject:
		if s, ok := val.String("ref"); ok {
			if ref, ok := ident.ParseRef(s); ok {
				return &Operand{Ref: &ref}
			}
		}
		return &Operand{Value: val.Get("value")}
	case ir.IRString:
		s := string(val)
		if ident.StripValuePrefix(s) != s {
			if ref, ok := ident.ParseRef(s); ok {
				return &Operand{Ref: &ref}
			}
		}
		return &Operand{Value: val}
	default:
		return &Operand{Value: v}
	}
}

// Action types.
const (
	ActionShow = "SHOW"
	ActionHide = "HIDE"
)

// Action is executed when a branch matches.
type Action struct {
	Type    string
	NodeIDs []string
}

// Branch is one condition branch.
type Branch struct {
	ID      string
	Label   string
	When    Expr
	Actions []Action
}

// ConditionSet is the typed form of a Condition payload.
type ConditionSet struct {
	Mode     string
	Branches []Branch
	// Fallback is nil when the payload has none.
	Fallback []Action
}

// ParseConditionSet reads {mode, branches:[{when, actions}], fallback}.
// The fallback may be an action list or an object with an "actions" list.
func ParseConditionSet(set ir.IRObject) (ConditionSet, Diagnostics) {
	var diags Diagnostics
	cs := ConditionSet{Mode: "first-match"}
	if m, ok := set.String("mode"); ok && m != "" {
		cs.Mode = m
	}

	branches, ok := set.Get("branches").(ir.IRArray)
	if !ok && !ir.IsNull(set.Get("branches")) {
		diags.Warn(DiagMalformedPayload, "condition branches is not a list")
	}
	for i, raw := range branches {
		obj, ok := raw.(ir.IRObject)
		if !ok {
			diags.Warn(DiagMalformedPayload, "condition branch %d is not an object", i)
			continue
		}
		b := Branch{}
		b.ID, _ = obj.String("id")
		b.Label, _ = obj.String("label")
		var d Diagnostics
		b.When, d = ParseExpr(obj.Get("when"))
		diags.Append(d)
		b.Actions, d = parseActions(obj.Get("actions"))
		diags.Append(d)
		cs.Branches = append(cs.Branches, b)
	}

	switch fb := set.Get("fallback").(type) {
	case ir.IRArray:
		acts, d := parseActions(fb)
		diags.Append(d)
		cs.Fallback = nonNil(acts)
	case ir.IRObject:
		acts, d := parseActions(fb.Get("actions"))
		diags.Append(d)
		cs.Fallback = nonNil(acts)
	}
	return cs, diags
}

func nonNil(a []Action) []Action {
	if a == nil {
		return []Action{}
	}
	return a
}

func parseActions(v ir.IRValue) ([]Action, Diagnostics) {
	var diags Diagnostics
	list, _ := v.(ir.IRArray)
	var out []Action
	for i, raw := range list {
		obj, ok := raw.(ir.IRObject)
		if !ok {
			diags.Warn(DiagMalformedPayload, "action %d is not an object", i)
			continue
		}
		a := Action{}
		a.Type, _ = obj.String("type")
		a.Type = strings.ToUpper(a.Type)
		ids, _ := obj.Get("nodeIds").(ir.IRArray)
		for _, id := range ids {
			if s, ok := id.(ir.IRString); ok && s != "" {
				a.NodeIDs = append(a.NodeIDs, string(s))
			}
		}
		out = append(out, a)
	}
	return out, diags
}

// Lookup is the typed form of a table's meta.lookup block.
type Lookup struct {
	Enabled       bool
	RowEnabled    bool
	ColumnEnabled bool
	// RowFieldID and ColumnFieldID name the nodes whose submitted values
	// select the row and column.
	RowFieldID    string
	ColumnFieldID string
	// DisplayRow and DisplayColumn fix one axis for single-axis lookups.
	DisplayRow    []string
	DisplayColumn []string
}

// ParseLookup reads meta.lookup. ok is false when the table has no lookup
// block at all.
//
//	{"enabled":true,"rowLookupEnabled":true,"columnLookupEnabled":true,
//	 "selectors":{"rowFieldId":"...","columnFieldId":"..."},
//	 "displayRow":"...","displayColumn":["...","..."]}
//
// When neither toggle is present, an axis is enabled if it has a selector.
func ParseLookup(meta ir.IRObject) (Lookup, bool) {
	obj, ok := meta.Get("lookup").(ir.IRObject)
	if !ok {
		return Lookup{}, false
	}
	l := Lookup{}
	if b, ok := obj.Get("enabled").(ir.IRBool); ok {
		l.Enabled = bool(b)
	}
	if sel, ok := obj.Get("selectors").(ir.IRObject); ok {
		l.RowFieldID, _ = sel.String("rowFieldId")
		l.ColumnFieldID, _ = sel.String("columnFieldId")
	}

	rowToggle, hasRow := obj.Get("rowLookupEnabled").(ir.IRBool)
	colToggle, hasCol := obj.Get("columnLookupEnabled").(ir.IRBool)
	if hasRow || hasCol {
		l.RowEnabled = bool(rowToggle)
		l.ColumnEnabled = bool(colToggle)
	} else {
		l.RowEnabled = l.RowFieldID != ""
		l.ColumnEnabled = l.ColumnFieldID != ""
	}

	l.DisplayRow = stringList(obj.Get("displayRow"))
	l.DisplayColumn = stringList(obj.Get("displayColumn"))
	return l, true
}

func stringList(v ir.IRValue) []string {
	switch val := v.(type) {
	case ir.IRString:
		if val == "" {
			return nil
		}
		return []string{string(val)}
	case ir.IRArray:
		var out []string
		for _, e := range val {
			if s := ir.AsString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// HeaderLabel returns the display label of a row or column header. Headers
// are plain strings or objects with a "label" or "name" field.
func HeaderLabel(v ir.IRValue) string {
	if obj, ok := v.(ir.IRObject); ok {
		if s, ok := obj.String("label"); ok {
			return s
		}
		if s, ok := obj.String("name"); ok {
			return s
		}
		return ""
	}
	return ir.AsString(v)
}
