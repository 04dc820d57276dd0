package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
)

func TestFormulaScenario(t *testing.T) {
	fx := formulaNode("F", "FX", tokens(s("@value.X"), s("+"), s("@value.Y")))
	nodes := []*model.Node{fx, {ID: "X", TreeID: "tree"}, {ID: "Y", TreeID: "tree"}}

	v, diags := eval(t, nodes, fx.Formula, FormData{"X": s("3"), "Y": s("4")})
	assert.Equal(t, ir.IRNumber(7), v)
	assert.Empty(t, diags)

	v, diags = eval(t, nodes, fx.Formula, FormData{"X": s("3")})
	assert.Equal(t, ir.IRNumber(3), v)
	assert.Empty(t, diags, "an unfilled field is not a problem")
}

func TestFormulaDanglingReferenceDefaultsToZero(t *testing.T) {
	fx := formulaNode("F", "FX", tokens(s("@value.X"), s("*"), n(2), s("+"), s("@value.ghost")))

	v, diags := eval(t, []*model.Node{fx}, fx.Formula, FormData{"X": n(5)})
	assert.Equal(t, ir.IRNumber(10), v)
	require.Len(t, diags, 1)
	assert.Equal(t, model.DiagDanglingReference, diags[0].Code)
	assert.Equal(t, "ghost", diags[0].Ref)
}

func TestFormulaNegativeValuesStayWellFormed(t *testing.T) {
	fx := formulaNode("F", "FX", tokens(n(10), s("-"), s("@value.X")))

	v, _ := eval(t, []*model.Node{fx}, fx.Formula, FormData{"X": s("-2")})
	assert.Equal(t, ir.IRNumber(12), v)
}

func TestFormulaObjectTokens(t *testing.T) {
	fx := formulaNode("F", "FX", tokens(
		ir.IRObject{"type": s("ref"), "ref": s("@value.X")},
		ir.IRObject{"type": s("operator"), "value": s("/")},
		ir.IRObject{"type": s("value"), "value": n(4)},
	))

	v, _ := eval(t, []*model.Node{fx}, fx.Formula, FormData{"X": s("2,5")})
	assert.Equal(t, ir.IRNumber(0.625), v)
}

func TestFormulaDegradesToNull(t *testing.T) {
	tests := []struct {
		name     string
		toks     ir.IRArray
		wantDiag bool
	}{
		{"division by zero", tokens(n(1), s("/"), n(0)), true},
		{"dangling operator", tokens(n(1), s("+")), true},
		{"text literal", tokens(s("abc")), true},
		{"empty", tokens(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := formulaNode("F", "FX", tt.toks)
			v, diags := eval(t, []*model.Node{fx}, fx.Formula, nil)
			assert.Equal(t, ir.Null, v)
			assert.Equal(t, tt.wantDiag, diags.Has(model.DiagMalformedPayload))
		})
	}
}

func TestFormulaReferencesOtherFormula(t *testing.T) {
	inner := formulaNode("I", "FI", tokens(n(2), s("*"), n(3)))
	outer := formulaNode("O", "FO", tokens(s("node-formula:FI"), s("+"), n(1)))

	v, diags := eval(t, []*model.Node{inner, outer}, outer.Formula, nil)
	assert.Equal(t, ir.IRNumber(7), v)
	assert.Empty(t, diags)
}

func TestFormulaNodeReferenceComputesNode(t *testing.T) {
	inner := formulaNode("I", "FI", tokens(n(2), s("*"), n(3)))
	outer := formulaNode("O", "FO", tokens(s("@value.I"), s("+"), n(1)))

	v, _ := eval(t, []*model.Node{inner, outer}, outer.Formula, nil)
	assert.Equal(t, ir.IRNumber(7), v)
}

func TestFormulaCycleIsBounded(t *testing.T) {
	a := formulaNode("A", "F1", tokens(s("node-formula:F2"), s("+"), n(1)))
	b := formulaNode("B", "F2", tokens(s("node-formula:F1"), s("+"), n(1)))

	v, diags := eval(t, []*model.Node{a, b}, a.Formula, nil)
	assert.Equal(t, ir.IRNumber(2), v)
	assert.True(t, diags.Has(model.DiagCircularReference))
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want float64
		ok   bool
	}{
		{"1 + 2 * 3", 7, true},
		{"(1 + 2) * 3", 9, true},
		{"10 / 4", 2.5, true},
		{"2 - (-3)", 5, true},
		{"", 0, false},
		{"   ", 0, false},
		{"1 / 0", 0, false},
		{"abs(-1)", 0, false},
		{"x + 1", 0, false},
		{"1 2", 0, false},
		{"((1)", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, ok := Arithmetic(tt.expr)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
