package linker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
)

func TestAnalyzeCycles_Empty(t *testing.T) {
	cycles, diags := AnalyzeCycles(nil)
	assert.Empty(t, cycles)
	assert.Empty(t, diags)
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	cycles, _ := AnalyzeCycles(map[string][]string{
		"a": {"b", "c"},
		"b": {"c"},
		"c": nil,
	})
	assert.Empty(t, cycles)
}

func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	cycles, diags := AnalyzeCycles(map[string][]string{
		"a": {"b"},
		"b": {"a"},
		"c": {"a"},
	})
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "a"}, cycles[0].Path)
	assert.Equal(t, "circular reference: a -> b -> a", cycles[0].Message)

	require.Len(t, diags, 1)
	assert.Equal(t, model.DiagCircularReference, diags[0].Code)
	assert.Equal(t, model.SeverityWarning, diags[0].Severity)
}

func TestAnalyzeCycles_ThreeNodeCycle(t *testing.T) {
	cycles, _ := AnalyzeCycles(map[string][]string{
		"x": {"y"},
		"y": {"z"},
		"z": {"x"},
	})
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"x", "y", "z", "x"}, cycles[0].Path)
}

func TestAnalyzeCycles_FromNodes(t *testing.T) {
	a := &model.Node{ID: "A"}
	a.Formula = &model.Formula{ID: "FA", NodeID: "A", Tokens: ir.IRArray{ir.IRString("@value.B")}}
	b := &model.Node{ID: "B"}
	b.Formula = &model.Formula{ID: "FB", NodeID: "B", Tokens: ir.IRArray{ir.IRString("@value.node-formula:FA")}}

	res := RebuildLinks([]*model.Node{a, b})
	cycles, _ := AnalyzeCycles(res.Edges)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"A", "B", "A"}, cycles[0].Path)
}
