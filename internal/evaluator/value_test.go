package evaluator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captree/internal/ir"
)

func TestToNumber(t *testing.T) {
	tests := []struct {
		name string
		in   ir.IRValue
		want float64
		ok   bool
	}{
		{"number", n(2.5), 2.5, true},
		{"text", s(" 12 "), 12, true},
		{"decimal comma", s("2,5"), 2.5, true},
		{"thousands and decimal", s("1,000.5"), 0, false},
		{"two commas", s("1,000,5"), 0, false},
		{"true", ir.IRBool(true), 1, true},
		{"false", ir.IRBool(false), 0, true},
		{"blank", s(""), 0, false},
		{"word", s("abc"), 0, false},
		{"infinity text", s("Inf"), 0, false},
		{"infinity", n(math.Inf(1)), 0, false},
		{"null", ir.Null, 0, false},
		{"list", ir.IRArray{n(1)}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, isEmpty(nil))
	assert.True(t, isEmpty(ir.Null))
	assert.True(t, isEmpty(s(" \t")))
	assert.True(t, isEmpty(ir.IRArray{}))

	assert.False(t, isEmpty(n(0)))
	assert.False(t, isEmpty(ir.IRBool(false)))
	assert.False(t, isEmpty(s("0")))
	assert.False(t, isEmpty(ir.IRObject{}))
}

func TestLooseEquals(t *testing.T) {
	assert.True(t, looseEquals(s("3"), n(3)))
	assert.True(t, looseEquals(s("3,0"), s("3")))
	assert.True(t, looseEquals(s("ÉTÉ"), s(" été")))
	assert.True(t, looseEquals(ir.Null, s("")))
	assert.False(t, looseEquals(s("3"), s("three")))
}

func TestFormDataFromAny(t *testing.T) {
	form, err := FormDataFromAny(map[string]any{
		"width": 4.0,
		"label": "Sud",
		"empty": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, FormData{"width": n(4), "label": s("Sud"), "empty": ir.Null}, form)
}
