package evaluator

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
)

// arithmetic is the only text a folded formula may contain.
var arithmetic = regexp.MustCompile(`^[0-9.+\-*/()\s]*$`)

func (r *run) formula(f *model.Formula) ir.IRValue {
	tokens, diags := model.ParseTokens(f.Tokens)
	r.note(diags, f)

	expr := r.fold(tokens)
	v, ok := Arithmetic(expr)
	if !ok {
		if strings.TrimSpace(expr) != "" {
			d := r.diags.Warn(model.DiagMalformedPayload, "formula %q is not valid arithmetic", expr)
			d.CapacityID = f.ID
			d.NodeID = f.NodeID
		}
		return ir.Null
	}
	return ir.IRNumber(v)
}

// fold turns tokens into an expression string. References become their
// numeric value; unresolved or non-numeric values become 0. Negative values
// are parenthesized so "a - b" with b < 0 stays well formed.
func (r *run) fold(tokens []model.Token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		switch t.Kind {
		case model.TokenOperator:
			parts = append(parts, t.Text)
		case model.TokenReference:
			f, ok := toNumber(r.resolve(t.Ref))
			if !ok {
				f = 0
			}
			parts = append(parts, numeral(f))
		default:
			if f, ok := toNumber(ir.IRString(t.Text)); ok {
				parts = append(parts, numeral(f))
			} else {
				parts = append(parts, t.Text)
			}
		}
	}
	return strings.Join(parts, " ")
}

func numeral(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if f < 0 {
		return "(" + s + ")"
	}
	return s
}

// Arithmetic evaluates an expression made only of numerals, + - * / and
// parentheses. ok is false for anything else, for an empty expression, and
// for non-finite results such as division by zero.
func Arithmetic(expr string) (float64, bool) {
	if strings.TrimSpace(expr) == "" || !arithmetic.MatchString(expr) {
		return 0, false
	}

	parsed, diags := hclsyntax.ParseExpression([]byte(expr), "formula", hcl.InitialPos)
	if diags.HasErrors() {
		return 0, false
	}
	// No variables and no functions: nothing but the operators is in scope.
	val, diags := parsed.Value(&hcl.EvalContext{})
	if diags.HasErrors() || !val.IsKnown() || val.IsNull() || val.Type() != cty.Number {
		return 0, false
	}

	f, _ := val.AsBigFloat().Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
