package evaluator

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/captree/internal/ir"
)

// FormData maps identifiers to submitted values.
type FormData map[string]ir.IRValue

// FormDataFromAny converts decoded JSON or YAML values.
func FormDataFromAny(m map[string]any) (FormData, error) {
	out := make(FormData, len(m))
	for k, v := range m {
		iv, err := ir.FromAny(v)
		if err != nil {
			return nil, err
		}
		out[k] = iv
	}
	return out, nil
}

// isEmpty reports whether v counts as not filled in: null, a blank string
// or an empty list.
func isEmpty(v ir.IRValue) bool {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return true
	case ir.IRString:
		return strings.TrimSpace(string(val)) == ""
	case ir.IRArray:
		return len(val) == 0
	}
	return false
}

// toNumber coerces v to a finite number.
func toNumber(v ir.IRValue) (float64, bool) {
	switch val := v.(type) {
	case ir.IRNumber:
		f := float64(val)
		return f, !math.IsInf(f, 0) && !math.IsNaN(f)
	case ir.IRBool:
		if val {
			return 1, true
		}
		return 0, true
	case ir.IRString:
		s := strings.TrimSpace(string(val))
		if s == "" {
			return 0, false
		}
		// A single decimal comma is accepted: "2,5" is 2.5.
		if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
			s = strings.Replace(s, ",", ".", 1)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// fold normalizes text for case-insensitive comparison. A Caser holds
// state, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func toText(v ir.IRValue) string {
	if v == nil {
		return ""
	}
	return ir.AsString(v)
}

// looseEquals compares numerically when both sides are numbers, otherwise
// as trimmed case-folded text.
func looseEquals(a, b ir.IRValue) bool {
	fa, okA := toNumber(a)
	fb, okB := toNumber(b)
	if okA && okB {
		return fa == fb
	}
	return fold(toText(a)) == fold(toText(b))
}
