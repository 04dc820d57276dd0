package model

import (
	"fmt"
	"strings"
)

// DiagnosticCode identifies a non-fatal problem found while linking or
// evaluating. Diagnostics are reported, never returned as errors.
type DiagnosticCode string

const (
	// DiagDanglingReference: an identifier found in a payload resolves to
	// no node or capacity.
	DiagDanglingReference DiagnosticCode = "DANGLING_REFERENCE"

	// DiagUnsupportedOperator: a condition uses an operator the evaluator
	// does not know. The expression evaluates to false.
	DiagUnsupportedOperator DiagnosticCode = "UNSUPPORTED_OPERATOR"

	// DiagUnsupportedActionType: a condition action has an unknown type.
	DiagUnsupportedActionType DiagnosticCode = "UNSUPPORTED_ACTION_TYPE"

	// DiagMalformedPayload: a payload does not have the expected shape.
	DiagMalformedPayload DiagnosticCode = "MALFORMED_PAYLOAD"

	// DiagCircularReference: nodes reference each other in a cycle, or
	// evaluation exceeded the recursion limit.
	DiagCircularReference DiagnosticCode = "CIRCULAR_REFERENCE"

	// DiagLookupFailed: a table lookup had no selection or no matching cell.
	DiagLookupFailed DiagnosticCode = "LOOKUP_FAILED"

	// DiagDuplicateSharedLabel: several shared references carry the same
	// label. Tolerated; reported for information only.
	DiagDuplicateSharedLabel DiagnosticCode = "DUPLICATE_SHARED_LABEL"

	// DiagFormKeyAlias: a reference had no form entry of its own and took
	// the value of a key that only contains it, or is contained in it.
	DiagFormKeyAlias DiagnosticCode = "FORM_KEY_ALIAS"
)

// Severity orders diagnostics for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one reported problem.
type Diagnostic struct {
	Code     DiagnosticCode `json:"code"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	// NodeID and CapacityID locate the problem when known.
	NodeID     string `json:"node_id,omitempty"`
	CapacityID string `json:"capacity_id,omitempty"`
	// Ref is the offending identifier or operator.
	Ref string `json:"ref,omitempty"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", d.Severity, d.Code, d.Message)
	if d.NodeID != "" {
		fmt.Fprintf(&b, " (node=%s", d.NodeID)
		if d.CapacityID != "" {
			fmt.Fprintf(&b, ", capacity=%s", d.CapacityID)
		}
		b.WriteByte(')')
	}
	return b.String()
}

// Diagnostics collects diagnostics in report order.
type Diagnostics []Diagnostic

// Warn appends a warning.
func (d *Diagnostics) Warn(code DiagnosticCode, format string, args ...any) *Diagnostic {
	return d.add(code, SeverityWarning, format, args...)
}

// Info appends an informational diagnostic.
func (d *Diagnostics) Info(code DiagnosticCode, format string, args ...any) *Diagnostic {
	return d.add(code, SeverityInfo, format, args...)
}

func (d *Diagnostics) add(code DiagnosticCode, sev Severity, format string, args ...any) *Diagnostic {
	*d = append(*d, Diagnostic{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	return &(*d)[len(*d)-1]
}

// Append adds all of other.
func (d *Diagnostics) Append(other Diagnostics) {
	*d = append(*d, other...)
}

// Has reports whether any diagnostic carries code.
func (d Diagnostics) Has(code DiagnosticCode) bool {
	for _, diag := range d {
		if diag.Code == code {
			return true
		}
	}
	return false
}

// Filter returns the diagnostics with the given code.
func (d Diagnostics) Filter(code DiagnosticCode) Diagnostics {
	var out Diagnostics
	for _, diag := range d {
		if diag.Code == code {
			out = append(out, diag)
		}
	}
	return out
}
