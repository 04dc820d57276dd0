package harness

import (
	"github.com/roach88/captree/internal/ir"
)

// Outcome of a step that succeeded. Failed steps carry an error code.
const OutcomeOK = "ok"

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64       `json:"seq"`
	Action  string      `json:"action"`
	Args    ir.IRObject `json:"args,omitempty"`
	Outcome string      `json:"outcome"`
	// Result is the evaluated value, or a summary of a committed copy.
	Result      ir.IRValue `json:"result,omitempty"`
	Diagnostics []string   `json:"diagnostics,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// canonical returns the event as an IR object holding only set fields.
func (e TraceEvent) canonical() ir.IRObject {
	obj := ir.IRObject{
		"seq":     ir.IRNumber(e.Seq),
		"action":  ir.IRString(e.Action),
		"outcome": ir.IRString(e.Outcome),
	}
	if len(e.Args) > 0 {
		obj["args"] = e.Args
	}
	if e.Result != nil {
		obj["result"] = e.Result
	}
	if len(e.Diagnostics) > 0 {
		codes := make(ir.IRArray, len(e.Diagnostics))
		for i, c := range e.Diagnostics {
			codes[i] = ir.IRString(c)
		}
		obj["diagnostics"] = codes
	}
	return obj
}
