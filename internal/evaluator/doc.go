// Package evaluator computes capacity values against submitted form data.
//
// The evaluator only reads. Formulas fold their tokens into an arithmetic
// string that is parsed and evaluated by HCL with no variables and no
// functions in scope, after a character whitelist check. Conditions pick
// the first matching branch and return the value of its first SHOW target.
// Tables look up a cell from selector values. Variables resolve their
// sourceRef.
//
// Malformed input never fails: the result degrades to null (or false for
// predicates) and the problem is reported as a model.Diagnostic.
//
// References resolve in this order:
//  1. the exact key in form data
//  2. a key containing the identifier, or contained in it (optional)
//  3. the referenced capacity, evaluated recursively
//  4. the referenced node's formula, condition, table, then variable
//  5. the node's cached value, unless it is marked for recalculation
package evaluator
