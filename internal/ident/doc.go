// Package ident defines the identifier grammar shared by the reference
// extractor and the duplication engine.
//
// Recognized forms:
//   - Plain node reference: 36-character UUID, optionally followed by one or
//     more copy suffixes ("-1", "-2-3").
//   - Generated node reference: "node_<opaque>".
//   - Shared reference: "shared-ref-<opaque>", optionally suffixed.
//   - Formula reference: "node-formula:<id>" or "formula:<id>".
//   - Condition reference: "node-condition:<id>" or "condition:<id>".
//   - Table reference: "node-table:<id>" or "@table.<id>".
//   - Value reference: "@value.<id>", "@select.<id>", "@calculated.<id>",
//     "@input.<id>". The id may itself carry a capacity prefix.
//
// ident imports nothing internal.
package ident
