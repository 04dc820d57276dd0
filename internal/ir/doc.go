// Package ir provides the JSON value model used for capacity payloads.
//
// Formula tokens, condition trees and table metadata arrive as free-form
// JSON. They are decoded once into the sealed IRValue family and handled in
// that form everywhere else: the reference extractor walks it, the rewriter
// produces new values from it, and the store fingerprints it through
// MarshalCanonical.
//
// ir imports nothing internal.
package ir
