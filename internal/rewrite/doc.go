// Package rewrite replaces file paths inside package descriptors with the
// content addresses of the files they name.
//
// A Rewriter walks a document.Node tree and returns a rewritten copy. String
// scalars are treated as paths relative to the package root unless they sit
// under a configured text field (title, artist, and so on). Every hashed file
// is recorded in a References accumulator that the build later materializes.
package rewrite
