// Package document is the tagged tree model for package descriptors.
//
// A descriptor decodes into Nodes of exactly three kinds: Mapping (ordered
// key/value pairs), Sequence, and Scalar (string, integer, float, boolean, or
// null). Anything YAML can express beyond that, such as binary blobs,
// timestamps, or application tags, is rejected at decode time with an
// UnsupportedTypeError so later passes never have to guess.
//
// Mapping order is preserved from the source and carried into the JSON
// encoding, which keeps manifests byte-for-byte reproducible.
package document
