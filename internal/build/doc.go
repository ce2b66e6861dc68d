// Package build runs the songpack pipeline end to end.
//
// A Builder discovers package descriptors under the source directory,
// rewrites every file path they contain into a content address, writes the
// aggregated manifest (song.json) and runtime descriptor (info.json), and
// materializes the referenced files into res/. The output directory is
// locked for the duration of a run so two builds never interleave.
//
// Nothing is written to song.json until every package has been decoded and
// rewritten; a malformed package aborts the build before any manifest
// exists. Materialization failures are collected and reported together after
// the remaining files have been placed.
package build
