// Package main hosts the songpack CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, builds a structured
// logger from it, and hands the work to the internal packages: build runs the
// pipeline, clean empties an output tree, list and hash inspect inputs,
// history reads the build ledger, and config scaffolds or checks the
// configuration file.
package main
