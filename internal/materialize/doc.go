// Package materialize places referenced files into the output resource
// directory under their content addresses, either as verified copies or as
// symlinks back to the source.
package materialize
