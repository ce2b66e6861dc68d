// Package contenthash computes the content addresses used to name assets in
// the output bundle.
//
// A digest is a pure function of a file's bytes: files are streamed through a
// 512-bit digest in fixed 8 KiB chunks so memory stays bounded regardless of
// file size. SHA-512 is the default; BLAKE3 with a 64-byte output is offered
// as a faster alternative of the same width. Both render as 128 lowercase hex
// characters.
//
// Memo wraps a Hasher with a per-build cache keyed by absolute path, so a
// package tree that references the same asset many times hashes it once.
package contenthash
