package contenthash

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// ChunkSize is the read size used when streaming files through a digest.
const ChunkSize = 8 * 1024

// DigestSize is the digest width in bytes for every supported algorithm.
const DigestSize = 64

// Algorithm names a supported 512-bit digest.
type Algorithm string

const (
	SHA512   Algorithm = "sha512"
	BLAKE3   Algorithm = "blake3-512"
	Default            = SHA512
	hexWidth           = DigestSize * 2
)

// ParseAlgorithm resolves a configured algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha512", "sha-512":
		return SHA512, nil
	case "blake3", "blake3-512":
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q (want sha512 or blake3-512)", name)
	}
}

func (a Algorithm) newHash() hash.Hash {
	if a == BLAKE3 {
		return &blake3Wide{Hasher: blake3.New()}
	}
	return sha512.New()
}

// blake3Wide extends BLAKE3's default 32-byte output to DigestSize bytes via
// its extendable output.
type blake3Wide struct {
	*blake3.Hasher
}

func (b *blake3Wide) Size() int { return DigestSize }

func (b *blake3Wide) Sum(in []byte) []byte {
	out := make([]byte, DigestSize)
	_, _ = b.Digest().Read(out)
	return append(in, out...)
}

var bufferPool = sync.Pool{
	New: func() any {
		buffer := make([]byte, ChunkSize)
		return &buffer
	},
}

// Hasher computes content digests for files on a filesystem.
type Hasher struct {
	fs        afero.Fs
	algorithm Algorithm
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithFs sets the filesystem files are read from. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(h *Hasher) {
		h.fs = fs
	}
}

// New constructs a Hasher for the given algorithm.
func New(algorithm Algorithm, opts ...Option) (*Hasher, error) {
	if algorithm == "" {
		algorithm = Default
	}
	if algorithm != SHA512 && algorithm != BLAKE3 {
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
	h := &Hasher{fs: afero.NewOsFs(), algorithm: algorithm}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Algorithm reports the digest algorithm in use.
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// HashFile streams the file at path through the digest and returns its hex
// encoding. Directories and unreadable paths fail with an *IOError.
func (h *Hasher) HashFile(path string) (string, error) {
	info, err := h.fs.Stat(path)
	if err != nil {
		return "", &IOError{Op: "stat", Path: path, Err: err}
	}
	if info.IsDir() {
		return "", &IOError{Op: "hash", Path: path, Err: ErrIsDirectory}
	}

	file, err := h.fs.Open(path)
	if err != nil {
		return "", &IOError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	digest, err := h.HashReader(file)
	if err != nil {
		return "", &IOError{Op: "read", Path: path, Err: err}
	}
	return digest, nil
}

// HashReader digests everything readable from r.
func (h *Hasher) HashReader(r io.Reader) (string, error) {
	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)

	digest := h.algorithm.newHash()
	if _, err := io.CopyBuffer(digest, r, *bufPtr); err != nil {
		return "", err
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// NewDigest returns a fresh streaming digest for the hasher's algorithm, for
// callers that tee bytes while copying.
func (h *Hasher) NewDigest() hash.Hash {
	return h.algorithm.newHash()
}

// IsDigest reports whether s has the shape of a content address.
func IsDigest(s string) bool {
	if len(s) != hexWidth {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
