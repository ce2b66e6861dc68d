package rewrite

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"songpack/internal/contenthash"
	"songpack/internal/document"
	"songpack/internal/logging"
)

// DefaultTextFields lists mapping keys whose string values are kept as text.
var DefaultTextFields = []string{
	"title",
	"subtitle",
	"artist",
	"album",
	"composer",
	"lyricist",
	"genre",
	"language",
	"description",
	"comment",
}

// Rewriter turns path strings into content addresses.
type Rewriter struct {
	memo       *contenthash.Memo
	refs       *References
	textFields map[string]struct{}
	logger     *slog.Logger
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithTextFields replaces the set of mapping keys whose values are left as text.
func WithTextFields(fields ...string) Option {
	return func(r *Rewriter) {
		r.textFields = make(map[string]struct{}, len(fields))
		for _, field := range fields {
			field = strings.TrimSpace(field)
			if field != "" {
				r.textFields[field] = struct{}{}
			}
		}
	}
}

// WithLogger sets the logger used for per-reference debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rewriter) {
		r.logger = logger
	}
}

// New constructs a Rewriter that hashes through memo and records into refs.
func New(memo *contenthash.Memo, refs *References, opts ...Option) *Rewriter {
	r := &Rewriter{memo: memo, refs: refs}
	WithTextFields(DefaultTextFields...)(r)
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "rewrite")
	return r
}

// IsTextField reports whether values under key are kept as text.
func (r *Rewriter) IsTextField(key string) bool {
	_, ok := r.textFields[key]
	return ok
}

// Rewrite returns a copy of node with every path string replaced by the
// digest of the file it names. Relative paths resolve against packageRoot.
// The input tree is not modified.
func (r *Rewriter) Rewrite(node *document.Node, packageRoot string) (*document.Node, error) {
	root, err := filepath.Abs(packageRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve package root %s: %w", packageRoot, err)
	}
	return r.walk(node, root, "")
}

func (r *Rewriter) walk(node *document.Node, root, at string) (*document.Node, error) {
	if node == nil {
		return document.Null(), nil
	}
	switch node.Kind {
	case document.MappingNode:
		out := &document.Node{Kind: document.MappingNode, Pairs: make([]document.Pair, 0, len(node.Pairs)), Line: node.Line, Column: node.Column}
		for _, pair := range node.Pairs {
			field := joinField(at, pair.Key)
			if r.IsTextField(pair.Key) {
				out.Pairs = append(out.Pairs, document.P(pair.Key, clone(pair.Value)))
				continue
			}
			value, err := r.walk(pair.Value, root, field)
			if err != nil {
				return nil, err
			}
			out.Pairs = append(out.Pairs, document.P(pair.Key, value))
		}
		return out, nil
	case document.SequenceNode:
		out := &document.Node{Kind: document.SequenceNode, Items: make([]*document.Node, 0, len(node.Items)), Line: node.Line, Column: node.Column}
		for i, item := range node.Items {
			value, err := r.walk(item, root, at+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, value)
		}
		return out, nil
	case document.ScalarNode:
		switch node.Scalar {
		case document.StringScalar:
			return r.rewriteString(node, root, at)
		case document.IntScalar, document.FloatScalar, document.BoolScalar, document.NullScalar:
			return clone(node), nil
		}
		return nil, &UnsupportedTypeError{Path: displayField(at), Tag: node.Scalar.String()}
	default:
		return nil, &UnsupportedTypeError{Path: displayField(at), Tag: node.Kind.String()}
	}
}

func (r *Rewriter) rewriteString(node *document.Node, root, at string) (*document.Node, error) {
	value, _ := node.Str()
	path := norm.NFC.String(value)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	digest, err := r.memo.Hash(path)
	if err != nil {
		return nil, &PathError{Field: displayField(at), Value: value, Position: node.Position(), Err: err}
	}

	if r.refs.Add(Reference{Hash: digest, AbsolutePath: path, PackageRoot: root}) {
		r.logger.Debug("asset referenced",
			logging.String("field", displayField(at)),
			logging.String("path", path),
			logging.String("hash", digest[:16]),
		)
	} else if owner, ok := r.refs.Lookup(digest); ok && owner.AbsolutePath != path {
		r.logger.Debug("asset aliased",
			logging.String("field", displayField(at)),
			logging.String("path", path),
			logging.String("materialized_from", owner.AbsolutePath),
		)
	}

	out := document.String(digest)
	out.Line, out.Column = node.Line, node.Column
	return out, nil
}

func clone(node *document.Node) *document.Node {
	if node == nil {
		return nil
	}
	out := *node
	if node.Pairs != nil {
		out.Pairs = make([]document.Pair, len(node.Pairs))
		for i, pair := range node.Pairs {
			out.Pairs[i] = document.P(pair.Key, clone(pair.Value))
		}
	}
	if node.Items != nil {
		out.Items = make([]*document.Node, len(node.Items))
		for i, item := range node.Items {
			out.Items[i] = clone(item)
		}
	}
	return &out
}

func joinField(at, key string) string {
	if at == "" {
		return key
	}
	return at + "." + key
}

func displayField(at string) string {
	if at == "" {
		return "(root)"
	}
	return at
}

// lastKey returns the final mapping key of a field path, without indexes.
func lastKey(field string) string {
	if i := strings.LastIndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	if field == "(root)" {
		return ""
	}
	return field
}
