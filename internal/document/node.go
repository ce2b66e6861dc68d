package document

import (
	"fmt"
	"strconv"
)

// Kind discriminates the three node shapes.
type Kind int

const (
	MappingNode Kind = iota + 1
	SequenceNode
	ScalarNode
)

func (k Kind) String() string {
	switch k {
	case MappingNode:
		return "mapping"
	case SequenceNode:
		return "sequence"
	case ScalarNode:
		return "scalar"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ScalarKind discriminates scalar values.
type ScalarKind int

const (
	StringScalar ScalarKind = iota + 1
	IntScalar
	FloatScalar
	BoolScalar
	NullScalar
)

func (k ScalarKind) String() string {
	switch k {
	case StringScalar:
		return "string"
	case IntScalar:
		return "int"
	case FloatScalar:
		return "float"
	case BoolScalar:
		return "bool"
	case NullScalar:
		return "null"
	default:
		return "scalar(" + strconv.Itoa(int(k)) + ")"
	}
}

// Pair is one mapping entry.
type Pair struct {
	Key   string
	Value *Node
}

// Node is one element of a descriptor tree. Exactly one of Pairs, Items, or
// Value is meaningful, selected by Kind.
type Node struct {
	Kind   Kind
	Pairs  []Pair
	Items  []*Node
	Scalar ScalarKind
	// Value holds string, int64, uint64, float64, bool, or nil.
	Value any

	// Line and Column locate the node in its source, when known.
	Line   int
	Column int
}

// Mapping builds a mapping node from pairs.
func Mapping(pairs ...Pair) *Node {
	return &Node{Kind: MappingNode, Pairs: pairs}
}

// Sequence builds a sequence node.
func Sequence(items ...*Node) *Node {
	return &Node{Kind: SequenceNode, Items: items}
}

// String builds a string scalar.
func String(s string) *Node {
	return &Node{Kind: ScalarNode, Scalar: StringScalar, Value: s}
}

// Int builds an integer scalar.
func Int(i int64) *Node {
	return &Node{Kind: ScalarNode, Scalar: IntScalar, Value: i}
}

// Float builds a float scalar.
func Float(f float64) *Node {
	return &Node{Kind: ScalarNode, Scalar: FloatScalar, Value: f}
}

// Bool builds a boolean scalar.
func Bool(b bool) *Node {
	return &Node{Kind: ScalarNode, Scalar: BoolScalar, Value: b}
}

// Null builds a null scalar.
func Null() *Node {
	return &Node{Kind: ScalarNode, Scalar: NullScalar}
}

// P is shorthand for a Pair.
func P(key string, value *Node) Pair {
	return Pair{Key: key, Value: value}
}

// IsString reports whether n is a string scalar.
func (n *Node) IsString() bool {
	return n != nil && n.Kind == ScalarNode && n.Scalar == StringScalar
}

// Str returns the string value of a string scalar.
func (n *Node) Str() (string, bool) {
	if !n.IsString() {
		return "", false
	}
	s, ok := n.Value.(string)
	return s, ok
}

// Get returns the value stored under key in a mapping node.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != MappingNode {
		return nil, false
	}
	for _, pair := range n.Pairs {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return nil, false
}

// Equal reports deep structural equality, including mapping order.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Kind != other.Kind {
		return false
	}
	switch n.Kind {
	case MappingNode:
		if len(n.Pairs) != len(other.Pairs) {
			return false
		}
		for i := range n.Pairs {
			if n.Pairs[i].Key != other.Pairs[i].Key || !n.Pairs[i].Value.Equal(other.Pairs[i].Value) {
				return false
			}
		}
		return true
	case SequenceNode:
		if len(n.Items) != len(other.Items) {
			return false
		}
		for i := range n.Items {
			if !n.Items[i].Equal(other.Items[i]) {
				return false
			}
		}
		return true
	default:
		return n.Scalar == other.Scalar && n.Value == other.Value
	}
}

// Position renders the source location, or "" when unknown.
func (n *Node) Position() string {
	if n == nil || n.Line == 0 {
		return ""
	}
	return fmt.Sprintf("line %d, column %d", n.Line, n.Column)
}
