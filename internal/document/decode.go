package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

const mergeTag = "!!merge"

// Decode parses a single YAML (or JSON) document into a Node tree. An empty
// input decodes to a null scalar.
func Decode(data []byte) (*Node, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))

	var root yaml.Node
	if err := decoder.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return Null(), nil
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	var extra yaml.Node
	if err := decoder.Decode(&extra); err == nil {
		return nil, fmt.Errorf("parse yaml: multiple documents in one descriptor (second starts at line %d)", extra.Line)
	} else if !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	c := converter{visiting: make(map[*yaml.Node]struct{})}
	return c.convert(&root)
}

type converter struct {
	visiting map[*yaml.Node]struct{}

	// decoded counts every node produced; aliased counts those produced
	// while expanding an alias.
	decoded    int
	aliased    int
	aliasDepth int
}

// allowedAliasRatio is the share of decoded nodes that may come from alias
// expansion. Small documents may alias freely; the allowance shrinks to 10%
// as the expanded tree approaches four million nodes.
func allowedAliasRatio(decoded int) float64 {
	switch {
	case decoded <= 400_000:
		return 0.99
	case decoded >= 4_000_000:
		return 0.10
	default:
		return 0.99 - 0.89*(float64(decoded-400_000)/3_600_000)
	}
}

func (c *converter) count(n *yaml.Node) error {
	c.decoded++
	if c.aliasDepth > 0 {
		c.aliased++
	}
	if c.aliased > 100 && c.decoded > 1000 && float64(c.aliased)/float64(c.decoded) > allowedAliasRatio(c.decoded) {
		return fmt.Errorf("line %d: %w (%d of %d nodes come from aliases)", n.Line, ErrExcessiveAliasing, c.aliased, c.decoded)
	}
	return nil
}

func (c *converter) convert(n *yaml.Node) (*Node, error) {
	if err := c.count(n); err != nil {
		return nil, err
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return c.convert(n.Content[0])
	case yaml.AliasNode:
		return c.convertAlias(n)
	case yaml.MappingNode:
		return c.convertMapping(n)
	case yaml.SequenceNode:
		out := &Node{Kind: SequenceNode, Items: make([]*Node, 0, len(n.Content)), Line: n.Line, Column: n.Column}
		for _, child := range n.Content {
			item, err := c.convert(child)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, item)
		}
		return out, nil
	case yaml.ScalarNode:
		return convertScalar(n)
	default:
		return nil, &UnsupportedTypeError{Tag: n.Tag, Line: n.Line, Column: n.Column}
	}
}

func (c *converter) convertAlias(n *yaml.Node) (*Node, error) {
	target := n.Alias
	if target == nil {
		return nil, fmt.Errorf("line %d: alias %q has no anchor", n.Line, n.Value)
	}
	if _, loop := c.visiting[target]; loop {
		return nil, fmt.Errorf("line %d: alias %q refers to itself", n.Line, n.Value)
	}
	c.visiting[target] = struct{}{}
	c.aliasDepth++
	defer func() {
		delete(c.visiting, target)
		c.aliasDepth--
	}()
	return c.convert(target)
}

func (c *converter) convertMapping(n *yaml.Node) (*Node, error) {
	out := &Node{Kind: MappingNode, Line: n.Line, Column: n.Column}

	explicit := make(map[string]struct{}, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := resolveAlias(n.Content[i])
		if key.Kind == yaml.ScalarNode && key.ShortTag() == mergeTag {
			continue
		}
		name, err := mappingKey(key)
		if err != nil {
			return nil, err
		}
		if _, dup := explicit[name]; dup {
			return nil, fmt.Errorf("line %d: duplicate mapping key %q", key.Line, name)
		}
		explicit[name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(explicit))
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := resolveAlias(n.Content[i])
		value := n.Content[i+1]

		if key.Kind == yaml.ScalarNode && key.ShortTag() == mergeTag {
			merged, err := c.mergeSources(value)
			if err != nil {
				return nil, err
			}
			for _, pair := range merged {
				if _, ok := explicit[pair.Key]; ok {
					continue
				}
				if _, ok := seen[pair.Key]; ok {
					continue
				}
				seen[pair.Key] = struct{}{}
				out.Pairs = append(out.Pairs, pair)
			}
			continue
		}

		name, _ := mappingKey(key)
		converted, err := c.convert(value)
		if err != nil {
			return nil, err
		}
		seen[name] = struct{}{}
		out.Pairs = append(out.Pairs, Pair{Key: name, Value: converted})
	}
	return out, nil
}

// mergeSources resolves the value of a "<<" key: one mapping or a sequence of
// mappings, earlier entries taking precedence.
func (c *converter) mergeSources(value *yaml.Node) ([]Pair, error) {
	var sources []*yaml.Node
	switch resolved := resolveAlias(value); resolved.Kind {
	case yaml.MappingNode:
		sources = append(sources, value)
	case yaml.SequenceNode:
		sources = append(sources, resolved.Content...)
	default:
		return nil, fmt.Errorf("line %d: merge key value must be a mapping or a sequence of mappings", value.Line)
	}

	var pairs []Pair
	seen := make(map[string]struct{})
	for _, source := range sources {
		converted, err := c.convert(source)
		if err != nil {
			return nil, err
		}
		if converted.Kind != MappingNode {
			return nil, fmt.Errorf("line %d: merge key value must be a mapping or a sequence of mappings", source.Line)
		}
		for _, pair := range converted.Pairs {
			if _, ok := seen[pair.Key]; ok {
				continue
			}
			seen[pair.Key] = struct{}{}
			pairs = append(pairs, pair)
		}
	}
	return pairs, nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// mappingKey renders a scalar key as the string used in JSON output.
func mappingKey(key *yaml.Node) (string, error) {
	if key.Kind != yaml.ScalarNode {
		return "", &UnsupportedTypeError{Tag: key.Tag, Line: key.Line, Column: key.Column, Reason: "mapping keys must be scalars"}
	}
	switch key.ShortTag() {
	case "!!str", "!!int", "!!float", "!!bool", "!!null":
		return key.Value, nil
	default:
		return "", &UnsupportedTypeError{Tag: key.ShortTag(), Line: key.Line, Column: key.Column, Reason: "unsupported mapping key type"}
	}
}

func convertScalar(n *yaml.Node) (*Node, error) {
	out := &Node{Kind: ScalarNode, Line: n.Line, Column: n.Column}
	switch n.ShortTag() {
	case "!!str":
		out.Scalar = StringScalar
		out.Value = n.Value
	case "!!null":
		out.Scalar = NullScalar
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: decode bool: %w", n.Line, err)
		}
		out.Scalar = BoolScalar
		out.Value = b
	case "!!int":
		out.Scalar = IntScalar
		var i int64
		if err := n.Decode(&i); err == nil {
			out.Value = i
			break
		}
		var u uint64
		if err := n.Decode(&u); err != nil {
			return nil, &UnsupportedTypeError{Tag: "!!int", Line: n.Line, Column: n.Column, Reason: "integer out of range"}
		}
		out.Value = u
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: decode float: %w", n.Line, err)
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, &UnsupportedTypeError{Tag: "!!float", Line: n.Line, Column: n.Column, Reason: "non-finite floats have no JSON form"}
		}
		out.Scalar = FloatScalar
		out.Value = f
	default:
		return nil, &UnsupportedTypeError{Tag: n.ShortTag(), Line: n.Line, Column: n.Column}
	}
	return out, nil
}
