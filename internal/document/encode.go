package document

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes the tree with mapping keys in document order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) encode(buf *bytes.Buffer) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}
	switch n.Kind {
	case MappingNode:
		buf.WriteByte('{')
		for i, pair := range n.Pairs {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeScalar(buf, pair.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := pair.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case ScalarNode:
		if n.Scalar == NullScalar {
			buf.WriteString("null")
			return nil
		}
		return encodeScalar(buf, n.Value)
	default:
		return fmt.Errorf("encode json: %w", &UnsupportedTypeError{Tag: n.Kind.String(), Line: n.Line, Column: n.Column})
	}
}

// encodeScalar writes v without HTML escaping so titles like "Rock & Roll"
// survive unchanged.
func encodeScalar(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
