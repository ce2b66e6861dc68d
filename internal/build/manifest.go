package build

import (
	"bytes"
	"encoding/json"
	"fmt"

	"songpack/internal/document"
)

const (
	ManifestName = "song.json"
	InfoName     = "info.json"
	ResDir       = "res"
)

// Manifest is the aggregated list of rewritten package descriptors, in
// descriptor path order.
type Manifest []*document.Node

// Encode renders the manifest as indented JSON with a trailing newline.
// Mapping keys keep their descriptor order and text is not HTML-escaped.
func (m Manifest) Encode() ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('[')
	for i, node := range m {
		if i > 0 {
			compact.WriteByte(',')
		}
		data, err := node.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode manifest entry %d: %w", i, err)
		}
		compact.Write(data)
	}
	compact.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent manifest: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// RuntimeInfo is written to info.json for the player that loads the bundle.
type RuntimeInfo struct {
	APIEnable   bool   `json:"apiEnable"`
	APIURL      string `json:"apiUrl"`
	SongInfoURL string `json:"songInfoUrl"`
	ResURL      string `json:"resUrl"`
}

// DefaultRuntimeInfo points the player at the bundled manifest and resources.
func DefaultRuntimeInfo() RuntimeInfo {
	return RuntimeInfo{
		APIEnable:   false,
		APIURL:      "",
		SongInfoURL: "/" + ManifestName,
		ResURL:      "/" + ResDir,
	}
}

// Encode renders the runtime info as indented JSON with a trailing newline.
func (r RuntimeInfo) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode runtime info: %w", err)
	}
	return buf.Bytes(), nil
}
