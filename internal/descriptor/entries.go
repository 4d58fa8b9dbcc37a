package descriptor

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Entries is an ordered set of entry points. In descriptor files it is written
// as a mapping of bundle name to one path or a list of paths; the mapping's
// order is kept.
type Entries []Entry

// UnmarshalYAML decodes the entry mapping while preserving key order.
func (e *Entries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: entry must be a mapping of name to paths", node.Line)
	}

	out := make(Entries, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		var files []string
		switch value.Kind {
		case yaml.ScalarNode:
			files = []string{value.Value}
		case yaml.SequenceNode:
			if err := value.Decode(&files); err != nil {
				return fmt.Errorf("line %d: entry %q: %w", value.Line, key.Value, err)
			}
		default:
			return fmt.Errorf("line %d: entry %q must be a path or a list of paths", value.Line, key.Value)
		}

		out = append(out, Entry{Name: key.Value, Files: files})
	}

	*e = out
	return nil
}

// MarshalYAML encodes the entries as an ordered mapping.
func (e Entries) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, entry := range e {
		value := &yaml.Node{}
		if err := value.Encode(entry.Files); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: entry.Name},
			value,
		)
	}
	return node, nil
}

// MarshalJSON encodes the entries as a mapping with keys in declaration order.
func (e Entries) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, entry := range e {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(entry.Name)
		if err != nil {
			return nil, err
		}
		files, err := json.Marshal(entry.Files)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, files...)
	}
	return append(buf, '}'), nil
}
