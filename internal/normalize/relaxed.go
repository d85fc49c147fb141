package normalize

import (
	"encoding/json"
	"errors"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	errNotMapping = errors.New("top-level value is not a mapping")
	errBareKey    = errors.New("mapping key must be quoted")
	errNoValue    = errors.New("mapping entry has no value")
)

// parseStrict decodes text as JSON, keeping numbers as json.Number.
func parseStrict(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errNotMapping
	}
	return out, nil
}

// parseRelaxed accepts Python-literal style objects: single quotes,
// True/False/None and trailing commas. A YAML flow mapping covers all of
// that; the node tree is walked by hand so None maps to nil and numbers
// keep the same json.Number shape as the strict path.
func parseRelaxed(text string) (map[string]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, errNotMapping
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, errNotMapping
	}
	value, err := convertNode(root)
	if err != nil {
		return nil, err
	}
	return value.(map[string]any), nil
}

func convertNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return convertNode(n.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			if err := checkEntry(n.Content[i], n.Content[i+1]); err != nil {
				return nil, err
			}
			v, err := convertNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := convertNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		return convertScalar(n)
	default:
		return nil, errNotMapping
	}
}

// checkEntry keeps the relaxed path to what a Python literal allows: keys
// are quoted strings or numbers, and every key has an explicit value. This
// rejects prose such as "{2}" or "{name}".
func checkEntry(key, value *yaml.Node) error {
	if key.Kind != yaml.ScalarNode {
		return errBareKey
	}
	if key.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle) == 0 {
		switch key.ShortTag() {
		case "!!int", "!!float":
		default:
			return errBareKey
		}
	}
	if value.Kind == yaml.ScalarNode && value.Value == "" &&
		value.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle) == 0 {
		return errNoValue
	}
	return nil
}

func convertScalar(n *yaml.Node) (any, error) {
	if n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle) != 0 {
		return n.Value, nil
	}
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case "!!int", "!!float":
		return json.Number(n.Value), nil
	}
	switch n.Value {
	case "None":
		return nil, nil
	case "True":
		return true, nil
	case "False":
		return false, nil
	}
	return n.Value, nil
}
