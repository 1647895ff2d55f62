package parser

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyPayload = errors.New("card block is empty")
	ErrNotMapping   = errors.New("card block is not a key/value mapping")
)

// Value is a payload value: a scalar string or a list of strings.
type Value struct {
	Scalar string
	List   []string
	IsList bool
}

// String renders the value as text. List items are joined with ", ".
func (v Value) String() string {
	if v.IsList {
		return strings.Join(v.List, ", ")
	}
	return v.Scalar
}

// Entry is one key/value pair of a payload.
type Entry struct {
	Key   string
	Value Value
}

// Payload is the ordered key/value content of a card block. Keys are kept
// exactly as written, including ones no model maps.
type Payload struct {
	entries []Entry
	index   map[string]int
}

// NewPayload builds a payload from entries, e.g. for tests. Later entries
// replace earlier ones with the same key.
func NewPayload(entries ...Entry) *Payload {
	p := &Payload{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		p.set(e.Key, e.Value)
	}
	return p
}

func (p *Payload) set(key string, v Value) {
	if i, ok := p.index[key]; ok {
		p.entries[i].Value = v
		return
	}
	p.index[key] = len(p.entries)
	p.entries = append(p.entries, Entry{Key: key, Value: v})
}

// Get returns the value stored under key.
func (p *Payload) Get(key string) (Value, bool) {
	i, ok := p.index[key]
	if !ok {
		return Value{}, false
	}
	return p.entries[i].Value, true
}

// Has reports whether key is present.
func (p *Payload) Has(key string) bool {
	_, ok := p.index[key]
	return ok
}

// Entries returns the pairs in document order.
func (p *Payload) Entries() []Entry {
	return p.entries
}

// Keys returns the keys in document order.
func (p *Payload) Keys() []string {
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.Key
	}
	return out
}

// Len returns the number of keys.
func (p *Payload) Len() int { return len(p.entries) }

// ParsePayload parses the YAML payload of a card block. The top level must
// be a mapping whose values are scalars or lists of scalars; block scalars
// keep their line breaks.
func ParsePayload(text string) (*Payload, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, ErrEmptyPayload
	}
	root := resolveAlias(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}

	p := &Payload{index: make(map[string]int, len(root.Content)/2)}
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: keys must be plain strings", k.Line)
		}
		key := k.Value
		if p.Has(key) {
			return nil, fmt.Errorf("line %d: key %q defined twice", k.Line, key)
		}
		val, err := convertValue(v)
		if err != nil {
			return nil, fmt.Errorf("line %d: key %q: %w", v.Line, key, err)
		}
		p.set(key, val)
	}
	if p.Len() == 0 {
		return nil, ErrEmptyPayload
	}
	return p, nil
}

func convertValue(n *yaml.Node) (Value, error) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.ScalarNode:
		return Value{Scalar: scalarText(n)}, nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			item = resolveAlias(item)
			if item.Kind != yaml.ScalarNode {
				return Value{}, errors.New("list items must be plain values")
			}
			if item.Tag == "!!null" {
				continue
			}
			items = append(items, item.Value)
		}
		return Value{List: items, IsList: true}, nil
	case yaml.MappingNode:
		return Value{}, errors.New("nested mappings are not supported")
	default:
		return Value{}, fmt.Errorf("unsupported value kind %d", n.Kind)
	}
}

func scalarText(n *yaml.Node) string {
	if n.Tag == "!!null" {
		return ""
	}
	return n.Value
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}
