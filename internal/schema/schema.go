// Package schema loads and validates the note-type definition that card
// payloads are mapped onto.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/mdcards/internal/apperr"
	"github.com/starford/mdcards/internal/models"
)

//go:embed default_model.yaml
var defaultModelYAML []byte

// Template is a card template. QFmt and AFmt use Anki's {{Field}} syntax.
type Template struct {
	Name string `yaml:"name" json:"name"`
	QFmt string `yaml:"qfmt" json:"qfmt"`
	AFmt string `yaml:"afmt" json:"afmt"`
}

// KeyMapping maps one payload key onto a model field.
type KeyMapping struct {
	Key   string
	Field string
}

// KeyMap is yaml_field_map in declaration order.
type KeyMap []KeyMapping

// UnmarshalYAML keeps the mapping order of the source document.
func (m *KeyMap) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: yaml_field_map must be a mapping", n.Line)
	}
	out := make(KeyMap, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: yaml_field_map entries must be key: field", k.Line)
		}
		out = append(out, KeyMapping{Key: k.Value, Field: v.Value})
	}
	*m = out
	return nil
}

// Target returns the field key is mapped to.
func (m KeyMap) Target(key string) (string, bool) {
	for _, km := range m {
		if km.Key == key {
			return km.Field, true
		}
	}
	return "", false
}

// fieldName accepts both `- Question` and `- name: Question`.
type fieldName string

func (f *fieldName) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*f = fieldName(n.Value)
		return nil
	case yaml.MappingNode:
		var obj struct {
			Name string `yaml:"name"`
		}
		if err := n.Decode(&obj); err != nil {
			return err
		}
		*f = fieldName(obj.Name)
		return nil
	default:
		return fmt.Errorf("line %d: field must be a name or {name: ...}", n.Line)
	}
}

type rawModel struct {
	ID          int64       `yaml:"id"`
	Name        string      `yaml:"name"`
	Fields      []fieldName `yaml:"fields"`
	Templates   []Template  `yaml:"templates"`
	CSS         string      `yaml:"css"`
	FieldMap    *KeyMap     `yaml:"yaml_field_map"`
	TagsField   string      `yaml:"tags_field"`
	SourceField string      `yaml:"source_field"`
}

// Model is a validated note type. It is built once per run and must not be
// modified afterwards.
type Model struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Fields      []string   `json:"fields"`
	Templates   []Template `json:"templates"`
	CSS         string     `json:"css"`
	FieldMap    KeyMap     `json:"yaml_field_map"`
	TagsField   string     `json:"tags_field"`   // receives the space-joined tag list, may be empty
	SourceField string     `json:"source_field"` // receives the card's source path, may be empty

	bindings []Binding
}

// Load reads and validates a model definition file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apperr.SchemaError{Source: path, Err: fmt.Errorf("read model: %w", err)}
	}
	return Parse(data, path)
}

// Default returns the built-in model: Question, Answer, SourceFile and Tags
// fields with a single card template.
func Default() *Model {
	m, err := Parse(defaultModelYAML, "default")
	if err != nil {
		panic(fmt.Sprintf("schema: built-in model is invalid: %v", err))
	}
	return m
}

// Parse validates a YAML model definition. source names the definition in
// errors. Every failure is an *apperr.SchemaError.
func Parse(data []byte, source string) (*Model, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &apperr.SchemaError{Source: source, Err: fmt.Errorf("invalid yaml: %w", err)}
	}
	if issues := checkStructure(doc); len(issues) > 0 {
		return nil, &apperr.SchemaError{Source: source, Issues: issues}
	}

	var raw rawModel
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &apperr.SchemaError{Source: source, Err: err}
	}

	m := &Model{
		ID:          raw.ID,
		Name:        strings.TrimSpace(raw.Name),
		Templates:   raw.Templates,
		CSS:         raw.CSS,
		TagsField:   strings.TrimSpace(raw.TagsField),
		SourceField: strings.TrimSpace(raw.SourceField),
	}
	for _, f := range raw.Fields {
		m.Fields = append(m.Fields, strings.TrimSpace(string(f)))
	}
	if raw.FieldMap != nil {
		m.FieldMap = *raw.FieldMap
	} else if err := m.defaultFieldMap(); err != nil {
		return nil, &apperr.SchemaError{Source: source, Err: err}
	}
	m.applyDefaults()

	if issues := m.validate(); len(issues) > 0 {
		return nil, &apperr.SchemaError{Source: source, Issues: issues}
	}
	m.bindings = m.resolveBindings()
	return m, nil
}

// defaultFieldMap maps q and a onto the first two fields, and tags onto a
// field named "tags" if there is one.
func (m *Model) defaultFieldMap() error {
	if len(m.Fields) < 2 {
		return errors.New("cannot derive default yaml_field_map: model needs at least two fields")
	}
	m.FieldMap = KeyMap{
		{Key: "q", Field: m.Fields[0]},
		{Key: "a", Field: m.Fields[1]},
	}
	if f, ok := m.fieldFold("tags"); ok {
		m.FieldMap = append(m.FieldMap, KeyMapping{Key: "tags", Field: f})
	}
	return nil
}

func (m *Model) applyDefaults() {
	if m.TagsField == "" {
		if f, ok := m.FieldMap.Target("tags"); ok {
			m.TagsField = f
		}
	}
	if m.SourceField == "" {
		if f, ok := m.fieldFold("sourcefile"); ok {
			m.SourceField = f
		}
	}
}

func (m *Model) fieldFold(name string) (string, bool) {
	for _, f := range m.Fields {
		if strings.EqualFold(f, name) {
			return f, true
		}
	}
	return "", false
}

// HasField reports whether name is a declared field.
func (m *Model) HasField(name string) bool {
	return m.FieldIndex(name) >= 0
}

// FieldIndex returns the position of name in the field list, or -1.
func (m *Model) FieldIndex(name string) int {
	for i, f := range m.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// NoteModel converts the model to the form the package writer consumes.
func (m *Model) NoteModel() models.NoteModel {
	tmpls := make([]models.Template, len(m.Templates))
	for i, t := range m.Templates {
		tmpls[i] = models.Template{Name: t.Name, QFmt: t.QFmt, AFmt: t.AFmt}
		for _, f := range m.TemplateFields(t.QFmt) {
			tmpls[i].QFields = append(tmpls[i].QFields, m.FieldIndex(f))
		}
	}
	return models.NoteModel{
		ID:        m.ID,
		Name:      m.Name,
		Fields:    append([]string(nil), m.Fields...),
		Templates: tmpls,
		CSS:       m.CSS,
	}
}
