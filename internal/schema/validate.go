package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed model.schema.json
var modelSchemaJSON []byte

var templateRefRe = regexp.MustCompile(`\{\{([#/^]?)([^}]+?)\}\}`)

// builtinRefs are template references Anki resolves itself.
var builtinRefs = map[string]struct{}{
	"FrontSide": {},
	"Tags":      {},
	"Type":      {},
	"Deck":      {},
	"Subdeck":   {},
	"Card":      {},
	"CardFlag":  {},
	"CardID":    {},
}

var compiledModelSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("model.schema.json", bytes.NewReader(modelSchemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("model.schema.json")
})

// checkStructure validates the decoded YAML document against the model JSON
// Schema and returns one issue per failed location.
func checkStructure(doc interface{}) []string {
	sch, err := compiledModelSchema()
	if err != nil {
		return []string{fmt.Sprintf("internal model schema: %v", err)}
	}

	// Round-trip through JSON so the validator sees JSON types.
	encoded, err := json.Marshal(doc)
	if err != nil {
		return []string{fmt.Sprintf("model must be a mapping with string keys: %v", err)}
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var instance interface{}
	if err := dec.Decode(&instance); err != nil {
		return []string{err.Error()}
	}

	if err := sch.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return leafIssues(ve)
		}
		return []string{err.Error()}
	}
	return nil
}

func leafIssues(ve *jsonschema.ValidationError) []string {
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if len(node.Causes) == 0 {
			loc := node.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", loc, node.Message))
			return
		}
		for _, c := range node.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(out)
	return out
}

// Validate checks the template fields.
func (t Template) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Name, validation.Required),
		validation.Field(&t.QFmt, validation.Required),
	)
}

// validate applies the semantic rules that the JSON Schema cannot express.
func (m *Model) validate() []string {
	err := validation.ValidateStruct(m,
		validation.Field(&m.ID, validation.Required, validation.Min(int64(1))),
		validation.Field(&m.Name, validation.Required),
		validation.Field(&m.Fields, validation.Required, validation.By(uniqueNames)),
		validation.Field(&m.Templates, validation.Required, validation.By(m.templateRefs)),
		validation.Field(&m.FieldMap, validation.By(m.mapTargets)),
		validation.Field(&m.TagsField, validation.By(m.declaredField)),
		validation.Field(&m.SourceField, validation.By(m.declaredField)),
	)
	return flatten("", err)
}

func uniqueNames(value interface{}) error {
	names, _ := value.([]string)
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			return errors.New("field names must not be empty")
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("duplicate field %q", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func (m *Model) templateRefs(value interface{}) error {
	tmpls, _ := value.([]Template)
	for _, t := range tmpls {
		for _, side := range []struct{ label, fmt string }{{"qfmt", t.QFmt}, {"afmt", t.AFmt}} {
			if missing := m.undeclaredRefs(side.fmt); len(missing) > 0 {
				return fmt.Errorf("template %q (%s) uses undefined fields: %s",
					t.Name, side.label, strings.Join(missing, ", "))
			}
		}
	}
	return nil
}

func (m *Model) undeclaredRefs(format string) []string {
	var missing []string
	seen := map[string]struct{}{}
	for _, match := range templateRefRe.FindAllStringSubmatch(format, -1) {
		name := TemplateRef(match[2])
		if name == "" {
			continue
		}
		if _, ok := builtinRefs[name]; ok {
			continue
		}
		if m.HasField(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		missing = append(missing, name)
	}
	return missing
}

// TemplateRef returns the field name of a {{...}} reference body, dropping
// filter prefixes such as "cloze:" or "hint:".
func TemplateRef(body string) string {
	name := strings.TrimSpace(body)
	if strings.HasPrefix(name, "!") {
		return ""
	}
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = strings.TrimSpace(name[i+1:])
	}
	return name
}

// TemplateFields returns the declared fields a template format references,
// in first-use order.
func (m *Model) TemplateFields(format string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, match := range templateRefRe.FindAllStringSubmatch(format, -1) {
		name := TemplateRef(match[2])
		if !m.HasField(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func (m *Model) mapTargets(value interface{}) error {
	km, _ := value.(KeyMap)
	var missing []string
	for _, e := range km {
		if strings.TrimSpace(e.Key) == "" {
			return errors.New("empty payload key")
		}
		if !m.HasField(e.Field) {
			missing = append(missing, e.Field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("maps to fields not defined in the model: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (m *Model) declaredField(value interface{}) error {
	name, _ := value.(string)
	if name == "" || m.HasField(name) {
		return nil
	}
	return fmt.Errorf("field %q is not defined in the model", name)
}

// flatten turns nested ozzo validation errors into sorted "path: message"
// lines.
func flatten(prefix string, err error) []string {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		if prefix == "" {
			return []string{err.Error()}
		}
		return []string{prefix + ": " + err.Error()}
	}
	var out []string
	for key, e := range errs {
		p := key
		if prefix != "" {
			p = prefix + "." + key
		}
		out = append(out, flatten(p, e)...)
	}
	sort.Strings(out)
	return out
}
