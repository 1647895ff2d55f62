package schema

// Role is the semantic role a model field plays when a card is mapped.
type Role int

const (
	// RoleEmpty fields are not fed by any payload key and stay empty.
	RoleEmpty Role = iota
	// RoleText fields take the value of the first present mapped key.
	RoleText
	// RoleTags fields receive the normalized, space-joined tag list.
	RoleTags
	// RoleProvenance fields receive the card's source file path.
	RoleProvenance
)

func (r Role) String() string {
	switch r {
	case RoleText:
		return "text"
	case RoleTags:
		return "tags"
	case RoleProvenance:
		return "provenance"
	default:
		return "empty"
	}
}

// Reserved payload keys with a meaning beyond field mapping.
const (
	KeyTags = "tags"
	KeyDeck = "deck"
)

// Binding ties one model field to its role and, for text fields, to the
// payload keys that feed it in yaml_field_map order.
type Binding struct {
	Field string
	Role  Role
	Keys  []string
}

// Bindings returns one binding per field, in field order.
func (m *Model) Bindings() []Binding {
	return m.bindings
}

func (m *Model) resolveBindings() []Binding {
	out := make([]Binding, len(m.Fields))
	for i, f := range m.Fields {
		b := Binding{Field: f}
		switch {
		case f == m.SourceField:
			b.Role = RoleProvenance
		case f == m.TagsField:
			b.Role = RoleTags
		default:
			for _, e := range m.FieldMap {
				if e.Field == f && e.Key != KeyTags {
					b.Keys = append(b.Keys, e.Key)
				}
			}
			if len(b.Keys) > 0 {
				b.Role = RoleText
			}
		}
		out[i] = b
	}
	return out
}
