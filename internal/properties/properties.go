// Package properties describes the user-editable settings of an output type.
package properties

import "github.com/smazurov/mediaout/internal/settings"

// Type is the value kind of a property.
type Type string

// Property types.
const (
	TypeBool  Type = "bool"
	TypeInt   Type = "int"
	TypeFloat Type = "float"
	TypeText  Type = "text"
	TypePath  Type = "path"
)

// Property is one editable setting.
type Property struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        Type   `json:"type"`
	Value       any    `json:"value,omitempty"`
}

// Properties is an ordered property list.
type Properties struct {
	locale string
	props  []*Property
	index  map[string]*Property
}

// New creates an empty property list for a locale.
func New(locale string) *Properties {
	return &Properties{
		locale: locale,
		index:  make(map[string]*Property),
	}
}

// Locale returns the locale the descriptions were produced for.
func (p *Properties) Locale() string {
	return p.locale
}

// Add appends a property. Adding a duplicate name replaces the earlier one in place.
func (p *Properties) Add(name, description string, typ Type) *Property {
	if existing, ok := p.index[name]; ok {
		existing.Description = description
		existing.Type = typ
		return existing
	}
	prop := &Property{Name: name, Description: description, Type: typ}
	p.props = append(p.props, prop)
	p.index[name] = prop
	return prop
}

// Get returns the named property or nil.
func (p *Properties) Get(name string) *Property {
	if p == nil {
		return nil
	}
	return p.index[name]
}

// List returns a copy of the properties in declaration order.
func (p *Properties) List() []Property {
	if p == nil {
		return nil
	}
	out := make([]Property, len(p.props))
	for i, prop := range p.props {
		out[i] = *prop
	}
	return out
}

// ApplySettings fills each property's value from s.
func (p *Properties) ApplySettings(s *settings.Data) {
	if p == nil || s == nil {
		return
	}
	for _, prop := range p.props {
		if v, ok := s.Get(prop.Name); ok {
			prop.Value = v
		}
	}
}
