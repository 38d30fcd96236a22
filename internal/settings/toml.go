package settings

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// FromTOML decodes a TOML document into a new snapshot.
func FromTOML(data []byte) (*Data, error) {
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return FromMap(m), nil
}

// MarshalTOML encodes the effective values as a TOML document.
func (d *Data) MarshalTOML() ([]byte, error) {
	data, err := toml.Marshal(d.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	return data, nil
}
