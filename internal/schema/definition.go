package schema

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is the YAML form of a structural schema.
type Definition struct {
	Root ElementDef `yaml:"root"`
}

// ElementDef declares one element and, for complex types, its children.
type ElementDef struct {
	Name       string         `yaml:"name"`
	Min        *int           `yaml:"min,omitempty"`
	Max        Occurs         `yaml:"max,omitempty"`
	Type       string         `yaml:"type,omitempty"`
	CodeList   string         `yaml:"codelist,omitempty"`
	Pattern    string         `yaml:"pattern,omitempty"`
	MaxLength  int            `yaml:"max_length,omitempty"`
	Strict     bool           `yaml:"strict,omitempty"`
	Attributes []AttributeDef `yaml:"attributes,omitempty"`
	Children   []ElementDef   `yaml:"children,omitempty"`
}

// AttributeDef declares one attribute of an element.
type AttributeDef struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required,omitempty"`
	Type     string `yaml:"type,omitempty"`
	CodeList string `yaml:"codelist,omitempty"`
	Pattern  string `yaml:"pattern,omitempty"`
}

// Unbounded is the Occurs value for "no upper limit".
const Unbounded = -1

// Occurs is a maximum occurrence count. It accepts an integer or the
// string "unbounded". The zero value means "not set" and defaults to 1.
type Occurs struct {
	Set   bool
	Value int
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Occurs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("max must be a number or %q, got %s", "unbounded", kindName(value.Kind))
	}
	s := strings.TrimSpace(value.Value)
	if strings.EqualFold(s, "unbounded") || s == "*" {
		*o = Occurs{Set: true, Value: Unbounded}
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("max must be a number or %q, got %q", "unbounded", s)
	}
	*o = Occurs{Set: true, Value: n}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (o Occurs) MarshalYAML() (interface{}, error) {
	if !o.Set {
		return nil, nil
	}
	if o.Value == Unbounded {
		return "unbounded", nil
	}
	return o.Value, nil
}

// IsZero lets omitempty drop unset values.
func (o Occurs) IsZero() bool { return !o.Set }

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	default:
		return "node"
	}
}
