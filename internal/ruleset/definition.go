package ruleset

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/rules"
	"invoicecheck/internal/schema"
)

// Definition is the YAML form of a rule set.
type Definition struct {
	Version     string                         `yaml:"version"`
	Description string                         `yaml:"description,omitempty"`
	Namespaces  map[string]string              `yaml:"namespaces"`
	CodeLists   map[string][]string            `yaml:"codelists,omitempty"`
	Tables      map[string]map[string][]string `yaml:"tables,omitempty"`
	Schema      schema.Definition              `yaml:"schema"`
	Rules       []rules.Definition             `yaml:"rules,omitempty"`
}

// Fragment holds code lists and tables maintained outside a rule-set file,
// e.g. generated by importcodes.
type Fragment struct {
	CodeLists map[string][]string            `yaml:"codelists,omitempty"`
	Tables    map[string]map[string][]string `yaml:"tables,omitempty"`
}

// Parse decodes a rule-set definition, rejecting unknown keys.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := decodeStrict(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRuleSet, err)
	}
	return &def, nil
}

// ParseFragment decodes a code-list fragment.
func ParseFragment(data []byte) (*Fragment, error) {
	var frag Fragment
	if err := decodeStrict(data, &frag); err != nil {
		return nil, fmt.Errorf("%w: code lists: %v", domain.ErrInvalidRuleSet, err)
	}
	return &frag, nil
}

func decodeStrict(data []byte, dst interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty document")
		}
		return err
	}
	return nil
}

// Merge adds the fragment's code lists and tables to def. Entries in the
// fragment replace entries of the same name.
func (d *Definition) Merge(frag *Fragment) {
	if frag == nil {
		return
	}
	if len(frag.CodeLists) > 0 && d.CodeLists == nil {
		d.CodeLists = make(map[string][]string, len(frag.CodeLists))
	}
	for name, values := range frag.CodeLists {
		d.CodeLists[name] = values
	}
	if len(frag.Tables) > 0 && d.Tables == nil {
		d.Tables = make(map[string]map[string][]string, len(frag.Tables))
	}
	for name, table := range frag.Tables {
		d.Tables[name] = table
	}
}

// Marshal encodes a fragment as YAML.
func (f *Fragment) Marshal(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("ruleset.Fragment.Marshal: %w", err)
	}
	return enc.Close()
}
