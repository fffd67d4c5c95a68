package schema

import (
	"fmt"
	"regexp"
	"strings"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
)

// Schema is a compiled, immutable structural schema. It is safe for
// concurrent use.
type Schema struct {
	root *element
}

type element struct {
	name      document.QName
	display   string
	min       int
	max       int
	typ       Datatype
	codeList  string
	codes     map[string]bool
	pattern   *regexp.Regexp
	source    string // pattern as written
	maxLength int
	strict    bool
	attrs     []*attribute
	children  []*element
}

type attribute struct {
	name     document.QName
	display  string
	required bool
	typ      Datatype
	codeList string
	codes    map[string]bool
	pattern  *regexp.Regexp
	source   string
}

// Compile validates def and resolves its names. namespaces maps the
// prefixes used in def to namespace URIs; codeLists holds the named value
// sets referenced by codelist fields.
func Compile(def Definition, namespaces map[string]string, codeLists map[string][]string) (*Schema, error) {
	c := compiler{namespaces: namespaces, codeLists: make(map[string]map[string]bool, len(codeLists))}
	for name, values := range codeLists {
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		c.codeLists[name] = set
	}
	if def.Root.Name == "" {
		return nil, fmt.Errorf("%w: root element name is required", domain.ErrInvalidSchema)
	}
	root, err := c.element(def.Root, "")
	if err != nil {
		return nil, err
	}
	// The root always occurs exactly once.
	root.min, root.max = 1, 1
	return &Schema{root: root}, nil
}

// RootName returns the expected document element.
func (s *Schema) RootName() document.QName { return s.root.name }

type compiler struct {
	namespaces map[string]string
	codeLists  map[string]map[string]bool
}

func (c *compiler) element(def ElementDef, parent string) (*element, error) {
	where := parent + "/" + def.Name
	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s: %s", domain.ErrInvalidSchema, where, fmt.Sprintf(format, args...))
	}

	qn, err := c.name(def.Name, true)
	if err != nil {
		return nil, fail("%v", err)
	}
	typ, err := parseDatatype(def.Type, len(def.Children) > 0)
	if err != nil {
		return nil, fail("%v", err)
	}
	if typ != TypeComplex && len(def.Children) > 0 {
		return nil, fail("type %s cannot have children", typ)
	}

	el := &element{
		name:      qn,
		display:   def.Name,
		min:       1,
		max:       1,
		typ:       typ,
		maxLength: def.MaxLength,
		strict:    def.Strict,
	}
	if def.Min != nil {
		el.min = *def.Min
	}
	if def.Max.Set {
		el.max = def.Max.Value
	}
	if el.min < 0 {
		return nil, fail("min must not be negative")
	}
	if el.max != Unbounded && el.max < 1 {
		return nil, fail("max must be at least 1 or unbounded")
	}
	if el.max != Unbounded && el.min > el.max {
		return nil, fail("min %d exceeds max %d", el.min, el.max)
	}
	if def.MaxLength < 0 {
		return nil, fail("max_length must not be negative")
	}

	el.codeList, el.codes, err = c.codes(typ, def.CodeList)
	if err != nil {
		return nil, fail("%v", err)
	}
	if def.Pattern != "" {
		if el.pattern, err = regexp.Compile("^(?:" + def.Pattern + ")$"); err != nil {
			return nil, fail("bad pattern: %v", err)
		}
		el.source = def.Pattern
	}

	seenAttr := make(map[document.QName]bool)
	for _, ad := range def.Attributes {
		a, err := c.attribute(ad)
		if err != nil {
			return nil, fail("attribute %q: %v", ad.Name, err)
		}
		if seenAttr[a.name] {
			return nil, fail("attribute %q declared twice", ad.Name)
		}
		seenAttr[a.name] = true
		el.attrs = append(el.attrs, a)
	}

	seen := make(map[document.QName]bool)
	for _, cd := range def.Children {
		child, err := c.element(cd, where)
		if err != nil {
			return nil, err
		}
		if seen[child.name] {
			return nil, fmt.Errorf("%w: %s: child %q declared twice", domain.ErrInvalidSchema, where, cd.Name)
		}
		seen[child.name] = true
		el.children = append(el.children, child)
	}
	return el, nil
}

func (c *compiler) attribute(def AttributeDef) (*attribute, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	qn, err := c.name(def.Name, false)
	if err != nil {
		return nil, err
	}
	typ, err := parseDatatype(def.Type, false)
	if err != nil {
		return nil, err
	}
	if typ == TypeComplex {
		return nil, fmt.Errorf("attributes cannot be complex")
	}
	a := &attribute{name: qn, display: def.Name, required: def.Required, typ: typ}
	if a.codeList, a.codes, err = c.codes(typ, def.CodeList); err != nil {
		return nil, err
	}
	if def.Pattern != "" {
		if a.pattern, err = regexp.Compile("^(?:" + def.Pattern + ")$"); err != nil {
			return nil, fmt.Errorf("bad pattern: %v", err)
		}
		a.source = def.Pattern
	}
	return a, nil
}

func (c *compiler) codes(typ Datatype, list string) (string, map[string]bool, error) {
	if list == "" {
		if typ == TypeCode {
			return "", nil, fmt.Errorf("type code requires a codelist")
		}
		return "", nil, nil
	}
	set, ok := c.codeLists[list]
	if !ok {
		return "", nil, fmt.Errorf("unknown codelist %q", list)
	}
	return list, set, nil
}

func (c *compiler) name(s string, element bool) (document.QName, error) {
	if s == "" {
		return document.QName{}, fmt.Errorf("name is required")
	}
	p, err := document.CompilePath(s, c.namespaces)
	if err != nil {
		return document.QName{}, err
	}
	steps := p.Steps()
	if p.IsAttribute() || p.IsAbsolute() || len(steps) != 1 {
		return document.QName{}, fmt.Errorf("%q is not a single name", s)
	}
	qn := steps[0]
	if !element && !strings.Contains(s, ":") {
		qn.Space = ""
	}
	return qn, nil
}
