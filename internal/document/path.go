package document

import (
	"fmt"
	"strings"

	"invoicecheck/internal/domain"
)

// Path is a compiled child-axis path such as cac:InvoiceLine/cbc:ID or
// /inv:Invoice/cbc:IssueDate, optionally ending in an attribute step
// (cbc:PayableAmount/@currencyID). A path of "." selects the context node.
type Path struct {
	expr     string
	absolute bool
	steps    []QName
	attr     *QName
}

// Value is one selected text value with its source location.
type Value struct {
	Text string
	Loc  domain.Location
	Node *Node
	Path string
}

// CompilePath parses expr, resolving prefixes against namespaces. An
// unprefixed element step uses the "" entry of namespaces, if any;
// unprefixed attribute steps never have a namespace.
func CompilePath(expr string, namespaces map[string]string) (Path, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Path{}, fmt.Errorf("%w: empty path", domain.ErrInvalidPath)
	}
	p := Path{expr: expr}
	rest := expr
	if strings.HasPrefix(rest, "/") {
		p.absolute = true
		rest = rest[1:]
	}
	parts := strings.Split(rest, "/")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
			return Path{}, fmt.Errorf("%w: empty step in %q", domain.ErrInvalidPath, expr)
		case part == ".":
			if len(parts) > 1 && i != 0 {
				return Path{}, fmt.Errorf("%w: '.' must be the first step in %q", domain.ErrInvalidPath, expr)
			}
			continue
		case strings.HasPrefix(part, "@"):
			if i != len(parts)-1 {
				return Path{}, fmt.Errorf("%w: attribute step must be last in %q", domain.ErrInvalidPath, expr)
			}
			qn, err := resolveStep(part[1:], namespaces, false)
			if err != nil {
				return Path{}, fmt.Errorf("%w: %v in %q", domain.ErrInvalidPath, err, expr)
			}
			p.attr = &qn
		default:
			qn, err := resolveStep(part, namespaces, true)
			if err != nil {
				return Path{}, fmt.Errorf("%w: %v in %q", domain.ErrInvalidPath, err, expr)
			}
			p.steps = append(p.steps, qn)
		}
	}
	if p.absolute && len(p.steps) == 0 {
		return Path{}, fmt.Errorf("%w: absolute path %q selects nothing", domain.ErrInvalidPath, expr)
	}
	return p, nil
}

// MustCompilePath is CompilePath that panics on error. It is meant for
// package-level paths in tests and fixed catalogs.
func MustCompilePath(expr string, namespaces map[string]string) Path {
	p, err := CompilePath(expr, namespaces)
	if err != nil {
		panic(err)
	}
	return p
}

func resolveStep(step string, namespaces map[string]string, element bool) (QName, error) {
	prefix, local, found := strings.Cut(step, ":")
	if !found {
		local, prefix = prefix, ""
	}
	if local == "" {
		return QName{}, fmt.Errorf("empty name in step %q", step)
	}
	if prefix == "" {
		if element {
			return QName{Space: namespaces[""], Local: local}, nil
		}
		return QName{Local: local}, nil
	}
	uri, ok := namespaces[prefix]
	if !ok {
		return QName{}, fmt.Errorf("unknown namespace prefix %q", prefix)
	}
	return QName{Space: uri, Local: local}, nil
}

func (p Path) String() string { return p.expr }

// IsAttribute reports whether the path ends in an attribute step.
func (p Path) IsAttribute() bool { return p.attr != nil }

// IsAbsolute reports whether the path starts at the document root.
func (p Path) IsAbsolute() bool { return p.absolute }

// Steps returns the element steps of the path.
func (p Path) Steps() []QName {
	return append([]QName(nil), p.steps...)
}

// IsZero reports whether the path was never compiled.
func (p Path) IsZero() bool { return p.expr == "" }

// Select returns the element nodes reached from ctx, in document order.
// For attribute paths it returns the elements that own the attribute.
func (p Path) Select(ctx *Node) []*Node {
	if ctx == nil {
		return nil
	}
	steps := p.steps
	current := []*Node{ctx}
	if p.absolute {
		root := ctx
		for root.Parent != nil {
			root = root.Parent
		}
		if root.Name != steps[0] {
			return nil
		}
		current = []*Node{root}
		steps = steps[1:]
	}
	for _, step := range steps {
		var next []*Node
		for _, n := range current {
			next = append(next, n.ChildrenNamed(step)...)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	if p.attr != nil {
		var owners []*Node
		for _, n := range current {
			if _, ok := n.Attr(*p.attr); ok {
				owners = append(owners, n)
			}
		}
		return owners
	}
	return current
}

// Values returns the trimmed text of every selected element, or the value
// of every selected attribute.
func (p Path) Values(ctx *Node) []Value {
	nodes := p.Select(ctx)
	out := make([]Value, 0, len(nodes))
	for _, n := range nodes {
		if p.attr != nil {
			a, _ := n.Attr(*p.attr)
			out = append(out, Value{Text: a.Value, Loc: a.Loc, Node: n, Path: n.Path() + "/@" + a.DisplayName()})
			continue
		}
		out = append(out, Value{Text: n.TrimmedText(), Loc: n.Loc, Node: n, Path: n.Path()})
	}
	return out
}

// First returns the first selected value.
func (p Path) First(ctx *Node) (Value, bool) {
	vals := p.Values(ctx)
	if len(vals) == 0 {
		return Value{}, false
	}
	return vals[0], true
}
