package document

import (
	"fmt"
	"strings"

	"invoicecheck/internal/domain"
)

// QName is a namespace-qualified name.
type QName struct {
	Space string
	Local string
}

func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return "{" + q.Space + "}" + q.Local
}

// Attr is an element attribute with its source location.
type Attr struct {
	Name   QName
	Prefix string
	Value  string
	Loc    domain.Location
}

// DisplayName returns the attribute name as written in the source.
func (a Attr) DisplayName() string {
	if a.Prefix == "" {
		return a.Name.Local
	}
	return a.Prefix + ":" + a.Name.Local
}

// Node is an element of a parsed document. Nodes are never modified after
// Parse returns.
type Node struct {
	Name     QName
	Prefix   string
	Attrs    []Attr
	Text     string
	Children []*Node
	Parent   *Node
	Loc      domain.Location
	Index    int
}

// DisplayName returns the element name as written in the source.
func (n *Node) DisplayName() string {
	if n.Prefix == "" {
		return n.Name.Local
	}
	return n.Prefix + ":" + n.Name.Local
}

// TrimmedText returns the direct character data without surrounding whitespace.
func (n *Node) TrimmedText() string {
	return strings.TrimSpace(n.Text)
}

// Attr looks up an attribute by qualified name.
func (n *Node) Attr(name QName) (Attr, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// ChildrenNamed returns the direct children with the given name, in document order.
func (n *Node) ChildrenNamed(name QName) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Path returns an XPath-like location of the node, e.g.
// /Invoice/cac:InvoiceLine[2]/cbc:ID. Positions are only added when a
// parent has more than one child of the same name.
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.Parent {
		part := cur.DisplayName()
		if cur.Parent != nil {
			pos, total := 0, 0
			for _, sib := range cur.Parent.Children {
				if sib.Name == cur.Name {
					total++
					if sib == cur {
						pos = total
					}
				}
			}
			if total > 1 {
				part = fmt.Sprintf("%s[%d]", part, pos)
			}
		}
		parts = append(parts, part)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// Document is the parsed in-memory form of an input document.
type Document struct {
	Root     *Node
	Encoding string
	Size     int
	count    int
}

// NodeCount returns the number of element nodes.
func (d *Document) NodeCount() int { return d.count }

// Walk visits every node in document order. Returning false from fn skips
// the node's subtree.
func (d *Document) Walk(fn func(*Node) bool) {
	if d == nil || d.Root == nil {
		return
	}
	var visit func(*Node)
	visit = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(d.Root)
}
