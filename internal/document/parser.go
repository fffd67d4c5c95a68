package document

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"invoicecheck/internal/domain"
)

const (
	xmlNamespace   = "http://www.w3.org/XML/1998/namespace"
	xmlnsNamespace = "http://www.w3.org/2000/xmlns/"

	// how many tokens are decoded between cancellation checks
	cancelCheckInterval = 256
)

// Options bounds and configures a single parse.
type Options struct {
	// MaxBytes limits the raw input size. Zero means no limit.
	MaxBytes int64
	// MaxDepth limits element nesting. Zero means no limit.
	MaxDepth int
	// ContentType is the declared MIME type of the input, if any. Its
	// charset parameter takes part in encoding detection.
	ContentType string
}

// ParseError reports input that is not well-formed.
type ParseError struct {
	Location domain.Location
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %s: %s", e.Location, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes r into a Document. Malformed input yields a *ParseError.
// Exceeding a limit or context cancellation yields a plain wrapped error.
func Parse(ctx context.Context, r io.Reader, opts Options) (*Document, error) {
	raw, err := readLimited(r, opts.MaxBytes)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("document.Parse: %w", err)
	}

	dec, err := decodeInput(raw, opts.ContentType)
	if err != nil {
		return nil, err
	}

	p := &parser{
		ctx:   ctx,
		opts:  opts,
		data:  dec.data,
		lines: newLineIndex(dec.data),
		doc:   &Document{Encoding: dec.encoding, Size: len(raw)},
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

// ParseBytes is Parse over an in-memory buffer.
func ParseBytes(ctx context.Context, data []byte, opts Options) (*Document, error) {
	return Parse(ctx, bytes.NewReader(data), opts)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("document.Parse: reading input: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("document.Parse: reading input: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("document.Parse: %w (limit %d bytes)", domain.ErrDocumentTooLarge, limit)
	}
	return data, nil
}

type openElement struct {
	node  *Node
	raw   string
	scope map[string]string
	text  *strings.Builder
}

type parser struct {
	ctx   context.Context
	opts  Options
	data  []byte
	lines *lineIndex
	doc   *Document
	stack []openElement
}

func (p *parser) run() error {
	d := xml.NewDecoder(bytes.NewReader(p.data))
	d.Strict = true
	// Input is already UTF-8; the declaration is informational here.
	d.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	rootClosed := false
	for n := 0; ; n++ {
		if n%cancelCheckInterval == 0 {
			if err := p.ctx.Err(); err != nil {
				return fmt.Errorf("document.Parse: %w", err)
			}
		}

		start := int(d.InputOffset())
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.syntaxError(d, err)
		}
		end := int(d.InputOffset())

		switch t := tok.(type) {
		case xml.StartElement:
			if rootClosed {
				return p.errorAt(start, "document has more than one root element")
			}
			if err := p.startElement(t, start, end); err != nil {
				return err
			}
		case xml.EndElement:
			if err := p.endElement(t, start); err != nil {
				return err
			}
			if len(p.stack) == 0 {
				rootClosed = true
			}
		case xml.CharData:
			if len(p.stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return p.errorAt(start, "character data outside the root element")
				}
				continue
			}
			p.stack[len(p.stack)-1].text.Write(t)
		case xml.Comment, xml.ProcInst, xml.Directive:
		}
	}

	if len(p.stack) > 0 {
		open := p.stack[len(p.stack)-1]
		return p.errorAt(len(p.data), fmt.Sprintf("unexpected end of input: element <%s> is not closed", open.raw))
	}
	if p.doc.Root == nil {
		return &ParseError{
			Location: p.lines.location(len(p.data)),
			Reason:   "document contains no root element",
			Err:      domain.ErrEmptyDocument,
		}
	}
	return nil
}

func (p *parser) startElement(t xml.StartElement, start, end int) error {
	if p.opts.MaxDepth > 0 && len(p.stack) >= p.opts.MaxDepth {
		return fmt.Errorf("document.Parse: %w (limit %d)", domain.ErrDocumentTooDeep, p.opts.MaxDepth)
	}

	var parentScope map[string]string
	if len(p.stack) > 0 {
		parentScope = p.stack[len(p.stack)-1].scope
	}
	scope := parentScope
	cloned := false
	for _, a := range t.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			if !cloned {
				scope = cloneScope(parentScope)
				cloned = true
			}
			if a.Name.Space == "xmlns" {
				scope[a.Name.Local] = a.Value
			} else {
				scope[""] = a.Value
			}
		}
	}

	space, err := resolvePrefix(scope, t.Name.Space, true)
	if err != nil {
		return p.errorAt(start, err.Error())
	}

	node := &Node{
		Name:   QName{Space: space, Local: t.Name.Local},
		Prefix: t.Name.Space,
		Loc:    p.lines.location(start),
		Index:  p.doc.count,
	}
	p.doc.count++

	offsets := attrOffsets(p.data[start:end])
	seen := make(map[QName]bool, len(t.Attr))
	for _, a := range t.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		aspace, err := resolvePrefix(scope, a.Name.Space, false)
		if err != nil {
			return p.errorAt(start, err.Error())
		}
		qn := QName{Space: aspace, Local: a.Name.Local}
		raw := rawName(a.Name)
		loc := node.Loc
		if off, ok := offsets[raw]; ok {
			loc = p.lines.location(start + off)
		}
		if seen[qn] {
			return p.errorAt(loc.Offset, fmt.Sprintf("duplicate attribute %q on element <%s>", raw, rawName(t.Name)))
		}
		seen[qn] = true
		node.Attrs = append(node.Attrs, Attr{Name: qn, Prefix: a.Name.Space, Value: a.Value, Loc: loc})
	}

	if len(p.stack) == 0 {
		p.doc.Root = node
	} else {
		parent := p.stack[len(p.stack)-1].node
		node.Parent = parent
		parent.Children = append(parent.Children, node)
	}
	p.stack = append(p.stack, openElement{node: node, raw: rawName(t.Name), scope: scope, text: &strings.Builder{}})
	return nil
}

func (p *parser) endElement(t xml.EndElement, start int) error {
	name := rawName(t.Name)
	if len(p.stack) == 0 {
		return p.errorAt(start, fmt.Sprintf("unexpected end element </%s>", name))
	}
	top := p.stack[len(p.stack)-1]
	if top.raw != name {
		return p.errorAt(start, fmt.Sprintf("element <%s> closed by </%s>", top.raw, name))
	}
	top.node.Text = top.text.String()
	p.stack = p.stack[:len(p.stack)-1]
	return nil
}

func (p *parser) syntaxError(d *xml.Decoder, err error) error {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return p.errorAt(int(d.InputOffset()), se.Msg)
	}
	return p.errorAt(int(d.InputOffset()), err.Error())
}

func (p *parser) errorAt(offset int, reason string) *ParseError {
	if offset > len(p.data) {
		offset = len(p.data)
	}
	return &ParseError{Location: p.lines.location(offset), Reason: reason}
}

func resolvePrefix(scope map[string]string, prefix string, element bool) (string, error) {
	switch prefix {
	case "":
		if element {
			return scope[""], nil
		}
		return "", nil
	case "xml":
		return xmlNamespace, nil
	case "xmlns":
		return xmlnsNamespace, nil
	}
	uri, ok := scope[prefix]
	if !ok {
		return "", fmt.Errorf("undeclared namespace prefix %q", prefix)
	}
	return uri, nil
}

func cloneScope(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func rawName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// attrOffsets returns the offset of every attribute name inside a raw start
// tag, keyed by the name as written.
func attrOffsets(tag []byte) map[string]int {
	out := make(map[string]int)
	i := 1
	for i < len(tag) && !isSpace(tag[i]) && tag[i] != '>' && tag[i] != '/' {
		i++
	}
	for i < len(tag) {
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || tag[i] == '>' || tag[i] == '/' {
			break
		}
		start := i
		for i < len(tag) && !isSpace(tag[i]) && tag[i] != '=' && tag[i] != '>' {
			i++
		}
		name := string(tag[start:i])
		if _, dup := out[name]; !dup {
			out[name] = start
		}
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i < len(tag) && tag[i] == '=' {
			i++
		}
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i < len(tag) && (tag[i] == '"' || tag[i] == '\'') {
			q := tag[i]
			i++
			for i < len(tag) && tag[i] != q {
				i++
			}
			i++
		}
	}
	return out
}

func isSpace(b byte) bool {
	return strings.IndexByte(" \t\r\n", b) >= 0
}
