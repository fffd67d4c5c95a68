package schema

import (
	"context"
	"fmt"
	"unicode/utf8"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
)

// Rule identifiers of schema findings.
const (
	RuleRoot        = "SCHEMA-ROOT"
	RuleRequired    = "SCHEMA-REQUIRED"
	RuleCardinality = "SCHEMA-CARDINALITY"
	RuleDatatype    = "SCHEMA-DATATYPE"
	RuleCode        = "SCHEMA-CODE"
	RulePattern     = "SCHEMA-PATTERN"
	RuleLength      = "SCHEMA-LENGTH"
	RuleAttribute   = "SCHEMA-ATTRIBUTE"
	RuleUnknown     = "SCHEMA-UNKNOWN"
)

// Check verifies doc against the schema. It never fails: every violation
// becomes a Finding. If ctx is cancelled the findings gathered so far are
// returned and the caller is expected to inspect ctx.Err().
func (s *Schema) Check(ctx context.Context, doc *document.Document) []domain.Finding {
	if doc == nil || doc.Root == nil {
		return nil
	}
	c := &checker{ctx: ctx}
	root := doc.Root
	if root.Name != s.root.name {
		c.add(RuleRoot, root.Path(), root.Loc,
			"document element is <%s> (%s), expected <%s> (%s)",
			root.DisplayName(), root.Name, s.root.display, s.root.name)
		return c.findings
	}
	c.element(root, s.root)
	return c.findings
}

type checker struct {
	ctx      context.Context
	findings []domain.Finding
	visited  int
}

func (c *checker) add(ruleID, path string, loc domain.Location, format string, args ...interface{}) {
	c.findings = append(c.findings, domain.Finding{
		RuleID:   ruleID,
		Severity: domain.SeverityError,
		Stage:    domain.StageSchema,
		Message:  fmt.Sprintf(format, args...),
		Path:     path,
		Location: loc,
	})
}

func (c *checker) cancelled() bool {
	c.visited++
	if c.visited%256 != 0 {
		return false
	}
	return c.ctx.Err() != nil
}

func (c *checker) element(n *document.Node, decl *element) {
	if c.cancelled() {
		return
	}
	if decl.typ != TypeComplex {
		c.value(n.Path(), n.Loc, "element <"+n.DisplayName()+">", n.TrimmedText(), decl.typ, decl.codeList, decl.codes, decl)
	}
	c.attributes(n, decl)

	if decl.typ != TypeComplex {
		return
	}
	for _, cd := range decl.children {
		occ := n.ChildrenNamed(cd.name)
		if len(occ) < cd.min {
			if len(occ) == 0 {
				c.add(RuleRequired, n.Path()+"/"+cd.display, n.Loc,
					"required element <%s> is missing from <%s>", cd.display, n.DisplayName())
			} else {
				c.add(RuleRequired, n.Path()+"/"+cd.display, n.Loc,
					"element <%s> occurs %d time(s) in <%s>, at least %d required",
					cd.display, len(occ), n.DisplayName(), cd.min)
			}
		}
		if cd.max != Unbounded && len(occ) > cd.max {
			excess := occ[cd.max]
			c.add(RuleCardinality, excess.Path(), excess.Loc,
				"element <%s> occurs %d time(s) in <%s>, at most %d allowed",
				cd.display, len(occ), n.DisplayName(), cd.max)
		}
		for _, child := range occ {
			c.element(child, cd)
		}
	}
	if decl.strict {
		for _, child := range n.Children {
			if !decl.declares(child.Name) {
				c.add(RuleUnknown, child.Path(), child.Loc,
					"element <%s> (%s) is not allowed in <%s>", child.DisplayName(), child.Name, n.DisplayName())
			}
		}
	}
}

func (c *checker) attributes(n *document.Node, decl *element) {
	for _, ad := range decl.attrs {
		a, ok := n.Attr(ad.name)
		if !ok {
			if ad.required {
				c.add(RuleAttribute, n.Path()+"/@"+ad.display, n.Loc,
					"required attribute %q is missing on <%s>", ad.display, n.DisplayName())
			}
			continue
		}
		c.value(n.Path()+"/@"+a.DisplayName(), a.Loc, "attribute "+a.DisplayName(), a.Value, ad.typ, ad.codeList, ad.codes, ad)
	}
}

type constraints interface {
	patternString() string
	matchPattern(string) bool
	lengthLimit() int
}

func (e *element) patternString() string      { return e.source }
func (e *element) matchPattern(s string) bool { return e.pattern == nil || e.pattern.MatchString(s) }
func (e *element) lengthLimit() int           { return e.maxLength }

func (a *attribute) patternString() string      { return a.source }
func (a *attribute) matchPattern(s string) bool { return a.pattern == nil || a.pattern.MatchString(s) }
func (a *attribute) lengthLimit() int           { return 0 }

// value reports at most one finding per value: the first violated facet in
// the order datatype, code list, pattern, length.
func (c *checker) value(path string, loc domain.Location, what, v string, typ Datatype, list string, codes map[string]bool, k constraints) {
	if !conforms(typ, v) {
		c.add(RuleDatatype, path, loc, "%s value %q is not %s", what, v, describe(typ))
		return
	}
	if codes != nil && !codes[v] {
		c.add(RuleCode, path, loc, "%s value %q is not in code list %s", what, v, list)
		return
	}
	if !k.matchPattern(v) {
		c.add(RulePattern, path, loc, "%s value %q does not match pattern %s", what, v, k.patternString())
		return
	}
	if limit := k.lengthLimit(); limit > 0 && utf8.RuneCountInString(v) > limit {
		c.add(RuleLength, path, loc, "%s value is %d characters long, at most %d allowed",
			what, utf8.RuneCountInString(v), limit)
	}
}

func (e *element) declares(name document.QName) bool {
	for _, c := range e.children {
		if c.name == name {
			return true
		}
	}
	return false
}
