package rules

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
)

const (
	KindLookupMatch     = "lookup_match"
	KindAttributeEquals = "attribute_equals"
)

// lookupMatch checks that the value at one path is allowed for the key at
// another, using a named table (e.g. currency valid for country). Keys
// missing from the table are not judged unless strict is set.
type lookupMatch struct {
	*base
	context document.Path
	key     document.Path
	value   document.Path
	table   string
	allowed map[string]map[string]bool
	strict  bool
}

type lookupMatchParams struct {
	Context string `yaml:"context"`
	Key     string `yaml:"key"`
	Value   string `yaml:"value"`
	Table   string `yaml:"table"`
	Strict  bool   `yaml:"strict"`
}

func newLookupMatch(b *base, params *yaml.Node, env Env) (Rule, error) {
	var p lookupMatchParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	r := &lookupMatch{base: b, table: p.Table, strict: p.Strict}
	var err error
	if r.context, err = compilePath(p.Context, env, "context", false); err != nil {
		return nil, err
	}
	if r.key, err = compilePath(p.Key, env, "key", true); err != nil {
		return nil, err
	}
	if r.value, err = compilePath(p.Value, env, "value", true); err != nil {
		return nil, err
	}
	table, ok := env.Tables[p.Table]
	if !ok {
		return nil, fmt.Errorf("%w: unknown table %q", domain.ErrInvalidRule, p.Table)
	}
	r.allowed = make(map[string]map[string]bool, len(table))
	for k, vals := range table {
		set := make(map[string]bool, len(vals))
		for _, v := range vals {
			set[v] = true
		}
		r.allowed[k] = set
	}
	return r, nil
}

func (r *lookupMatch) Evaluate(ctx context.Context, doc *document.Document) ([]domain.Finding, error) {
	var out []domain.Finding
	for _, node := range contexts(doc, r.context) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kv, okK := r.key.First(node)
		vv, okV := r.value.First(node)
		if !okK || !okV {
			continue
		}
		allowed, known := r.allowed[kv.Text]
		if !known {
			if r.strict {
				out = append(out, r.finding(kv.Path, kv.Loc,
					"%s %q has no entry in table %s", r.key, kv.Text, r.table))
			}
			continue
		}
		if !allowed[vv.Text] {
			out = append(out, r.finding(vv.Path, vv.Loc,
				"%s %q is not allowed for %s %q (allowed: %s)",
				r.value, vv.Text, r.key, kv.Text, strings.Join(sortedKeys(allowed), ", ")))
		}
	}
	return out, nil
}

// attributeEquals checks that every value selected by the paths equals a
// reference value, e.g. every amount's currencyID equals the document
// currency code.
type attributeEquals struct {
	*base
	context   document.Path
	paths     []document.Path
	reference document.Path
}

type attributeEqualsParams struct {
	Context   string   `yaml:"context"`
	Paths     []string `yaml:"paths"`
	Reference string   `yaml:"reference"`
}

func newAttributeEquals(b *base, params *yaml.Node, env Env) (Rule, error) {
	var p attributeEqualsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	r := &attributeEquals{base: b}
	var err error
	if r.context, err = compilePath(p.Context, env, "context", false); err != nil {
		return nil, err
	}
	if r.reference, err = compilePath(p.Reference, env, "reference", true); err != nil {
		return nil, err
	}
	if len(p.Paths) == 0 {
		return nil, fmt.Errorf("%w: paths must list at least one path", domain.ErrInvalidRule)
	}
	for i, s := range p.Paths {
		path, err := compilePath(s, env, fmt.Sprintf("paths[%d]", i), true)
		if err != nil {
			return nil, err
		}
		r.paths = append(r.paths, path)
	}
	return r, nil
}

func (r *attributeEquals) Evaluate(ctx context.Context, doc *document.Document) ([]domain.Finding, error) {
	var out []domain.Finding
	for _, node := range contexts(doc, r.context) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref, ok := r.reference.First(node)
		if !ok {
			continue
		}
		for _, p := range r.paths {
			for _, v := range p.Values(node) {
				if v.Text != ref.Text {
					out = append(out, r.finding(v.Path, v.Loc,
						"%s is %q but %s is %q", p, v.Text, r.reference, ref.Text))
				}
			}
		}
	}
	return out, nil
}
