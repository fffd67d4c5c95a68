package rules

import (
	"context"
	"sort"

	"gopkg.in/yaml.v3"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
)

const KindRequiredIf = "required_if"

// requiredIf checks a presence dependency: when the "if" path is present
// (and, if set, has one of the listed values) the "then" path must be too.
type requiredIf struct {
	*base
	context document.Path
	when    document.Path
	then    document.Path
	values  map[string]bool
}

type requiredIfParams struct {
	Context string   `yaml:"context"`
	If      string   `yaml:"if"`
	Then    string   `yaml:"then"`
	Equals  []string `yaml:"equals"`
}

func newRequiredIf(b *base, params *yaml.Node, env Env) (Rule, error) {
	var p requiredIfParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	r := &requiredIf{base: b}
	var err error
	if r.context, err = compilePath(p.Context, env, "context", false); err != nil {
		return nil, err
	}
	if r.when, err = compilePath(p.If, env, "if", true); err != nil {
		return nil, err
	}
	if r.then, err = compilePath(p.Then, env, "then", true); err != nil {
		return nil, err
	}
	if len(p.Equals) > 0 {
		r.values = make(map[string]bool, len(p.Equals))
		for _, v := range p.Equals {
			r.values[v] = true
		}
	}
	return r, nil
}

func (r *requiredIf) Evaluate(ctx context.Context, doc *document.Document) ([]domain.Finding, error) {
	var out []domain.Finding
	for _, node := range contexts(doc, r.context) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cond, ok := r.when.First(node)
		if !ok || (r.values != nil && !r.values[cond.Text]) {
			continue
		}
		if _, present := r.then.First(node); present {
			continue
		}
		missing := node.Path() + "/" + r.then.String()
		if r.then.IsAbsolute() {
			missing = r.then.String()
		}
		if r.values != nil {
			out = append(out, r.finding(missing, cond.Loc,
				"%s is required when %s is %q", r.then, r.when, cond.Text))
		} else {
			out = append(out, r.finding(missing, cond.Loc,
				"%s is required when %s is present", r.then, r.when))
		}
	}
	return out, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
