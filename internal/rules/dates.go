package rules

import (
	"context"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
)

const KindDateOrder = "date_order"

const dateLayout = "2006-01-02"

// dateOrder checks that one date does not come after another, e.g. issue
// date ≤ due date.
type dateOrder struct {
	*base
	context document.Path
	earlier document.Path
	later   document.Path
	strict  bool
}

type dateOrderParams struct {
	Context string `yaml:"context"`
	Earlier string `yaml:"earlier"`
	Later   string `yaml:"later"`
	Strict  bool   `yaml:"strict"`
}

func newDateOrder(b *base, params *yaml.Node, env Env) (Rule, error) {
	var p dateOrderParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	r := &dateOrder{base: b, strict: p.Strict}
	var err error
	if r.context, err = compilePath(p.Context, env, "context", false); err != nil {
		return nil, err
	}
	if r.earlier, err = compilePath(p.Earlier, env, "earlier", true); err != nil {
		return nil, err
	}
	if r.later, err = compilePath(p.Later, env, "later", true); err != nil {
		return nil, err
	}
	return r, nil
}

func parseDate(v document.Value) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(v.Text))
	if err != nil {
		return time.Time{}, operandError(v, "%q is not a date (YYYY-MM-DD)", v.Text)
	}
	return t, nil
}

func (r *dateOrder) Evaluate(ctx context.Context, doc *document.Document) ([]domain.Finding, error) {
	var out []domain.Finding
	for _, node := range contexts(doc, r.context) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, okE := r.earlier.First(node)
		lv, okL := r.later.First(node)
		if !okE || !okL {
			continue
		}
		e, err := parseDate(ev)
		if err != nil {
			return nil, err
		}
		l, err := parseDate(lv)
		if err != nil {
			return nil, err
		}
		bad := l.Before(e)
		relation := "on or after"
		if r.strict {
			bad = !l.After(e)
			relation = "after"
		}
		if bad {
			out = append(out, r.finding(lv.Path, lv.Loc,
				"%s (%s) must be %s %s (%s)", r.later, lv.Text, relation, r.earlier, ev.Text))
		}
	}
	return out, nil
}
