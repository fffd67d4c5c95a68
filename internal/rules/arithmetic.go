package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
)

const (
	KindSumEquals    = "sum_equals"
	KindLineProduct  = "line_product"
	KindValueCompare = "value_compare"
)

// decimalRe is the lexical space of xs:decimal. Exponent notation is not part
// of it; a value like 1e60000000 would otherwise cost unbounded rescaling.
var decimalRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !decimalRe.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%q is not a decimal", s)
	}
	return decimal.NewFromString(s)
}

func parseAmount(v document.Value) (decimal.Decimal, error) {
	d, err := parseDecimal(v.Text)
	if err != nil {
		return decimal.Zero, operandError(v, "%q is not a number", v.Text)
	}
	return d, nil
}

func parseTolerance(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := parseDecimal(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: tolerance %q must be a non-negative number", domain.ErrInvalidRule, s)
	}
	return d, nil
}

// scale returns the number of fractional digits d was written with.
func scale(d decimal.Decimal) int32 {
	if e := d.Exponent(); e < 0 {
		return -e
	}
	return 0
}

func withinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// sumEquals checks target = sum(terms) - sum(minus) for every context
// node. Each path may select any number of values; all of them are used
// and absent ones count as zero.
type sumEquals struct {
	*base
	context   document.Path
	target    document.Path
	terms     []document.Path
	minus     []document.Path
	tolerance decimal.Decimal
}

type sumEqualsParams struct {
	Context   string   `yaml:"context"`
	Target    string   `yaml:"target"`
	Terms     []string `yaml:"terms"`
	Minus     []string `yaml:"minus"`
	Tolerance string   `yaml:"tolerance"`
}

func newSumEquals(b *base, params *yaml.Node, env Env) (Rule, error) {
	var p sumEqualsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	r := &sumEquals{base: b}
	var err error
	if r.context, err = compilePath(p.Context, env, "context", false); err != nil {
		return nil, err
	}
	if r.target, err = compilePath(p.Target, env, "target", true); err != nil {
		return nil, err
	}
	if len(p.Terms) == 0 {
		return nil, fmt.Errorf("%w: terms must list at least one path", domain.ErrInvalidRule)
	}
	for i, t := range p.Terms {
		tp, err := compilePath(t, env, fmt.Sprintf("terms[%d]", i), true)
		if err != nil {
			return nil, err
		}
		r.terms = append(r.terms, tp)
	}
	for i, m := range p.Minus {
		mp, err := compilePath(m, env, fmt.Sprintf("minus[%d]", i), true)
		if err != nil {
			return nil, err
		}
		r.minus = append(r.minus, mp)
	}
	if r.tolerance, err = parseTolerance(p.Tolerance); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *sumEquals) termNames() string {
	var b strings.Builder
	for i, t := range r.terms {
		if i > 0 {
			b.WriteString(" + ")
		}
		b.WriteString(t.String())
	}
	for _, m := range r.minus {
		b.WriteString(" - ")
		b.WriteString(m.String())
	}
	return b.String()
}

func (r *sumEquals) Evaluate(ctx context.Context, doc *document.Document) ([]domain.Finding, error) {
	var out []domain.Finding
	for _, node := range contexts(doc, r.context) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target, ok := r.target.First(node)
		if !ok {
			continue
		}
		var plus, minus []document.Value
		for _, t := range r.terms {
			plus = append(plus, t.Values(node)...)
		}
		if len(plus) == 0 {
			continue
		}
		for _, m := range r.minus {
			minus = append(minus, m.Values(node)...)
		}
		want, err := parseAmount(target)
		if err != nil {
			return nil, err
		}
		sum := decimal.Zero
		places := scale(want)
		for i, v := range append(plus, minus...) {
			d, err := parseAmount(v)
			if err != nil {
				return nil, err
			}
			if i >= len(plus) {
				d = d.Neg()
			}
			sum = sum.Add(d)
			if s := scale(d); s > places {
				places = s
			}
		}
		if !withinTolerance(want, sum, r.tolerance) {
			out = append(out, r.finding(target.Path, target.Loc,
				"%s is %s but the sum of %s is %s (difference %s)",
				r.target, target.Text, r.termNames(), sum.StringFixed(places), want.Sub(sum).StringFixed(places)))
		}
	}
	return out, nil
}

// lineProduct checks target = left × right inside every context node,
// e.g. line amount = quantity × unit price.
type lineProduct struct {
	*base
	context   document.Path
	target    document.Path
	left      document.Path
	right     document.Path
	divisor   decimal.Decimal
	round     int32
	rounded   bool
	tolerance decimal.Decimal
}

type lineProductParams struct {
	Context   string `yaml:"context"`
	Target    string `yaml:"target"`
	Left      string `yaml:"left"`
	Right     string `yaml:"right"`
	Divisor   string `yaml:"divisor"`
	Round     *int32 `yaml:"round"`
	Tolerance string `yaml:"tolerance"`
}

func newLineProduct(b *base, params *yaml.Node, env Env) (Rule, error) {
	var p lineProductParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	r := &lineProduct{base: b, divisor: decimal.NewFromInt(1)}
	var err error
	if r.context, err = compilePath(p.Context, env, "context", true); err != nil {
		return nil, err
	}
	if r.target, err = compilePath(p.Target, env, "target", true); err != nil {
		return nil, err
	}
	if r.left, err = compilePath(p.Left, env, "left", true); err != nil {
		return nil, err
	}
	if r.right, err = compilePath(p.Right, env, "right", true); err != nil {
		return nil, err
	}
	if p.Divisor != "" {
		d, err := parseDecimal(p.Divisor)
		if err != nil || d.IsZero() {
			return nil, fmt.Errorf("%w: divisor %q must be a non-zero number", domain.ErrInvalidRule, p.Divisor)
		}
		r.divisor = d
	}
	if p.Round != nil {
		if *p.Round < 0 {
			return nil, fmt.Errorf("%w: round must not be negative", domain.ErrInvalidRule)
		}
		r.round, r.rounded = *p.Round, true
	}
	if r.tolerance, err = parseTolerance(p.Tolerance); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *lineProduct) Evaluate(ctx context.Context, doc *document.Document) ([]domain.Finding, error) {
	var out []domain.Finding
	for _, node := range contexts(doc, r.context) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target, okT := r.target.First(node)
		left, okL := r.left.First(node)
		right, okR := r.right.First(node)
		if !okT || !okL || !okR {
			continue
		}
		got, err := parseAmount(target)
		if err != nil {
			return nil, err
		}
		l, err := parseAmount(left)
		if err != nil {
			return nil, err
		}
		rv, err := parseAmount(right)
		if err != nil {
			return nil, err
		}
		want := l.Mul(rv)
		if !r.divisor.Equal(decimal.NewFromInt(1)) {
			want = want.Div(r.divisor)
		}
		places := scale(got)
		if r.rounded {
			want = want.Round(r.round)
			places = r.round
		} else if s := scale(want); s > places {
			places = s
		}
		if !withinTolerance(got, want, r.tolerance) {
			out = append(out, r.finding(target.Path, target.Loc,
				"%s is %s but %s × %s = %s × %s = %s",
				r.target, target.Text, r.left, r.right, left.Text, right.Text, want.StringFixed(places)))
		}
	}
	return out, nil
}

// valueCompare compares every selected value against a constant.
type valueCompare struct {
	*base
	context document.Path
	path    document.Path
	op      string
	value   decimal.Decimal
}

type valueCompareParams struct {
	Context string `yaml:"context"`
	Path    string `yaml:"path"`
	Op      string `yaml:"op"`
	Value   string `yaml:"value"`
}

var compareOps = map[string]struct {
	symbol string
	holds  func(c int) bool
}{
	"eq": {"=", func(c int) bool { return c == 0 }},
	"ne": {"≠", func(c int) bool { return c != 0 }},
	"gt": {">", func(c int) bool { return c > 0 }},
	"ge": {"≥", func(c int) bool { return c >= 0 }},
	"lt": {"<", func(c int) bool { return c < 0 }},
	"le": {"≤", func(c int) bool { return c <= 0 }},
}

func newValueCompare(b *base, params *yaml.Node, env Env) (Rule, error) {
	var p valueCompareParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	r := &valueCompare{base: b, op: p.Op}
	var err error
	if r.context, err = compilePath(p.Context, env, "context", false); err != nil {
		return nil, err
	}
	if r.path, err = compilePath(p.Path, env, "path", true); err != nil {
		return nil, err
	}
	if _, ok := compareOps[p.Op]; !ok {
		return nil, fmt.Errorf("%w: op %q must be one of eq, ne, gt, ge, lt, le", domain.ErrInvalidRule, p.Op)
	}
	if r.value, err = parseDecimal(p.Value); err != nil {
		return nil, fmt.Errorf("%w: value %q is not a number", domain.ErrInvalidRule, p.Value)
	}
	return r, nil
}

func (r *valueCompare) Evaluate(ctx context.Context, doc *document.Document) ([]domain.Finding, error) {
	op := compareOps[r.op]
	var out []domain.Finding
	for _, node := range contexts(doc, r.context) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, v := range r.path.Values(node) {
			d, err := parseAmount(v)
			if err != nil {
				return nil, err
			}
			if !op.holds(d.Cmp(r.value)) {
				out = append(out, r.finding(v.Path, v.Loc,
					"%s is %s, expected %s %s", r.path, v.Text, op.symbol, r.value.String()))
			}
		}
	}
	return out, nil
}
