package rules

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
)

// Factory builds a rule of one kind from its decoded definition.
type Factory func(b *base, params *yaml.Node, env Env) (Rule, error)

// Registry maps rule kinds to factories. The set of kinds is closed: a
// definition naming an unregistered kind is rejected at load time.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a Registry with every built-in kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindSumEquals, newSumEquals)
	r.Register(KindLineProduct, newLineProduct)
	r.Register(KindValueCompare, newValueCompare)
	r.Register(KindDateOrder, newDateOrder)
	r.Register(KindLookupMatch, newLookupMatch)
	r.Register(KindAttributeEquals, newAttributeEquals)
	r.Register(KindRequiredIf, newRequiredIf)
	return r
}

// Register adds a factory for kind, replacing any previous one.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Compile builds a rule from its definition.
func (r *Registry) Compile(def Definition, env Env) (Rule, error) {
	if strings.TrimSpace(def.ID) == "" {
		return nil, fmt.Errorf("%w: rule id is required", domain.ErrInvalidRule)
	}
	if def.ID == RuleFailureID {
		return nil, fmt.Errorf("%w: rule id %q is reserved", domain.ErrInvalidRule, def.ID)
	}
	f, ok := r.factories[def.Kind]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w %q (known: %s)", def.ID, domain.ErrUnknownRuleKind, def.Kind, strings.Join(r.Kinds(), ", "))
	}
	sev, err := domain.ParseSeverity(def.Severity)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", def.ID, err)
	}
	name := def.Name
	if name == "" {
		name = def.ID
	}
	rule, err := f(&base{id: def.ID, name: name, kind: def.Kind, severity: sev}, &def.Params, env)
	if err != nil {
		return nil, fmt.Errorf("rule %s (%s): %w", def.ID, def.Kind, err)
	}
	return rule, nil
}

// CompileAll compiles defs in order and rejects duplicate IDs.
func (r *Registry) CompileAll(defs []Definition, env Env) ([]Rule, error) {
	out := make([]Rule, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if seen[d.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %q", domain.ErrInvalidRule, d.ID)
		}
		seen[d.ID] = true
		rule, err := r.Compile(d, env)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// decodeParams decodes a params node into dst, rejecting unknown keys.
func decodeParams(params *yaml.Node, dst interface{}) error {
	if params == nil || params.Kind == 0 {
		return nil
	}
	raw, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: params: %v", domain.ErrInvalidRule, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: params: %v", domain.ErrInvalidRule, err)
	}
	return nil
}

func compilePath(expr string, env Env, field string, required bool) (document.Path, error) {
	if strings.TrimSpace(expr) == "" {
		if required {
			return document.Path{}, fmt.Errorf("%w: %s is required", domain.ErrInvalidRule, field)
		}
		return document.Path{}, nil
	}
	p, err := document.CompilePath(expr, env.Namespaces)
	if err != nil {
		return document.Path{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidRule, field, err)
	}
	return p, nil
}
