package rules

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
)

// RuleFailureID identifies findings produced when a rule cannot be evaluated.
const RuleFailureID = "RULE-FAILURE"

// Rule is a compiled business rule. Implementations must be pure and safe
// for concurrent use; they never modify the document.
type Rule interface {
	ID() string
	Name() string
	Kind() string
	Severity() domain.Severity
	Evaluate(ctx context.Context, doc *document.Document) ([]domain.Finding, error)
}

// Definition is the YAML form of a rule.
type Definition struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Kind        string    `yaml:"kind"`
	Severity    string    `yaml:"severity,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Params      yaml.Node `yaml:"params,omitempty"`
}

// Env carries the shared, read-only configuration a rule may reference.
type Env struct {
	Namespaces map[string]string
	CodeLists  map[string][]string
	// Tables map a key (e.g. a country code) to its allowed values.
	Tables map[string]map[string][]string
}

// base holds the metadata common to every rule kind.
type base struct {
	id       string
	name     string
	kind     string
	severity domain.Severity
}

func (b *base) ID() string                { return b.id }
func (b *base) Name() string              { return b.name }
func (b *base) Kind() string              { return b.kind }
func (b *base) Severity() domain.Severity { return b.severity }

func (b *base) finding(path string, loc domain.Location, format string, args ...interface{}) domain.Finding {
	return domain.Finding{
		RuleID:   b.id,
		Severity: b.severity,
		Stage:    domain.StageRule,
		Message:  fmt.Sprintf("%s: %s", b.name, fmt.Sprintf(format, args...)),
		Path:     path,
		Location: loc,
	}
}

// EvalError reports an operand that could not be interpreted. It carries
// the operand location so the resulting failure finding points at it.
type EvalError struct {
	Path string
	Loc  domain.Location
	Err  error
}

func (e *EvalError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *EvalError) Unwrap() error { return e.Err }

func operandError(v document.Value, format string, args ...interface{}) error {
	return &EvalError{
		Path: v.Path,
		Loc:  v.Loc,
		Err:  fmt.Errorf("%w: %s", domain.ErrRuleEvaluation, fmt.Sprintf(format, args...)),
	}
}

// contexts returns the nodes a rule is evaluated against: the nodes
// selected by path, or the document root when path is unset.
func contexts(doc *document.Document, path document.Path) []*document.Node {
	if doc == nil || doc.Root == nil {
		return nil
	}
	if path.IsZero() {
		return []*document.Node{doc.Root}
	}
	return path.Select(doc.Root)
}
