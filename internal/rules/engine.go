package rules

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
)

// Engine evaluates rules concurrently against one document.
type Engine struct {
	parallelism int
	onPanic     func(rule Rule, recovered interface{}, stack []byte)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithParallelism bounds the number of rules evaluated at once. Values
// below 1 mean GOMAXPROCS.
func WithParallelism(n int) EngineOption {
	return func(e *Engine) { e.parallelism = n }
}

// WithPanicHandler registers a callback invoked when a rule panics, before
// the panic is converted into a finding.
func WithPanicHandler(fn func(rule Rule, recovered interface{}, stack []byte)) EngineOption {
	return func(e *Engine) { e.onPanic = fn }
}

// NewEngine creates a rule Engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.parallelism < 1 {
		e.parallelism = runtime.GOMAXPROCS(0)
	}
	return e
}

// Evaluate runs every rule against doc and returns the merged findings in
// canonical order. A rule that fails or panics yields one RULE-FAILURE
// finding instead of aborting the others. The only error returned is the
// context's.
func (e *Engine) Evaluate(ctx context.Context, doc *document.Document, rules []Rule) ([]domain.Finding, error) {
	// One slot per rule keeps the merge independent of completion order.
	slots := make([][]domain.Finding, len(rules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, rule := range rules {
		i, rule := i, rule
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			findings, err := e.evaluateOne(gctx, rule, doc)
			if err != nil {
				return err
			}
			slots[i] = findings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rules.Evaluate: %w", err)
	}

	var out []domain.Finding
	for _, s := range slots {
		out = append(out, s...)
	}
	domain.SortFindings(out)
	return out, nil
}

// evaluateOne converts rule errors and panics into a failure finding.
// Context errors are passed through.
func (e *Engine) evaluateOne(ctx context.Context, rule Rule, doc *document.Document) (findings []domain.Finding, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e.onPanic != nil {
				e.onPanic(rule, rec, debug.Stack())
			}
			findings = []domain.Finding{failure(rule, fmt.Errorf("%w: panic: %v", domain.ErrRuleEvaluation, rec))}
			err = nil
		}
	}()

	findings, err = rule.Evaluate(ctx, doc)
	if err == nil {
		return findings, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, ctxErr
	}
	return []domain.Finding{failure(rule, err)}, nil
}

func failure(rule Rule, err error) domain.Finding {
	f := domain.Finding{
		RuleID:   RuleFailureID,
		Severity: domain.SeverityError,
		Stage:    domain.StageRule,
		Message:  fmt.Sprintf("rule %s (%s) could not be evaluated: %v", rule.ID(), rule.Name(), err),
	}
	var ee *EvalError
	if errors.As(err, &ee) {
		f.Path = ee.Path
		f.Location = ee.Loc
	}
	return f
}
