// Package engine runs one document through parsing, schema conformance and
// business rules, and always returns a report.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
	"invoicecheck/internal/metrics"
	"invoicecheck/internal/report"
	"invoicecheck/internal/rules"
	"invoicecheck/internal/ruleset"
)

// Version is reported in every report's metadata. Release builds set it
// with -ldflags "-X invoicecheck/internal/engine.Version=...".
var Version = "dev"

// RuleSetSource resolves a rule-set version to a compiled snapshot. An
// empty version means the active one.
type RuleSetSource interface {
	Get(ctx context.Context, version string) (*ruleset.RuleSet, error)
}

// Input is one document to validate.
type Input struct {
	Body        io.Reader
	ContentType string
	RuleSet     string
}

type options struct {
	timeout         time.Duration
	maxBytes        int64
	maxDepth        int
	parallelChecks  bool
	ruleParallelism int
	log             zerolog.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
	newID           func() string
}

// Option configures a Validator.
type Option func(*options)

// WithTimeout bounds each run. Zero means no limit beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMaxDocumentBytes rejects larger inputs.
func WithMaxDocumentBytes(n int64) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithMaxDepth rejects documents nested deeper than n elements.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithParallelChecks runs the schema check and rule evaluation at the same
// time. Results are identical either way.
func WithParallelChecks(enabled bool) Option {
	return func(o *options) { o.parallelChecks = enabled }
}

// WithRuleParallelism bounds concurrent rule evaluation.
func WithRuleParallelism(n int) Option {
	return func(o *options) { o.ruleParallelism = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// Validator validates documents. It is safe for concurrent use; runs share
// nothing but the immutable rule-set snapshots.
type Validator struct {
	source RuleSetSource
	rules  *rules.Engine
	opts   options
}

// New creates a Validator.
func New(source RuleSetSource, opts ...Option) *Validator {
	o := options{
		parallelChecks: true,
		log:            zerolog.Nop(),
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	v := &Validator{source: source, opts: o}
	v.rules = rules.NewEngine(
		rules.WithParallelism(o.ruleParallelism),
		rules.WithPanicHandler(func(rule rules.Rule, recovered interface{}, stack []byte) {
			v.opts.log.Error().
				Str("rule_id", rule.ID()).
				Interface("panic", recovered).
				Bytes("stack", stack).
				Msg("rule panicked")
		}),
	)
	return v
}

// ValidateBytes is Validate for an in-memory document.
func (v *Validator) ValidateBytes(ctx context.Context, data []byte, contentType, ruleSet string) *report.Report {
	return v.Validate(ctx, Input{Body: bytes.NewReader(data), ContentType: contentType, RuleSet: ruleSet})
}

// Validate runs one document to a report. It never returns nil and never
// panics; operational problems become an ENGINE-* finding.
func (v *Validator) Validate(ctx context.Context, in Input) (rep *report.Report) {
	r := &run{
		id:      v.opts.newID(),
		state:   domain.RunStateStart,
		started: time.Now(),
	}
	r.log = v.opts.log.With().Str("run_id", r.id).Logger()
	r.meta = report.Metadata{
		EngineVersion:  Version,
		RunID:          r.id,
		Timestamp:      v.opts.now().UTC(),
		RuleSetVersion: in.RuleSet,
	}
	if m := v.opts.metrics; m != nil {
		m.RunsInFlight.Inc()
		defer m.RunsInFlight.Dec()
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("validation panicked")
			r.state = domain.RunStateReported
			rep = report.Build(report.Outcome{Metadata: r.meta, Err: fmt.Errorf("engine: panic: %v", p)})
		}
		v.observe(r, rep)
	}()

	if v.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.opts.timeout)
		defer cancel()
	}

	rs, err := v.source.Get(ctx, in.RuleSet)
	if err != nil {
		v.recordRuleSet("error")
		r.log.Warn().Err(err).Str("rule_set", in.RuleSet).Msg("rule set unavailable")
		return r.finish(report.Outcome{Err: err})
	}
	v.recordRuleSet("ok")
	r.meta.RuleSetVersion = rs.Version
	r.meta.RuleSetDigest = rs.Digest

	if in.Body == nil {
		return r.finish(report.Outcome{Err: domain.ErrMissingFile})
	}

	r.transition(domain.RunStateParsing)
	doc, err := document.Parse(ctx, in.Body, document.Options{
		MaxBytes:    v.opts.maxBytes,
		MaxDepth:    v.opts.maxDepth,
		ContentType: in.ContentType,
	})
	if err != nil {
		r.log.Debug().Err(err).Msg("parse failed")
		return r.finish(report.Outcome{Err: err})
	}
	r.meta.DocumentSize = doc.Size
	r.meta.Encoding = doc.Encoding
	r.transition(domain.RunStateParsed)

	r.transition(domain.RunStateChecking)
	schemaFindings, ruleFindings, err := v.check(ctx, rs, doc)
	if err != nil {
		return r.finish(report.Outcome{Err: err})
	}
	return r.finish(report.Outcome{Schema: schemaFindings, Rules: ruleFindings})
}

// check runs the schema and rule stages over the same read-only document.
// It returns once ctx ends even if a stage is still busy; the abandoned
// stage observes the same cancellation and exits on its own.
func (v *Validator) check(ctx context.Context, rs *ruleset.RuleSet, doc *document.Document) ([]domain.Finding, []domain.Finding, error) {
	type stages struct {
		schema, rules []domain.Finding
		err           error
	}
	done := make(chan stages, 1)
	go func() {
		var out stages
		defer func() {
			if p := recover(); p != nil {
				v.opts.log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("check panicked")
				out = stages{err: fmt.Errorf("engine: panic: %v", p)}
			}
			done <- out
		}()
		out.schema, out.rules, out.err = v.runStages(ctx, rs, doc)
	}()

	select {
	case out := <-done:
		return out.schema, out.rules, out.err
	case <-ctx.Done():
		select {
		case out := <-done:
			return out.schema, out.rules, out.err
		default:
			return nil, nil, fmt.Errorf("engine.check: %w", ctx.Err())
		}
	}
}

func (v *Validator) runStages(ctx context.Context, rs *ruleset.RuleSet, doc *document.Document) (schemaFindings, ruleFindings []domain.Finding, err error) {
	if !v.opts.parallelChecks {
		schemaFindings = rs.Schema.Check(ctx, doc)
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("engine.check: %w", err)
		}
		ruleFindings, err = v.rules.Evaluate(ctx, doc, rs.Rules)
		if err != nil {
			return nil, nil, err
		}
		return schemaFindings, ruleFindings, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		schemaFindings = rs.Schema.Check(gctx, doc)
		return gctx.Err()
	})
	g.Go(func() error {
		var err error
		ruleFindings, err = v.rules.Evaluate(gctx, doc, rs.Rules)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("engine.check: %w", err)
	}
	return schemaFindings, ruleFindings, nil
}

func (v *Validator) observe(r *run, rep *report.Report) {
	elapsed := time.Since(r.started)
	counts := rep.Counts()
	r.log.Info().
		Str("verdict", string(rep.Verdict)).
		Str("rule_set", rep.Metadata.RuleSetVersion).
		Int("size", rep.Metadata.DocumentSize).
		Int("errors", counts[domain.SeverityError]).
		Int("warnings", counts[domain.SeverityWarning]).
		Int("infos", counts[domain.SeverityInfo]).
		Dur("duration", elapsed).
		Msg("validation finished")

	m := v.opts.metrics
	if m == nil {
		return
	}
	m.RecordRun(string(rep.Verdict), string(r.state), elapsed, rep.Metadata.DocumentSize)
	for _, f := range rep.Findings {
		m.RecordFinding(string(f.Stage), string(f.Severity))
	}
}

func (v *Validator) recordRuleSet(status string) {
	if v.opts.metrics != nil {
		v.opts.metrics.RecordRuleSetLoad(status)
	}
}
