// Package report assembles the findings of one validation run into an
// ordered report with a verdict, and renders it as XML.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
)

// Rule IDs for findings produced outside the schema and rule stages.
const (
	RuleParseError = "PARSE-ERROR"
	RuleSizeLimit  = "ENGINE-SIZE-LIMIT"
	RuleDepthLimit = "ENGINE-DEPTH-LIMIT"
	RuleTimeout    = "ENGINE-TIMEOUT"
	RuleCancelled  = "ENGINE-CANCELLED"
	RuleRuleSet    = "ENGINE-RULESET"
	RuleNoInput    = "ENGINE-INPUT"
	RuleInternal   = "ENGINE-INTERNAL"
)

// Metadata describes the run that produced a report.
type Metadata struct {
	EngineVersion  string
	RuleSetVersion string
	RuleSetDigest  string
	RunID          string
	Timestamp      time.Time
	DocumentSize   int
	Encoding       string
}

// Report is the immutable result of one validation run.
type Report struct {
	Verdict  domain.Verdict
	Findings []domain.Finding
	Metadata Metadata
}

// Valid reports whether the verdict is VALID.
func (r *Report) Valid() bool { return r.Verdict == domain.VerdictValid }

// Counts tallies findings by severity.
func (r *Report) Counts() map[domain.Severity]int {
	return domain.CountBySeverity(r.Findings)
}

// Outcome is everything a run produced. Err is set when the run stopped
// before the checks completed; a *document.ParseError there means the input
// was malformed, anything else is an operational failure.
type Outcome struct {
	Metadata Metadata
	Err      error
	Schema   []domain.Finding
	Rules    []domain.Finding
}

// Build merges an outcome into a report. A failed outcome yields exactly one
// finding; otherwise schema and rule findings are merged in canonical order.
func Build(o Outcome) *Report {
	var findings []domain.Finding
	if o.Err != nil {
		findings = []domain.Finding{failureFinding(o.Err)}
	} else {
		findings = make([]domain.Finding, 0, len(o.Schema)+len(o.Rules))
		findings = append(findings, o.Schema...)
		findings = append(findings, o.Rules...)
		domain.SortFindings(findings)
	}

	verdict := domain.VerdictValid
	if domain.HasErrors(findings) {
		verdict = domain.VerdictInvalid
	}
	return &Report{Verdict: verdict, Findings: findings, Metadata: o.Metadata}
}

func failureFinding(err error) domain.Finding {
	var pe *document.ParseError
	if errors.As(err, &pe) {
		return domain.Finding{
			RuleID:   RuleParseError,
			Severity: domain.SeverityError,
			Stage:    domain.StageParse,
			Message:  pe.Reason,
			Location: pe.Location,
		}
	}

	f := domain.Finding{Severity: domain.SeverityError, Stage: domain.StageEngine}
	switch {
	case errors.Is(err, domain.ErrDocumentTooLarge):
		f.RuleID, f.Message = RuleSizeLimit, "document exceeds the maximum allowed size"
	case errors.Is(err, domain.ErrDocumentTooDeep):
		f.RuleID, f.Message = RuleDepthLimit, "document exceeds the maximum nesting depth"
	case errors.Is(err, context.DeadlineExceeded):
		f.RuleID, f.Message = RuleTimeout, "validation did not finish within the time limit"
	case errors.Is(err, context.Canceled):
		f.RuleID, f.Message = RuleCancelled, "validation was cancelled"
	case errors.Is(err, domain.ErrRuleSetNotFound), errors.Is(err, domain.ErrInvalidRuleSet):
		f.RuleID, f.Message = RuleRuleSet, fmt.Sprintf("rule set unavailable: %v", err)
	case errors.Is(err, domain.ErrMissingFile):
		f.RuleID, f.Message = RuleNoInput, "no document was supplied"
	default:
		f.RuleID, f.Message = RuleInternal, fmt.Sprintf("internal error: %v", err)
	}
	return f
}
