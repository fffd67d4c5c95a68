package domain

import "fmt"

// Severity classifies a finding.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// AllowedSeverities maps accepted configuration spellings to Severity.
var AllowedSeverities = map[string]Severity{
	"ERROR":   SeverityError,
	"WARNING": SeverityWarning,
	"INFO":    SeverityInfo,
}

// ParseSeverity converts a configuration value into a Severity.
func ParseSeverity(s string) (Severity, error) {
	if s == "" {
		return SeverityError, nil
	}
	sev, ok := AllowedSeverities[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
	}
	return sev, nil
}

// Verdict is the overall outcome of a validation run.
type Verdict string

const (
	VerdictValid   Verdict = "VALID"
	VerdictInvalid Verdict = "INVALID"
)

// Stage identifies which part of the pipeline produced a finding.
// The declaration order is also the report order.
type Stage string

const (
	StageParse  Stage = "parse"
	StageEngine Stage = "engine"
	StageSchema Stage = "schema"
	StageRule   Stage = "rule"
)

// StageRank returns the position of a stage in the canonical report order.
func StageRank(s Stage) int {
	switch s {
	case StageParse:
		return 0
	case StageEngine:
		return 1
	case StageSchema:
		return 2
	case StageRule:
		return 3
	default:
		return 4
	}
}

// RunState tracks the lifecycle of one validation run.
type RunState string

const (
	RunStateStart       RunState = "START"
	RunStateParsing     RunState = "PARSING"
	RunStateParseFailed RunState = "PARSE_FAILED"
	RunStateParsed      RunState = "PARSED"
	RunStateChecking    RunState = "CHECKING"
	RunStateReported    RunState = "REPORTED"
)
