package domain

import "sort"

// SortFindings orders findings canonically: by stage, then source offset,
// then rule ID, path and message. Findings without a location sort before
// located ones of the same stage.
func SortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		return lessFinding(fs[i], fs[j])
	})
}

func lessFinding(a, b Finding) bool {
	if ra, rb := StageRank(a.Stage), StageRank(b.Stage); ra != rb {
		return ra < rb
	}
	if az, bz := a.Location.IsZero(), b.Location.IsZero(); az != bz {
		return az
	}
	if a.Location.Offset != b.Location.Offset {
		return a.Location.Offset < b.Location.Offset
	}
	if a.RuleID != b.RuleID {
		return a.RuleID < b.RuleID
	}
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	if a.Message != b.Message {
		return a.Message < b.Message
	}
	return a.Severity < b.Severity
}

// HasErrors reports whether any finding has severity ERROR.
func HasErrors(fs []Finding) bool {
	for _, f := range fs {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(fs []Finding) map[Severity]int {
	out := map[Severity]int{SeverityError: 0, SeverityWarning: 0, SeverityInfo: 0}
	for _, f := range fs {
		out[f.Severity]++
	}
	return out
}
