package domain

import (
	"fmt"
	"time"
)

// Location points into the decoded (UTF-8) input stream.
// Line and Column are 1-based; Column counts bytes. Offset is 0-based.
// The zero value means the location is unknown.
type Location struct {
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// IsZero reports whether the location is unknown.
func (l Location) IsZero() bool {
	return l.Line == 0 && l.Column == 0 && l.Offset == 0
}

func (l Location) String() string {
	if l.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Finding is one reported violation.
type Finding struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Stage    Stage    `json:"stage"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
	Location Location `json:"location"`
}

func (f Finding) String() string {
	if f.Path != "" {
		return fmt.Sprintf("%s(%s) %s: %s [%s]", f.Severity, f.RuleID, f.Location, f.Message, f.Path)
	}
	return fmt.Sprintf("%s(%s) %s: %s", f.Severity, f.RuleID, f.Location, f.Message)
}

// RuleSetRecord is a stored, versioned rule-set definition.
// Definition holds the raw YAML document.
type RuleSetRecord struct {
	Version    string    `db:"version" json:"version"`
	Definition []byte    `db:"definition" json:"-"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
