package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/ruleset"
)

// RuleSetSource lists and resolves rule sets.
type RuleSetSource interface {
	Get(ctx context.Context, version string) (*ruleset.RuleSet, error)
	Versions(ctx context.Context) ([]domain.RuleSetRecord, error)
}

// RuleSetHandler exposes the available rule sets.
type RuleSetHandler struct {
	source RuleSetSource
}

// NewRuleSetHandler creates a new RuleSetHandler.
func NewRuleSetHandler(source RuleSetSource) *RuleSetHandler {
	return &RuleSetHandler{source: source}
}

// RuleSummary describes one compiled rule.
type RuleSummary struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Kind     string          `json:"kind"`
	Severity domain.Severity `json:"severity"`
}

// RuleSetDetail describes one compiled rule set.
type RuleSetDetail struct {
	Version     string        `json:"version"`
	Description string        `json:"description,omitempty"`
	Digest      string        `json:"digest"`
	Rules       []RuleSummary `json:"rules"`
}

// List handles GET /rulesets
func (h *RuleSetHandler) List(c *gin.Context) {
	recs, err := h.source.Versions(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	if recs == nil {
		recs = []domain.RuleSetRecord{}
	}
	RespondOK(c, recs)
}

// Get handles GET /rulesets/:version. The version "active" resolves to the
// active rule set.
func (h *RuleSetHandler) Get(c *gin.Context) {
	version := c.Param("version")
	if version == "active" {
		version = ""
	}
	rs, err := h.source.Get(c.Request.Context(), version)
	if err != nil {
		HandleError(c, err)
		return
	}
	detail := RuleSetDetail{
		Version:     rs.Version,
		Description: rs.Description,
		Digest:      rs.Digest,
		Rules:       make([]RuleSummary, 0, len(rs.Rules)),
	}
	for _, r := range rs.Rules {
		detail.Rules = append(detail.Rules, RuleSummary{ID: r.ID(), Name: r.Name(), Kind: r.Kind(), Severity: r.Severity()})
	}
	RespondOK(c, detail)
}
