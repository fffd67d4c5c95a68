package ruleset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/rules"
	"invoicecheck/internal/schema"
)

// RuleSet is an immutable, compiled snapshot of a rule-set definition.
// One snapshot is shared read-only by every run that uses it.
type RuleSet struct {
	Version     string
	Description string
	Digest      string
	Schema      *schema.Schema
	Rules       []rules.Rule
	LoadedAt    time.Time
}

// Compile validates def and builds a snapshot. Any problem is a
// configuration error wrapping domain.ErrInvalidRuleSet. A nil registry
// means rules.DefaultRegistry.
func Compile(def *Definition, registry *rules.Registry) (*RuleSet, error) {
	if registry == nil {
		registry = rules.DefaultRegistry()
	}
	if def.Version == "" {
		return nil, fmt.Errorf("%w: version is required", domain.ErrInvalidRuleSet)
	}
	sch, err := schema.Compile(def.Schema, def.Namespaces, def.CodeLists)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidRuleSet, def.Version, err)
	}
	for name, table := range def.Tables {
		if len(table) == 0 {
			return nil, fmt.Errorf("%w: %s: table %q is empty", domain.ErrInvalidRuleSet, def.Version, name)
		}
	}
	compiled, err := registry.CompileAll(def.Rules, rules.Env{
		Namespaces: def.Namespaces,
		CodeLists:  def.CodeLists,
		Tables:     def.Tables,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidRuleSet, def.Version, err)
	}
	return &RuleSet{
		Version:     def.Version,
		Description: def.Description,
		Schema:      sch,
		Rules:       compiled,
		LoadedAt:    time.Now().UTC(),
	}, nil
}

// Load parses and compiles a stored record. The record's version must match
// the version declared inside the definition.
func Load(rec *domain.RuleSetRecord, registry *rules.Registry) (*RuleSet, error) {
	def, err := Parse(rec.Definition)
	if err != nil {
		return nil, fmt.Errorf("ruleset %s: %w", rec.Version, err)
	}
	if rec.Version != "" && def.Version != rec.Version {
		return nil, fmt.Errorf("%w: stored as %q but declares version %q", domain.ErrInvalidRuleSet, rec.Version, def.Version)
	}
	rs, err := Compile(def, registry)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(rec.Definition)
	rs.Digest = hex.EncodeToString(sum[:])
	return rs, nil
}
