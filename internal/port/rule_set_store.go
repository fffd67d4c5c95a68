package port

import (
	"context"

	"invoicecheck/internal/domain"
)

// RuleSetStore supplies stored rule-set definitions.
type RuleSetStore interface {
	// Get returns the definition for version or domain.ErrRuleSetNotFound.
	Get(ctx context.Context, version string) (*domain.RuleSetRecord, error)
	// Active returns the definition used when no version is requested.
	Active(ctx context.Context) (*domain.RuleSetRecord, error)
	List(ctx context.Context) ([]domain.RuleSetRecord, error)
}

// RuleSetRepository is a RuleSetStore that can also publish definitions.
type RuleSetRepository interface {
	RuleSetStore
	Save(ctx context.Context, record *domain.RuleSetRecord) error
	Activate(ctx context.Context, version string) error
}
