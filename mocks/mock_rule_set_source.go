package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/ruleset"
)

// MockRuleSetSource is a mock implementation of handler.RuleSetSource and
// handler.RuleSetLoader.
type MockRuleSetSource struct {
	mock.Mock
}

func (m *MockRuleSetSource) Get(ctx context.Context, version string) (*ruleset.RuleSet, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ruleset.RuleSet), args.Error(1)
}

func (m *MockRuleSetSource) Versions(ctx context.Context) ([]domain.RuleSetRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RuleSetRecord), args.Error(1)
}

func (m *MockRuleSetSource) Preload(ctx context.Context) (*ruleset.RuleSet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ruleset.RuleSet), args.Error(1)
}
