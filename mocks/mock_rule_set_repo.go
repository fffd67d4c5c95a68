package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"invoicecheck/internal/domain"
)

// MockRuleSetRepo is a mock implementation of port.RuleSetRepository.
type MockRuleSetRepo struct {
	mock.Mock
}

func (m *MockRuleSetRepo) Get(ctx context.Context, version string) (*domain.RuleSetRecord, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RuleSetRecord), args.Error(1)
}

func (m *MockRuleSetRepo) Active(ctx context.Context) (*domain.RuleSetRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RuleSetRecord), args.Error(1)
}

func (m *MockRuleSetRepo) List(ctx context.Context) ([]domain.RuleSetRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RuleSetRecord), args.Error(1)
}

func (m *MockRuleSetRepo) Save(ctx context.Context, record *domain.RuleSetRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRuleSetRepo) Activate(ctx context.Context, version string) error {
	args := m.Called(ctx, version)
	return args.Error(0)
}
