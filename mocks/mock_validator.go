package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"invoicecheck/internal/engine"
	"invoicecheck/internal/report"
)

// MockValidator is a mock implementation of handler.Validator.
type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, in engine.Input) *report.Report {
	args := m.Called(ctx, in)
	return args.Get(0).(*report.Report)
}
