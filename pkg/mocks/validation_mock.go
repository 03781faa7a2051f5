// Package mocks provides testify mocks of the casework ports.
package mocks

import (
	"context"

	"github.com/dukex/casework/pkg/validation"
	"github.com/stretchr/testify/mock"
)

// MockValidationService is a mock implementation of validation.Service interface.
type MockValidationService struct {
	mock.Mock
}

func (m *MockValidationService) ValidateDocument(ctx context.Context, documentID string) (validation.Result, error) {
	args := m.Called(ctx, documentID)

	return args.Get(0).(validation.Result), args.Error(1)
}
