package mocks

import (
	"context"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockRemote stands in for the loan server API client
type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRemote) ListLoans(ctx context.Context) ([]*domain.Loan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

func (m *MockRemote) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockRemote) CreateLoan(ctx context.Context, req *domain.CreateLoanRequest) (*domain.Loan, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockRemote) DeleteLoan(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRemote) AddPayment(ctx context.Context, loanID string, req *domain.AddPaymentRequest) (*domain.Payment, error) {
	args := m.Called(ctx, loanID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockRemote) DeletePayment(ctx context.Context, loanID, paymentID string) error {
	args := m.Called(ctx, loanID, paymentID)
	return args.Error(0)
}

func (m *MockRemote) UpdatePayment(ctx context.Context, loanID, paymentID string, req *domain.UpdatePaymentRequest) (*domain.Payment, error) {
	args := m.Called(ctx, loanID, paymentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

// NewMockRemote creates a new mock remote instance
func NewMockRemote() *MockRemote {
	return &MockRemote{}
}
