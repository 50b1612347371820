package repository

import (
	"context"
	"time"

	"github.com/segyhp/loan-tracker/internal/domain"
)

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create inserts a loan and fills in its id and creation time
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan without its payments
	GetByID(ctx context.Context, id string) (*domain.Loan, error)

	// List retrieves every loan ordered by due date
	List(ctx context.Context) ([]*domain.Loan, error)

	// GetOverdue retrieves loans due before asOf that are not fully paid
	GetOverdue(ctx context.Context, asOf time.Time) ([]*domain.Loan, error)

	// Delete removes a loan and, by cascade, its payments
	Delete(ctx context.Context, id string) (bool, error)
}

// PaymentRepository defines the interface for payment data operations
type PaymentRepository interface {
	// Create inserts a payment and fills in its id
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves one payment of a loan
	GetByID(ctx context.Context, loanID, paymentID string) (*domain.Payment, error)

	// GetByLoanID retrieves all payments for a loan ordered by payment date
	GetByLoanID(ctx context.Context, loanID string) ([]*domain.Payment, error)

	// GetByLoanIDs retrieves payments for several loans keyed by loan id
	GetByLoanIDs(ctx context.Context, loanIDs []string) (map[string][]*domain.Payment, error)

	// UpdateAmount changes the amount of one payment
	UpdateAmount(ctx context.Context, payment *domain.Payment) (bool, error)

	// Delete removes one payment of a loan
	Delete(ctx context.Context, loanID, paymentID string) (bool, error)

	// ReplaceInstallments swaps every installment payment of a loan for
	// payments in a single transaction
	ReplaceInstallments(ctx context.Context, loanID string, payments []*domain.Payment) error
}
