package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/segyhp/loan-tracker/internal/cache"
	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/installment"
	"github.com/segyhp/loan-tracker/internal/repository"
	customError "github.com/segyhp/loan-tracker/pkg/errors"
	"github.com/segyhp/loan-tracker/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LoanService struct {
	loanRepo    repository.LoanRepository
	paymentRepo repository.PaymentRepository
	cache       cache.LoanCache
	logger      *zap.Logger
	now         func() time.Time
}

func NewLoanService(
	loanRepo repository.LoanRepository,
	paymentRepo repository.PaymentRepository,
	loanCache cache.LoanCache,
	logger *zap.Logger,
) *LoanService {
	if loanCache == nil {
		loanCache = cache.NewRedisLoanCache(nil, 0, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanService{
		loanRepo:    loanRepo,
		paymentRepo: paymentRepo,
		cache:       loanCache,
		logger:      logger.Named("service"),
		now:         time.Now,
	}
}

// ListLoans returns every loan with its payments and remaining amount
func (s *LoanService) ListLoans(ctx context.Context) ([]*domain.Loan, error) {
	loans, err := s.loanRepo.List(ctx)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if err := s.attachPayments(ctx, loans); err != nil {
		return nil, err
	}
	return loans, nil
}

// GetOverdueLoans returns loans past their due date with money still owed
func (s *LoanService) GetOverdueLoans(ctx context.Context) ([]*domain.Loan, error) {
	loans, err := s.loanRepo.GetOverdue(ctx, s.now())
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if err := s.attachPayments(ctx, loans); err != nil {
		return nil, err
	}
	return loans, nil
}

// GetLoan returns one loan, served from cache when possible
func (s *LoanService) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	if !utils.IsNumericID(id) {
		return nil, customError.WrapLoanNotFound(id)
	}

	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("loan_id", id), zap.Error(customError.WrapCacheError(err)))
	}
	if cached != nil {
		return cached, nil
	}

	loan, err := s.loadLoan(ctx, id)
	if err != nil {
		return nil, err
	}

	payments, err := s.paymentRepo.GetByLoanID(ctx, id)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	loan.Payments = payments
	loan.Recalculate()

	if err := s.cache.Set(ctx, loan); err != nil {
		s.logger.Warn("cache write failed", zap.String("loan_id", id), zap.Error(customError.WrapCacheError(err)))
	}
	return loan, nil
}

// CreateLoan stores a new loan with no payments
func (s *LoanService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, error) {
	loan := request.NewLoan(s.now())
	if !loan.Amount.IsPositive() {
		return nil, customError.WrapInvalidLoanAmount(request.Amount.String())
	}
	if err := s.loanRepo.Create(ctx, loan); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	loan.Recalculate()

	s.logger.Info("loan created", zap.String("loan_id", loan.ID))
	return loan, nil
}

// DeleteLoan removes a loan and its payments
func (s *LoanService) DeleteLoan(ctx context.Context, id string) error {
	if !utils.IsNumericID(id) {
		return customError.WrapLoanNotFound(id)
	}

	deleted, err := s.loanRepo.Delete(ctx, id)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if !deleted {
		return customError.WrapLoanNotFound(id)
	}

	s.invalidate(ctx, id)
	return nil
}

// AddPayment records a payment against an existing loan
func (s *LoanService) AddPayment(ctx context.Context, loanID string, request *domain.AddPaymentRequest) (*domain.Payment, error) {
	if !domain.RoundAmount(request.Amount).IsPositive() {
		return nil, customError.WrapInvalidPaymentAmount(request.Amount.String())
	}
	if err := request.CheckInstallment(); err != nil {
		return nil, customError.WrapInvalidRequest(err)
	}
	if !utils.IsNumericID(loanID) {
		return nil, customError.WrapLoanNotFound(loanID)
	}
	if _, err := s.loadLoan(ctx, loanID); err != nil {
		return nil, err
	}

	payment := request.NewPayment(loanID, s.now())
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.invalidate(ctx, loanID)
	return payment, nil
}

// UpdatePayment changes the amount of one payment
func (s *LoanService) UpdatePayment(ctx context.Context, loanID, paymentID string, request *domain.UpdatePaymentRequest) (*domain.Payment, error) {
	amount := domain.RoundAmount(request.Amount)
	if !amount.IsPositive() {
		return nil, customError.WrapInvalidPaymentAmount(request.Amount.String())
	}
	if !utils.IsNumericID(loanID) || !utils.IsNumericID(paymentID) {
		return nil, customError.WrapPaymentNotFound(loanID, paymentID)
	}

	payment, err := s.paymentRepo.GetByID(ctx, loanID, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapPaymentNotFound(loanID, paymentID)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	payment.Amount = amount
	updated, err := s.paymentRepo.UpdateAmount(ctx, payment)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !updated {
		return nil, customError.WrapPaymentNotFound(loanID, paymentID)
	}

	s.invalidate(ctx, loanID)
	return payment, nil
}

// DeletePayment removes one payment
func (s *LoanService) DeletePayment(ctx context.Context, loanID, paymentID string) error {
	if !utils.IsNumericID(loanID) || !utils.IsNumericID(paymentID) {
		return customError.WrapPaymentNotFound(loanID, paymentID)
	}

	deleted, err := s.paymentRepo.Delete(ctx, loanID, paymentID)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if !deleted {
		return customError.WrapPaymentNotFound(loanID, paymentID)
	}

	s.invalidate(ctx, loanID)
	return nil
}

// ReplaceInstallmentPlan swaps the loan's installment payments for a new
// plan of count equal payments in one transaction
func (s *LoanService) ReplaceInstallmentPlan(ctx context.Context, loanID string, request *domain.InstallmentPlanRequest) ([]*domain.Payment, error) {
	if !request.Total.IsPositive() {
		return nil, customError.WrapInvalidPaymentAmount(request.Total.String())
	}
	if !utils.IsNumericID(loanID) {
		return nil, customError.WrapLoanNotFound(loanID)
	}
	if _, err := s.loadLoan(ctx, loanID); err != nil {
		return nil, err
	}

	amounts, err := installment.Split(request.Total, request.Count)
	if err != nil {
		return nil, customError.WrapInvalidRequest(err)
	}
	if !domain.RoundAmount(amounts[0]).IsPositive() {
		return nil, customError.WrapInvalidPaymentAmount(amounts[0].String())
	}

	planID := uuid.NewString()
	now := s.now().UTC()
	payments := make([]*domain.Payment, 0, len(amounts))
	for i, amount := range amounts {
		payments = append(payments, &domain.Payment{
			LoanID:            loanID,
			Amount:            domain.RoundAmount(amount),
			PaymentDate:       now,
			IsInstallment:     true,
			InstallmentNumber: i + 1,
			TotalInstallments: request.Count,
			Frequency:         request.Frequency,
			PlanID:            planID,
		})
	}

	if err := s.paymentRepo.ReplaceInstallments(ctx, loanID, payments); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.invalidate(ctx, loanID)
	s.logger.Info("installment plan replaced",
		zap.String("loan_id", loanID),
		zap.String("plan_id", planID),
		zap.Int("installments", request.Count),
	)
	return payments, nil
}

func (s *LoanService) loadLoan(ctx context.Context, id string) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapLoanNotFound(id)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return loan, nil
}

func (s *LoanService) attachPayments(ctx context.Context, loans []*domain.Loan) error {
	ids := make([]string, 0, len(loans))
	for _, loan := range loans {
		ids = append(ids, loan.ID)
	}

	byLoan, err := s.paymentRepo.GetByLoanIDs(ctx, ids)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	for _, loan := range loans {
		loan.Payments = byLoan[loan.ID]
		loan.Recalculate()
	}
	return nil
}

func (s *LoanService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("loan_id", id), zap.Error(customError.WrapCacheError(err)))
	}
}
