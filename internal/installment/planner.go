// Package installment creates, inspects and rewrites installment plans.
//
// A plan has no record of its own. It is the set of installment-flagged
// payments of a loan that share a plan id, or, for payments written before
// plan ids existed, the same installment count.
package installment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoPlan       = errors.New("loan has no installment plan")
	ErrPlanComplete = errors.New("all installments already recorded")
	ErrBeyondPlan   = errors.New("more installments than the plan has left")
)

// Payments is the slice of the coordinator the planner writes through
type Payments interface {
	AddPayment(ctx context.Context, loanID string, req *domain.AddPaymentRequest) (*domain.Payment, error)
	DeletePayment(ctx context.Context, loanID, paymentID string) error
}

// Planner applies plan changes one payment at a time. Nothing is atomic: a
// failure half way through leaves the payments written so far in place.
type Planner struct {
	payments  Payments
	logger    *zap.Logger
	newPlanID func() string
}

func NewPlanner(payments Payments, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		payments:  payments,
		logger:    logger.Named("installment"),
		newPlanID: func() string { return uuid.NewString() },
	}
}

// Split divides total into count equal amounts. The remainder of an uneven
// division is not redistributed.
func Split(total decimal.Decimal, count int) ([]decimal.Decimal, error) {
	if count < 1 {
		return nil, fmt.Errorf("installment count must be at least 1, got %d", count)
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("plan total must be positive, got %s", total)
	}

	each := total.Div(decimal.NewFromInt(int64(count)))
	amounts := make([]decimal.Decimal, count)
	for i := range amounts {
		amounts[i] = each
	}
	return amounts, nil
}

// CreatePlan records count installment payments of total/count, numbered
// 1..count under a fresh plan id.
func (p *Planner) CreatePlan(ctx context.Context, loanID string, total decimal.Decimal, count int, freq domain.Frequency) ([]*domain.Payment, error) {
	if _, err := domain.ParseFrequency(string(freq)); err != nil {
		return nil, err
	}
	amounts, err := Split(total, count)
	if err != nil {
		return nil, err
	}

	planID := p.newPlanID()
	created := make([]*domain.Payment, 0, count)
	for i, amount := range amounts {
		payment, err := p.payments.AddPayment(ctx, loanID, &domain.AddPaymentRequest{
			Amount:            amount,
			IsInstallment:     true,
			InstallmentNumber: i + 1,
			TotalInstallments: count,
			Frequency:         freq,
			PlanID:            planID,
		})
		if err != nil {
			return created, fmt.Errorf("add installment %d/%d: %w", i+1, count, err)
		}
		created = append(created, payment)
	}

	p.logger.Info("installment plan created",
		zap.String("loan_id", loanID),
		zap.String("plan_id", planID),
		zap.Int("installments", count),
		zap.String("frequency", string(freq)),
	)
	return created, nil
}

// EditPlan deletes every installment payment of loan and creates a new plan.
// An interruption between the two steps leaves the loan with no
// installment payments at all.
func (p *Planner) EditPlan(ctx context.Context, loan *domain.Loan, total decimal.Decimal, count int, freq domain.Frequency) ([]*domain.Payment, error) {
	if _, err := domain.ParseFrequency(string(freq)); err != nil {
		return nil, err
	}
	if _, err := Split(total, count); err != nil {
		return nil, err
	}

	for _, payment := range loan.Payments {
		if !payment.IsInstallment {
			continue
		}
		if err := p.payments.DeletePayment(ctx, loan.ID, payment.ID); err != nil {
			return nil, fmt.Errorf("delete installment %s: %w", payment.ID, err)
		}
	}

	return p.CreatePlan(ctx, loan.ID, total, count, freq)
}

// AddNext records the next installment of the loan's current plan, using
// the amount and frequency of its latest installment.
func (p *Planner) AddNext(ctx context.Context, loan *domain.Loan) (*domain.Payment, error) {
	added, err := p.AddNextN(ctx, loan, 1)
	if err != nil {
		return nil, err
	}
	return added[0], nil
}

// AddNextN records the next n installments of the current plan in order,
// for several installments paid together. Like CreatePlan it is not
// atomic and returns what it recorded before a failure.
func (p *Planner) AddNextN(ctx context.Context, loan *domain.Loan, n int) ([]*domain.Payment, error) {
	if n < 1 {
		return nil, fmt.Errorf("installment count must be at least 1, got %d", n)
	}
	status := PlanStatus(loan)
	if status == nil {
		return nil, ErrNoPlan
	}
	left := status.Total - status.Completed
	if left <= 0 {
		return nil, ErrPlanComplete
	}
	if n > left {
		return nil, fmt.Errorf("%w: %d requested, %d left", ErrBeyondPlan, n, left)
	}

	added := make([]*domain.Payment, 0, n)
	for i := 0; i < n; i++ {
		number := status.Completed + 1 + i
		payment, err := p.payments.AddPayment(ctx, loan.ID, &domain.AddPaymentRequest{
			Amount:            status.InstallmentAmount,
			IsInstallment:     true,
			InstallmentNumber: number,
			TotalInstallments: status.Total,
			Frequency:         status.Frequency,
			PlanID:            status.PlanID,
		})
		if err != nil {
			return added, fmt.Errorf("add installment %d/%d: %w", number, status.Total, err)
		}
		added = append(added, payment)
	}
	return added, nil
}

// Plan is one inferred installment plan
type Plan struct {
	PlanID    string
	Total     int
	Frequency domain.Frequency
	Payments  []*domain.Payment
	Latest    *domain.Payment
}

// CurrentPlan returns the plan holding the most recently dated installment
// payment, or nil. Equal dates go to the payment recorded later.
func CurrentPlan(loan *domain.Loan) *Plan {
	if loan == nil {
		return nil
	}

	installments := make([]*domain.Payment, 0, len(loan.Payments))
	for _, payment := range loan.Payments {
		if payment.IsInstallment {
			installments = append(installments, payment)
		}
	}
	if len(installments) == 0 {
		return nil
	}

	latest := installments[0]
	for _, payment := range installments[1:] {
		if !payment.PaymentDate.Before(latest.PaymentDate) {
			latest = payment
		}
	}

	plan := &Plan{
		PlanID:    latest.PlanID,
		Total:     latest.TotalInstallments,
		Frequency: latest.Frequency,
		Latest:    latest,
	}
	for _, payment := range installments {
		if samePlan(latest, payment) {
			plan.Payments = append(plan.Payments, payment)
		}
	}
	sort.SliceStable(plan.Payments, func(i, j int) bool {
		return plan.Payments[i].InstallmentNumber < plan.Payments[j].InstallmentNumber
	})
	return plan
}

func samePlan(a, b *domain.Payment) bool {
	if a.PlanID != "" || b.PlanID != "" {
		return a.PlanID == b.PlanID
	}
	return a.TotalInstallments == b.TotalInstallments
}

// Status summarizes the current plan of a loan
type Status struct {
	PlanID            string           `json:"planId,omitempty"`
	Completed         int              `json:"completed"`
	Total             int              `json:"total"`
	Frequency         domain.Frequency `json:"frequency"`
	InstallmentAmount decimal.Decimal  `json:"installmentAmount"`
	NextDue           *time.Time       `json:"nextDue,omitempty"`
}

// PlanStatus reports progress of the current plan, or nil without one
func PlanStatus(loan *domain.Loan) *Status {
	plan := CurrentPlan(loan)
	if plan == nil {
		return nil
	}
	status := &Status{
		PlanID:            plan.PlanID,
		Completed:         len(plan.Payments),
		Total:             plan.Total,
		Frequency:         plan.Frequency,
		InstallmentAmount: plan.Latest.Amount,
	}
	if status.Completed < status.Total {
		if next, err := utils.AddPeriods(plan.Latest.PaymentDate, string(plan.Frequency), 1); err == nil {
			status.NextDue = &next
		}
	}
	return status
}
