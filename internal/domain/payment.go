package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is how often installments of a plan fall due
type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency validates a frequency name
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FrequencyWeekly, FrequencyMonthly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

// Payment is an amount applied against a loan. Installment fields are zero
// for one-off payments.
type Payment struct {
	ID                string          `json:"id" db:"id"`
	LoanID            string          `json:"loanId" db:"loan_id"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	PaymentDate       time.Time       `json:"paymentDate" db:"payment_date"`
	IsInstallment     bool            `json:"isInstallment" db:"is_installment"`
	InstallmentNumber int             `json:"installmentNumber,omitempty" db:"installment_number"`
	TotalInstallments int             `json:"totalInstallments,omitempty" db:"total_installments"`
	Frequency         Frequency       `json:"frequency,omitempty" db:"frequency"`
	PlanID            string          `json:"planId,omitempty" db:"plan_id"`
}

type AddPaymentRequest struct {
	Amount            decimal.Decimal `json:"amount" validate:"money"`
	IsInstallment     bool            `json:"isInstallment,omitempty"`
	InstallmentNumber int             `json:"installmentNumber,omitempty" validate:"gte=0"`
	TotalInstallments int             `json:"totalInstallments,omitempty" validate:"gte=0"`
	Frequency         Frequency       `json:"frequency,omitempty" validate:"omitempty,oneof=weekly monthly"`
	PlanID            string          `json:"planId,omitempty" validate:"max=64"`
}

// CheckInstallment enforces the coupling between installment fields that
// struct tags cannot express.
func (r *AddPaymentRequest) CheckInstallment() error {
	if !r.IsInstallment {
		if r.InstallmentNumber != 0 || r.TotalInstallments != 0 {
			return fmt.Errorf("installment fields set on a non-installment payment")
		}
		return nil
	}
	if r.TotalInstallments < 1 {
		return fmt.Errorf("totalInstallments must be at least 1")
	}
	if r.InstallmentNumber < 1 || r.InstallmentNumber > r.TotalInstallments {
		return fmt.Errorf("installmentNumber must be between 1 and %d", r.TotalInstallments)
	}
	if r.Frequency == "" {
		return fmt.Errorf("frequency is required for installment payments")
	}
	return nil
}

// NewPayment builds the payment a request describes, without an id
func (r *AddPaymentRequest) NewPayment(loanID string, now time.Time) *Payment {
	return &Payment{
		LoanID:            loanID,
		Amount:            RoundAmount(r.Amount),
		PaymentDate:       now.UTC(),
		IsInstallment:     r.IsInstallment,
		InstallmentNumber: r.InstallmentNumber,
		TotalInstallments: r.TotalInstallments,
		Frequency:         r.Frequency,
		PlanID:            r.PlanID,
	}
}

type UpdatePaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"money"`
}

// InstallmentPlanRequest describes a plan of Count equal installments
type InstallmentPlanRequest struct {
	Total     decimal.Decimal `json:"total" validate:"money"`
	Count     int             `json:"count" validate:"required,min=1,max=520"`
	Frequency Frequency       `json:"frequency" validate:"required,oneof=weekly monthly"`
}
