package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewValidator_CreateLoanRequest(t *testing.T) {
	v := NewValidator()
	due := NewDate(2026, time.March, 1)

	tests := []struct {
		name    string
		request CreateLoanRequest
		wantErr bool
	}{
		{name: "valid", request: CreateLoanRequest{Name: "Car", Amount: decimal.NewFromInt(10), DueDate: due}},
		{name: "one cent", request: CreateLoanRequest{Name: "Car", Amount: decimal.RequireFromString("0.01"), DueDate: due}},
		{name: "half cent rounds up", request: CreateLoanRequest{Name: "Car", Amount: decimal.RequireFromString("0.005"), DueDate: due}},
		{name: "empty name", request: CreateLoanRequest{Name: "", Amount: decimal.NewFromInt(10), DueDate: due}, wantErr: true},
		{name: "blank name", request: CreateLoanRequest{Name: " \t ", Amount: decimal.NewFromInt(10), DueDate: due}, wantErr: true},
		{name: "zero amount", request: CreateLoanRequest{Name: "Car", Amount: decimal.Zero, DueDate: due}, wantErr: true},
		{name: "rounds to zero", request: CreateLoanRequest{Name: "Car", Amount: decimal.RequireFromString("0.004"), DueDate: due}, wantErr: true},
		{name: "negative", request: CreateLoanRequest{Name: "Car", Amount: decimal.NewFromInt(-1), DueDate: due}, wantErr: true},
		{name: "missing due date", request: CreateLoanRequest{Name: "Car", Amount: decimal.NewFromInt(10)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(&tt.request)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewValidator_PaymentAmounts(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.Struct(&AddPaymentRequest{Amount: decimal.RequireFromString("12.34")}))
	assert.Error(t, v.Struct(&AddPaymentRequest{Amount: decimal.RequireFromString("0.001")}))
	assert.Error(t, v.Struct(&UpdatePaymentRequest{Amount: decimal.RequireFromString("0.001")}))
	assert.Error(t, v.Struct(&InstallmentPlanRequest{Total: decimal.RequireFromString("0.001"), Count: 1, Frequency: FrequencyWeekly}))
}

func TestRequestsRoundToCents(t *testing.T) {
	third := decimal.NewFromInt(100).Div(decimal.NewFromInt(3))
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	loan := (&CreateLoanRequest{Name: "  Car  ", Amount: third}).NewLoan(now)
	assert.Equal(t, "Car", loan.Name)
	assert.Equal(t, "33.33", loan.Amount.String())
	assert.Equal(t, "33.33", loan.RemainingAmount.String())

	payment := (&AddPaymentRequest{Amount: third}).NewPayment("1", now)
	assert.Equal(t, "33.33", payment.Amount.String())
}
