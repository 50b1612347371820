package installment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/mirror"
	"github.com/segyhp/loan-tracker/internal/mocks"
	"github.com/segyhp/loan-tracker/internal/offline"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func offlineCoordinator(t *testing.T) (*offline.Coordinator, *mirror.Store) {
	t.Helper()
	store := mirror.NewStore(mirror.NewMemoryBackend(), "")
	return offline.NewCoordinator(nil, nil, store, zap.NewNop()), store
}

func installments(loan *domain.Loan) []*domain.Payment {
	var out []*domain.Payment
	for _, p := range loan.Payments {
		if p.IsInstallment {
			out = append(out, p)
		}
	}
	return out
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		total   decimal.Decimal
		count   int
		want    string
		wantErr bool
	}{
		{name: "even", total: decimal.NewFromInt(300), count: 3, want: "100"},
		{name: "single", total: decimal.NewFromInt(42), count: 1, want: "42"},
		{name: "uneven keeps remainder", total: decimal.NewFromInt(100), count: 3, want: "33.3333333333333333"},
		{name: "zero count", total: decimal.NewFromInt(100), count: 0, wantErr: true},
		{name: "zero total", total: decimal.Zero, count: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amounts, err := Split(tt.total, tt.count)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, amounts, tt.count)
			for _, a := range amounts {
				assert.Equal(t, tt.want, a.String())
			}
		})
	}
}

func TestPlanner_CreateAndEditPlan(t *testing.T) {
	ctx := context.Background()
	coord, store := offlineCoordinator(t)
	planner := NewPlanner(coord, nil)

	loan, err := coord.CreateLoan(ctx, &domain.CreateLoanRequest{
		Name:    "Sofa",
		Amount:  decimal.NewFromInt(300),
		DueDate: domain.NewDate(2025, time.December, 1),
	})
	require.NoError(t, err)

	created, err := planner.CreatePlan(ctx, loan.ID, decimal.NewFromInt(300), 3, domain.FrequencyMonthly)
	require.NoError(t, err)
	require.Len(t, created, 3)

	stored, err := store.FindByID(ctx, loan.ID)
	require.NoError(t, err)
	plan := installments(stored)
	require.Len(t, plan, 3)
	for i, p := range plan {
		assert.True(t, p.Amount.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, i+1, p.InstallmentNumber)
		assert.Equal(t, 3, p.TotalInstallments)
		assert.Equal(t, domain.FrequencyMonthly, p.Frequency)
		assert.Equal(t, created[0].PlanID, p.PlanID)
	}
	assert.True(t, stored.RemainingAmount.IsZero())

	edited, err := planner.EditPlan(ctx, stored, decimal.NewFromInt(300), 2, domain.FrequencyWeekly)
	require.NoError(t, err)
	require.Len(t, edited, 2)

	stored, err = store.FindByID(ctx, loan.ID)
	require.NoError(t, err)
	plan = installments(stored)
	require.Len(t, plan, 2)
	for i, p := range plan {
		assert.True(t, p.Amount.Equal(decimal.NewFromInt(150)))
		assert.Equal(t, i+1, p.InstallmentNumber)
		assert.Equal(t, 2, p.TotalInstallments)
		assert.Equal(t, domain.FrequencyWeekly, p.Frequency)
	}
	assert.NotEqual(t, created[0].PlanID, plan[0].PlanID)
}

func TestPlanner_EditPlanKeepsOneOffPayments(t *testing.T) {
	ctx := context.Background()
	coord, store := offlineCoordinator(t)
	planner := NewPlanner(coord, nil)

	loan, err := coord.CreateLoan(ctx, &domain.CreateLoanRequest{
		Name:    "TV",
		Amount:  decimal.NewFromInt(500),
		DueDate: domain.NewDate(2025, time.December, 1),
	})
	require.NoError(t, err)
	_, err = coord.AddPayment(ctx, loan.ID, &domain.AddPaymentRequest{Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	_, err = planner.CreatePlan(ctx, loan.ID, decimal.NewFromInt(400), 4, domain.FrequencyWeekly)
	require.NoError(t, err)

	stored, err := store.FindByID(ctx, loan.ID)
	require.NoError(t, err)
	_, err = planner.EditPlan(ctx, stored, decimal.NewFromInt(450), 3, domain.FrequencyMonthly)
	require.NoError(t, err)

	stored, err = store.FindByID(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Payments, 4)
	assert.Len(t, installments(stored), 3)
	assert.True(t, stored.RemainingAmount.IsZero())
}

func TestPlanner_CreatePlanValidation(t *testing.T) {
	remote := mocks.NewMockRemote()
	planner := NewPlanner(remote, nil)

	_, err := planner.CreatePlan(context.Background(), "1", decimal.NewFromInt(100), 2, "daily")
	assert.Error(t, err)
	_, err = planner.CreatePlan(context.Background(), "1", decimal.NewFromInt(100), 0, domain.FrequencyWeekly)
	assert.Error(t, err)

	remote.AssertNotCalled(t, "AddPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestPlanner_CreatePlanStopsOnFailure(t *testing.T) {
	remote := mocks.NewMockRemote()
	planner := NewPlanner(remote, nil)

	remote.On("AddPayment", mock.Anything, "1", mock.MatchedBy(func(r *domain.AddPaymentRequest) bool {
		return r.InstallmentNumber == 1
	})).Return(&domain.Payment{ID: "p1"}, nil).Once()
	remote.On("AddPayment", mock.Anything, "1", mock.MatchedBy(func(r *domain.AddPaymentRequest) bool {
		return r.InstallmentNumber == 2
	})).Return(nil, errors.New("disk full")).Once()

	created, err := planner.CreatePlan(context.Background(), "1", decimal.NewFromInt(300), 3, domain.FrequencyMonthly)
	assert.Error(t, err)
	assert.Len(t, created, 1)
	remote.AssertExpectations(t)
}

func TestPlanner_EditPlanDeleteFailure(t *testing.T) {
	remote := mocks.NewMockRemote()
	planner := NewPlanner(remote, nil)

	loan := &domain.Loan{ID: "1", Payments: []*domain.Payment{
		{ID: "a", IsInstallment: true, TotalInstallments: 2},
	}}
	remote.On("DeletePayment", mock.Anything, "1", "a").Return(errors.New("boom"))

	_, err := planner.EditPlan(context.Background(), loan, decimal.NewFromInt(100), 2, domain.FrequencyWeekly)
	assert.Error(t, err)
	remote.AssertNotCalled(t, "AddPayment", mock.Anything, mock.Anything, mock.Anything)
}

func at(day int) time.Time {
	return time.Date(2025, time.March, day, 10, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestPlanStatus(t *testing.T) {
	tests := []struct {
		name     string
		payments []*domain.Payment
		want     *Status
	}{
		{
			name:     "no installments",
			payments: []*domain.Payment{{ID: "1", Amount: decimal.NewFromInt(10), PaymentDate: at(1)}},
			want:     nil,
		},
		{
			name: "legacy plans grouped by count",
			payments: []*domain.Payment{
				{ID: "1", Amount: decimal.NewFromInt(50), PaymentDate: at(1), IsInstallment: true, InstallmentNumber: 1, TotalInstallments: 4, Frequency: domain.FrequencyWeekly},
				{ID: "2", Amount: decimal.NewFromInt(100), PaymentDate: at(2), IsInstallment: true, InstallmentNumber: 1, TotalInstallments: 3, Frequency: domain.FrequencyMonthly},
				{ID: "3", Amount: decimal.NewFromInt(100), PaymentDate: at(3), IsInstallment: true, InstallmentNumber: 2, TotalInstallments: 3, Frequency: domain.FrequencyMonthly},
			},
			want: &Status{Completed: 2, Total: 3, Frequency: domain.FrequencyMonthly, InstallmentAmount: decimal.NewFromInt(100), NextDue: ptr(at(3).AddDate(0, 1, 0))},
		},
		{
			name: "plan id separates plans of equal size",
			payments: []*domain.Payment{
				{ID: "1", Amount: decimal.NewFromInt(10), PaymentDate: at(1), IsInstallment: true, InstallmentNumber: 1, TotalInstallments: 2, Frequency: domain.FrequencyWeekly, PlanID: "old"},
				{ID: "2", Amount: decimal.NewFromInt(20), PaymentDate: at(2), IsInstallment: true, InstallmentNumber: 1, TotalInstallments: 2, Frequency: domain.FrequencyWeekly, PlanID: "new"},
			},
			want: &Status{PlanID: "new", Completed: 1, Total: 2, Frequency: domain.FrequencyWeekly, InstallmentAmount: decimal.NewFromInt(20), NextDue: ptr(at(9))},
		},
		{
			name: "equal dates go to the later payment",
			payments: []*domain.Payment{
				{ID: "1", Amount: decimal.NewFromInt(10), PaymentDate: at(5), IsInstallment: true, InstallmentNumber: 1, TotalInstallments: 5, Frequency: domain.FrequencyWeekly},
				{ID: "2", Amount: decimal.NewFromInt(30), PaymentDate: at(5), IsInstallment: true, InstallmentNumber: 1, TotalInstallments: 2, Frequency: domain.FrequencyMonthly},
			},
			want: &Status{Completed: 1, Total: 2, Frequency: domain.FrequencyMonthly, InstallmentAmount: decimal.NewFromInt(30), NextDue: ptr(at(5).AddDate(0, 1, 0))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanStatus(&domain.Loan{ID: "L", Payments: tt.payments})
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want.PlanID, got.PlanID)
			assert.Equal(t, tt.want.Completed, got.Completed)
			assert.Equal(t, tt.want.Total, got.Total)
			assert.Equal(t, tt.want.Frequency, got.Frequency)
			assert.True(t, tt.want.InstallmentAmount.Equal(got.InstallmentAmount))
			assert.Equal(t, tt.want.NextDue, got.NextDue)
		})
	}
}

func TestPlanner_AddNext(t *testing.T) {
	remote := mocks.NewMockRemote()
	planner := NewPlanner(remote, nil)
	ctx := context.Background()

	_, err := planner.AddNext(ctx, &domain.Loan{ID: "1"})
	assert.ErrorIs(t, err, ErrNoPlan)

	loan := &domain.Loan{ID: "1", Payments: []*domain.Payment{
		{ID: "a", Amount: decimal.NewFromInt(100), PaymentDate: at(1), IsInstallment: true, InstallmentNumber: 1, TotalInstallments: 2, Frequency: domain.FrequencyMonthly, PlanID: "p"},
	}}
	remote.On("AddPayment", mock.Anything, "1", mock.MatchedBy(func(r *domain.AddPaymentRequest) bool {
		return r.InstallmentNumber == 2 && r.TotalInstallments == 2 && r.PlanID == "p" &&
			r.Amount.Equal(decimal.NewFromInt(100)) && r.Frequency == domain.FrequencyMonthly
	})).Return(&domain.Payment{ID: "b"}, nil)

	next, err := planner.AddNext(ctx, loan)
	require.NoError(t, err)
	assert.Equal(t, "b", next.ID)

	loan.Payments = append(loan.Payments, &domain.Payment{
		ID: "b", Amount: decimal.NewFromInt(100), PaymentDate: at(2), IsInstallment: true, InstallmentNumber: 2, TotalInstallments: 2, Frequency: domain.FrequencyMonthly, PlanID: "p",
	})
	_, err = planner.AddNext(ctx, loan)
	assert.ErrorIs(t, err, ErrPlanComplete)
}

func TestPlanner_AddNextN(t *testing.T) {
	weekly := func() *domain.Loan {
		return &domain.Loan{ID: "1", Payments: []*domain.Payment{
			{ID: "a", Amount: decimal.NewFromInt(25), PaymentDate: at(1), IsInstallment: true, InstallmentNumber: 1, TotalInstallments: 4, Frequency: domain.FrequencyWeekly, PlanID: "w"},
		}}
	}

	tests := []struct {
		name       string
		n          int
		setupMocks func(*mocks.MockRemote)
		wantIDs    []string
		wantErr    error
		anyErr     bool
	}{
		{
			name: "two paid in the same week",
			n:    2,
			setupMocks: func(m *mocks.MockRemote) {
				m.On("AddPayment", mock.Anything, "1", mock.MatchedBy(func(r *domain.AddPaymentRequest) bool {
					return r.InstallmentNumber == 2 && r.PlanID == "w" && r.Frequency == domain.FrequencyWeekly
				})).Return(&domain.Payment{ID: "b"}, nil).Once()
				m.On("AddPayment", mock.Anything, "1", mock.MatchedBy(func(r *domain.AddPaymentRequest) bool {
					return r.InstallmentNumber == 3 && r.TotalInstallments == 4 && r.Amount.Equal(decimal.NewFromInt(25))
				})).Return(&domain.Payment{ID: "c"}, nil).Once()
			},
			wantIDs: []string{"b", "c"},
		},
		{
			name: "everything left",
			n:    3,
			setupMocks: func(m *mocks.MockRemote) {
				m.On("AddPayment", mock.Anything, "1", mock.Anything).Return(&domain.Payment{ID: "x"}, nil).Times(3)
			},
			wantIDs: []string{"x", "x", "x"},
		},
		{
			name:       "more than left",
			n:          4,
			setupMocks: func(m *mocks.MockRemote) {},
			wantErr:    ErrBeyondPlan,
		},
		{
			name:       "zero",
			n:          0,
			setupMocks: func(m *mocks.MockRemote) {},
			anyErr:     true,
		},
		{
			name: "stops at the first failure",
			n:    2,
			setupMocks: func(m *mocks.MockRemote) {
				m.On("AddPayment", mock.Anything, "1", mock.MatchedBy(func(r *domain.AddPaymentRequest) bool {
					return r.InstallmentNumber == 2
				})).Return(&domain.Payment{ID: "b"}, nil).Once()
				m.On("AddPayment", mock.Anything, "1", mock.MatchedBy(func(r *domain.AddPaymentRequest) bool {
					return r.InstallmentNumber == 3
				})).Return(nil, errors.New("disk full")).Once()
			},
			wantIDs: []string{"b"},
			anyErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := mocks.NewMockRemote()
			tt.setupMocks(remote)

			added, err := NewPlanner(remote, nil).AddNextN(context.Background(), weekly(), tt.n)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
			}

			ids := make([]string, 0, len(added))
			for _, p := range added {
				ids = append(ids, p.ID)
			}
			if tt.wantIDs == nil {
				assert.Empty(t, ids)
			} else {
				assert.Equal(t, tt.wantIDs, ids)
			}
			remote.AssertExpectations(t)
		})
	}
}
