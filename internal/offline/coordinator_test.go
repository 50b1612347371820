package offline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/mirror"
	"github.com/segyhp/loan-tracker/internal/mocks"
	customError "github.com/segyhp/loan-tracker/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	online  = ProberFunc(func(context.Context) bool { return true })
	offline = ProberFunc(func(context.Context) bool { return false })

	fixedNow = time.Date(2025, time.February, 10, 8, 30, 0, 0, time.UTC)
	errDown  = errors.New("connection refused")
)

type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk full")
}
func (brokenBackend) Set(context.Context, string, []byte) error { return errors.New("disk full") }

type fixture struct {
	remote *mocks.MockRemote
	store  *mirror.Store
	logs   *observer.ObservedLogs
	coord  *Coordinator
}

func newFixture(t *testing.T, prober Prober) *fixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	remote := mocks.NewMockRemote()
	store := mirror.NewStore(mirror.NewMemoryBackend(), "")

	seq := 0
	coord := NewCoordinator(remote, prober, store, zap.New(core),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("%s%d", domain.OfflineIDPrefix, seq)
		}),
	)

	return &fixture{remote: remote, store: store, logs: logs, coord: coord}
}

func createRequest(name string, amount int64) *domain.CreateLoanRequest {
	return &domain.CreateLoanRequest{
		Name:    name,
		Amount:  decimal.NewFromInt(amount),
		DueDate: domain.NewDate(2025, time.June, 30),
	}
}

func serverLoan(id, name string, amount int64) *domain.Loan {
	loan := &domain.Loan{
		ID:        id,
		Name:      name,
		Amount:    decimal.NewFromInt(amount),
		DueDate:   domain.NewDate(2025, time.June, 30),
		CreatedAt: fixedNow,
	}
	loan.Recalculate()
	return loan
}

func TestCoordinator_CreateLoan(t *testing.T) {
	tests := []struct {
		name       string
		prober     Prober
		setupMocks func(*mocks.MockRemote)
		wantID     string
		wantWarn   bool
	}{
		{
			name:   "online uses server id",
			prober: online,
			setupMocks: func(r *mocks.MockRemote) {
				r.On("CreateLoan", mock.Anything, mock.Anything).Return(serverLoan("17", "Car", 1000), nil)
			},
			wantID: "17",
		},
		{
			name:   "remote failure after good probe falls back",
			prober: online,
			setupMocks: func(r *mocks.MockRemote) {
				r.On("CreateLoan", mock.Anything, mock.Anything).Return(nil, errDown)
			},
			wantID:   "offline_1",
			wantWarn: true,
		},
		{
			name:       "unreachable skips the server",
			prober:     offline,
			setupMocks: func(r *mocks.MockRemote) {},
			wantID:     "offline_1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.prober)
			tt.setupMocks(f.remote)

			loan, err := f.coord.CreateLoan(context.Background(), createRequest("Car", 1000))
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, loan.ID)
			assert.True(t, loan.RemainingAmount.Equal(decimal.NewFromInt(1000)))

			stored, err := f.store.FindByID(context.Background(), tt.wantID)
			require.NoError(t, err)
			assert.Equal(t, "Car", stored.Name)

			assert.Equal(t, tt.wantWarn, f.logs.FilterLevelExact(zapcore.WarnLevel).Len() > 0)
			f.remote.AssertExpectations(t)
		})
	}
}

func TestCoordinator_OfflineCreateStampsClock(t *testing.T) {
	f := newFixture(t, offline)

	loan, err := f.coord.CreateLoan(context.Background(), createRequest("Rent", 500))
	require.NoError(t, err)
	assert.Equal(t, fixedNow, loan.CreatedAt)
	assert.NotNil(t, loan.Payments)
	assert.Empty(t, loan.Payments)
}

func TestCoordinator_OfflineRoundTrip(t *testing.T) {
	f := newFixture(t, offline)
	ctx := context.Background()

	created, err := f.coord.CreateLoan(ctx, createRequest("Phone", 600))
	require.NoError(t, err)

	loans, err := f.coord.ListLoans(ctx)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, created.ID, loans[0].ID)
	assert.Equal(t, "Phone", loans[0].Name)
	assert.True(t, loans[0].Amount.Equal(created.Amount))
	assert.Equal(t, created.DueDate.String(), loans[0].DueDate.String())

	got, err := f.coord.GetLoan(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestCoordinator_OfflineIDsAreUnique(t *testing.T) {
	store := mirror.NewStore(mirror.NewMemoryBackend(), "")
	coord := NewCoordinator(nil, nil, store, nil)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		loan, err := coord.CreateLoan(ctx, createRequest("Loan", 100))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(loan.ID, domain.OfflineIDPrefix))
		assert.False(t, seen[loan.ID], "duplicate id %s", loan.ID)
		seen[loan.ID] = true
	}

	loans, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, loans, 50)
}

func TestNewOfflineID(t *testing.T) {
	a, b := NewOfflineID(), NewOfflineID()
	assert.True(t, domain.IsOfflineID(a))
	assert.NotEqual(t, a, b)
}

func TestCoordinator_CreateLoanValidation(t *testing.T) {
	f := newFixture(t, online)

	_, err := f.coord.CreateLoan(context.Background(), createRequest("", 100))
	assert.ErrorIs(t, err, customError.ErrInvalidRequest)

	_, err = f.coord.CreateLoan(context.Background(), createRequest("Zero", 0))
	assert.ErrorIs(t, err, customError.ErrInvalidRequest)

	_, err = f.coord.CreateLoan(context.Background(), createRequest("   ", 100))
	assert.ErrorIs(t, err, customError.ErrInvalidRequest)

	subCent := createRequest("Gum", 1)
	subCent.Amount = decimal.RequireFromString("0.004")
	_, err = f.coord.CreateLoan(context.Background(), subCent)
	assert.ErrorIs(t, err, customError.ErrInvalidRequest)

	f.remote.AssertNotCalled(t, "CreateLoan", mock.Anything, mock.Anything)
	loans, err := f.store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func TestCoordinator_AmountsKeptToTheCent(t *testing.T) {
	third := decimal.NewFromInt(100).Div(decimal.NewFromInt(3))
	cents := decimal.RequireFromString("33.33")

	t.Run("offline", func(t *testing.T) {
		f := newFixture(t, offline)
		ctx := context.Background()

		req := createRequest("Phone", 100)
		req.Amount = third
		loan, err := f.coord.CreateLoan(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, cents.String(), loan.Amount.String())

		payment, err := f.coord.AddPayment(ctx, loan.ID, &domain.AddPaymentRequest{Amount: third})
		require.NoError(t, err)
		assert.Equal(t, cents.String(), payment.Amount.String())

		updated, err := f.coord.UpdatePayment(ctx, loan.ID, payment.ID, &domain.UpdatePaymentRequest{Amount: third})
		require.NoError(t, err)
		assert.Equal(t, cents.String(), updated.Amount.String())

		stored, err := f.store.FindByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.True(t, stored.RemainingAmount.IsZero(), stored.RemainingAmount.String())
	})

	t.Run("online update mirrors the stored amount", func(t *testing.T) {
		f := newFixture(t, online)
		ctx := context.Background()
		loan := serverLoan("3", "Bike", 100)
		loan.Payments = []*domain.Payment{{ID: "41", LoanID: "3", Amount: decimal.NewFromInt(10)}}
		loan.Recalculate()
		require.NoError(t, f.store.AppendLoan(ctx, loan))

		req := &domain.UpdatePaymentRequest{Amount: third}
		f.remote.On("UpdatePayment", mock.Anything, "3", "41", req).
			Return(&domain.Payment{ID: "41", LoanID: "3", Amount: cents}, nil)

		_, err := f.coord.UpdatePayment(ctx, "3", "41", req)
		require.NoError(t, err)

		stored, err := f.store.FindByID(ctx, "3")
		require.NoError(t, err)
		require.Len(t, stored.Payments, 1)
		assert.Equal(t, cents.String(), stored.Payments[0].Amount.String())
		f.remote.AssertExpectations(t)
	})

	t.Run("sub-cent payment never reaches the server", func(t *testing.T) {
		f := newFixture(t, online)

		_, err := f.coord.AddPayment(context.Background(), "3", &domain.AddPaymentRequest{
			Amount: decimal.RequireFromString("0.001"),
		})
		assert.ErrorIs(t, err, customError.ErrInvalidRequest)
		f.remote.AssertNotCalled(t, "AddPayment", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCoordinator_ListLoansOnlineSyncsMirror(t *testing.T) {
	f := newFixture(t, online)
	ctx := context.Background()

	require.NoError(t, f.store.AppendLoan(ctx, serverLoan("offline_old", "Stale", 10)))
	f.remote.On("ListLoans", mock.Anything).Return([]*domain.Loan{
		serverLoan("1", "A", 100),
		serverLoan("2", "B", 200),
	}, nil)

	loans, err := f.coord.ListLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, loans, 2)

	mirrored, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, mirrored, 2)
	assert.Equal(t, "1", mirrored[0].ID)
	assert.Equal(t, "2", mirrored[1].ID)
}

func TestCoordinator_ListLoansFallsBackToMirror(t *testing.T) {
	f := newFixture(t, online)
	ctx := context.Background()

	require.NoError(t, f.store.AppendLoan(ctx, serverLoan("1", "Cached", 100)))
	f.remote.On("ListLoans", mock.Anything).Return(nil, errDown)

	loans, err := f.coord.ListLoans(ctx)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, "Cached", loans[0].Name)

	warns := f.logs.FilterMessage("remote call failed, falling back to local mirror").All()
	require.Len(t, warns, 1)
	assert.Equal(t, "list_loans", warns[0].ContextMap()["operation"])
}

func TestCoordinator_GetLoanOnlineRefreshesRecord(t *testing.T) {
	f := newFixture(t, online)
	ctx := context.Background()

	require.NoError(t, f.store.AppendLoan(ctx, serverLoan("5", "Old name", 100)))
	f.remote.On("GetLoan", mock.Anything, "5").Return(serverLoan("5", "New name", 100), nil)

	loan, err := f.coord.GetLoan(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "New name", loan.Name)

	stored, err := f.store.FindByID(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "New name", stored.Name)
}

func TestCoordinator_GetLoanMissingEverywhere(t *testing.T) {
	f := newFixture(t, offline)

	_, err := f.coord.GetLoan(context.Background(), "99")
	assert.ErrorIs(t, err, customError.ErrLoanNotFound)
}

func TestCoordinator_DeleteLoan(t *testing.T) {
	tests := []struct {
		name       string
		prober     Prober
		setupMocks func(*mocks.MockRemote)
	}{
		{
			name:   "online",
			prober: online,
			setupMocks: func(r *mocks.MockRemote) {
				r.On("DeleteLoan", mock.Anything, "1").Return(nil)
			},
		},
		{
			name:   "remote failure",
			prober: online,
			setupMocks: func(r *mocks.MockRemote) {
				r.On("DeleteLoan", mock.Anything, "1").Return(errDown)
			},
		},
		{
			name:       "offline",
			prober:     offline,
			setupMocks: func(r *mocks.MockRemote) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.prober)
			tt.setupMocks(f.remote)
			ctx := context.Background()

			require.NoError(t, f.store.AppendLoan(ctx, serverLoan("1", "Gone", 100)))
			require.NoError(t, f.store.AppendLoan(ctx, serverLoan("2", "Kept", 100)))

			require.NoError(t, f.coord.DeleteLoan(ctx, "1"))

			loans, err := f.store.LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, loans, 1)
			assert.Equal(t, "2", loans[0].ID)
			f.remote.AssertExpectations(t)
		})
	}
}

func TestCoordinator_DeleteIsIdempotentOffline(t *testing.T) {
	f := newFixture(t, offline)
	ctx := context.Background()

	require.NoError(t, f.coord.DeleteLoan(ctx, "missing"))
	require.NoError(t, f.coord.DeleteLoan(ctx, "missing"))
	require.NoError(t, f.coord.DeletePayment(ctx, "missing", "p1"))
}

func TestCoordinator_OfflinePaymentsKeepRemainingInSync(t *testing.T) {
	f := newFixture(t, offline)
	ctx := context.Background()

	loan, err := f.coord.CreateLoan(ctx, createRequest("Laptop", 1000))
	require.NoError(t, err)

	steps := []struct {
		amount    int64
		remaining int64
	}{
		{400, 600},
		{450, 150},
		{200, -50},
	}

	var lastPayment *domain.Payment
	for _, step := range steps {
		lastPayment, err = f.coord.AddPayment(ctx, loan.ID, &domain.AddPaymentRequest{Amount: decimal.NewFromInt(step.amount)})
		require.NoError(t, err)
		assert.True(t, domain.IsOfflineID(lastPayment.ID))
		assert.Equal(t, fixedNow, lastPayment.PaymentDate)

		stored, err := f.store.FindByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.True(t, stored.RemainingAmount.Equal(decimal.NewFromInt(step.remaining)),
			"want %d, got %s", step.remaining, stored.RemainingAmount)
	}

	updated, err := f.coord.UpdatePayment(ctx, loan.ID, lastPayment.ID, &domain.UpdatePaymentRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(100)))

	stored, err := f.store.FindByID(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, stored.RemainingAmount.Equal(decimal.NewFromInt(50)))

	require.NoError(t, f.coord.DeletePayment(ctx, loan.ID, lastPayment.ID))
	stored, err = f.store.FindByID(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Payments, 2)
	assert.True(t, stored.RemainingAmount.Equal(decimal.NewFromInt(150)))
}

func TestCoordinator_AddPaymentOnline(t *testing.T) {
	f := newFixture(t, online)
	ctx := context.Background()
	require.NoError(t, f.store.AppendLoan(ctx, serverLoan("3", "Bike", 300)))

	req := &domain.AddPaymentRequest{Amount: decimal.NewFromInt(100)}
	f.remote.On("AddPayment", mock.Anything, "3", req).Return(&domain.Payment{
		ID:     "41",
		Amount: decimal.NewFromInt(100),
	}, nil)

	payment, err := f.coord.AddPayment(ctx, "3", req)
	require.NoError(t, err)
	assert.Equal(t, "41", payment.ID)
	assert.Equal(t, "3", payment.LoanID)

	stored, err := f.store.FindByID(ctx, "3")
	require.NoError(t, err)
	require.Len(t, stored.Payments, 1)
	assert.Equal(t, "41", stored.Payments[0].ID)
	assert.True(t, stored.RemainingAmount.Equal(decimal.NewFromInt(200)))
}

func TestCoordinator_AddPaymentValidation(t *testing.T) {
	f := newFixture(t, offline)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *domain.AddPaymentRequest
	}{
		{"zero amount", &domain.AddPaymentRequest{Amount: decimal.Zero}},
		{"negative amount", &domain.AddPaymentRequest{Amount: decimal.NewFromInt(-5)}},
		{"installment without total", &domain.AddPaymentRequest{
			Amount: decimal.NewFromInt(5), IsInstallment: true, InstallmentNumber: 1, Frequency: domain.FrequencyWeekly,
		}},
		{"number beyond total", &domain.AddPaymentRequest{
			Amount: decimal.NewFromInt(5), IsInstallment: true, InstallmentNumber: 4, TotalInstallments: 3, Frequency: domain.FrequencyWeekly,
		}},
		{"unknown frequency", &domain.AddPaymentRequest{
			Amount: decimal.NewFromInt(5), IsInstallment: true, InstallmentNumber: 1, TotalInstallments: 3, Frequency: "daily",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.AddPayment(ctx, "1", tt.req)
			assert.ErrorIs(t, err, customError.ErrInvalidRequest)
		})
	}
}

func TestCoordinator_OfflineTargetsMustExist(t *testing.T) {
	f := newFixture(t, offline)
	ctx := context.Background()

	_, err := f.coord.AddPayment(ctx, "nope", &domain.AddPaymentRequest{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, customError.ErrLoanNotFound)

	loan, err := f.coord.CreateLoan(ctx, createRequest("Real", 10))
	require.NoError(t, err)

	_, err = f.coord.UpdatePayment(ctx, loan.ID, "nope", &domain.UpdatePaymentRequest{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, customError.ErrPaymentNotFound)
}

func TestCoordinator_MirrorFailureAfterRemoteSuccessIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	remote := mocks.NewMockRemote()
	store := mirror.NewStore(brokenBackend{}, "")
	coord := NewCoordinator(remote, online, store, zap.New(core))

	remote.On("CreateLoan", mock.Anything, mock.Anything).Return(serverLoan("8", "Server", 100), nil)

	loan, err := coord.CreateLoan(context.Background(), createRequest("Server", 100))
	require.NoError(t, err)
	assert.Equal(t, "8", loan.ID)

	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestCoordinator_FailsWhenBothPathsFail(t *testing.T) {
	remote := mocks.NewMockRemote()
	store := mirror.NewStore(brokenBackend{}, "")
	coord := NewCoordinator(remote, online, store, zap.NewNop())

	remote.On("ListLoans", mock.Anything).Return(nil, errDown)

	_, err := coord.ListLoans(context.Background())
	assert.ErrorIs(t, err, customError.ErrStorageUnavailable)
	assert.Equal(t, customError.ErrCodeStorageError, customError.CodeOf(err))
}

func TestCoordinator_PendingLoans(t *testing.T) {
	f := newFixture(t, offline)
	ctx := context.Background()

	synced := serverLoan("1", "Synced", 100)
	withOfflinePayment := serverLoan("2", "Paid offline", 100)
	withOfflinePayment.Payments = []*domain.Payment{{ID: "offline_p", LoanID: "2", Amount: decimal.NewFromInt(10)}}
	require.NoError(t, f.store.SaveAll(ctx, []*domain.Loan{synced, withOfflinePayment}))

	created, err := f.coord.CreateLoan(ctx, createRequest("Local", 50))
	require.NoError(t, err)

	pending, err := f.coord.PendingLoans(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "2", pending[0].ID)
	assert.Equal(t, created.ID, pending[1].ID)
}
