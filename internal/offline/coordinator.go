// Package offline decides, per operation, whether the tracker talks to the
// loan server or works against the local mirror, and keeps the mirror in
// step with whatever the server last reported.
//
// Every operation follows the same template: probe, try the server, apply
// the server's answer to the mirror; on any failure do the same mutation on
// the mirror alone, synthesizing the values the server would have assigned.
// An operation only fails when both paths fail.
package offline

import (
	"context"
	"time"

	"github.com/segyhp/loan-tracker/internal/domain"
	customError "github.com/segyhp/loan-tracker/pkg/errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Remote is the loan server
type Remote interface {
	ListLoans(ctx context.Context) ([]*domain.Loan, error)
	GetLoan(ctx context.Context, id string) (*domain.Loan, error)
	CreateLoan(ctx context.Context, req *domain.CreateLoanRequest) (*domain.Loan, error)
	DeleteLoan(ctx context.Context, id string) error
	AddPayment(ctx context.Context, loanID string, req *domain.AddPaymentRequest) (*domain.Payment, error)
	DeletePayment(ctx context.Context, loanID, paymentID string) error
	UpdatePayment(ctx context.Context, loanID, paymentID string, req *domain.UpdatePaymentRequest) (*domain.Payment, error)
}

// Mirror is the local copy of the loan collection
type Mirror interface {
	LoadAll(ctx context.Context) ([]*domain.Loan, error)
	Sync(ctx context.Context, serverLoans []*domain.Loan) error
	FindByID(ctx context.Context, id string) (*domain.Loan, error)
	AppendLoan(ctx context.Context, loan *domain.Loan) error
	RemoveLoan(ctx context.Context, id string) (bool, error)
	AppendPayment(ctx context.Context, loanID string, payment *domain.Payment) error
	UpdatePayment(ctx context.Context, loanID, paymentID string, amount decimal.Decimal) (*domain.Payment, error)
	RemovePayment(ctx context.Context, loanID, paymentID string) (bool, error)
}

// Coordinator is the single entry point the tracker uses for loan data
type Coordinator struct {
	remote    Remote
	prober    Prober
	mirror    Mirror
	logger    *zap.Logger
	validator *validator.Validate

	now   func() time.Time
	newID func() string
}

type Option func(*Coordinator)

// WithClock overrides the clock used for offline timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDGenerator overrides how offline ids are minted
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

// NewCoordinator wires the coordinator. A nil remote or prober means the
// tracker runs fully offline.
func NewCoordinator(remote Remote, prober Prober, mirror Mirror, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		remote:    remote,
		prober:    prober,
		mirror:    mirror,
		logger:    logger.Named("offline"),
		validator: domain.NewValidator(),
		now:       time.Now,
		newID:     NewOfflineID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewOfflineID mints an id for an entity created while disconnected. The
// UUIDv7 body combines a millisecond timestamp with random bits.
func NewOfflineID() string {
	return domain.OfflineIDPrefix + uuid.Must(uuid.NewV7()).String()
}

// ListLoans returns every loan. When the server answers, the mirror is
// overwritten with its list first.
func (c *Coordinator) ListLoans(ctx context.Context) ([]*domain.Loan, error) {
	const op = "list_loans"

	if c.online(ctx, op) {
		loans, err := c.remote.ListLoans(ctx)
		if err == nil {
			if err := c.mirror.Sync(ctx, loans); err != nil {
				c.mirrorFailed(op, err)
			}
			return loans, nil
		}
		c.remoteFailed(op, err)
	}

	return c.mirror.LoadAll(ctx)
}

// GetLoan returns one loan, refreshing its mirror record when online
func (c *Coordinator) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	const op = "get_loan"

	if c.online(ctx, op) {
		loan, err := c.remote.GetLoan(ctx, id)
		if err == nil {
			if err := c.mirror.AppendLoan(ctx, loan); err != nil {
				c.mirrorFailed(op, err, zap.String("loan_id", id))
			}
			return loan, nil
		}
		c.remoteFailed(op, err, zap.String("loan_id", id))
	}

	return c.mirror.FindByID(ctx, id)
}

// CreateLoan records a new loan, with a server id when online and an
// offline id otherwise
func (c *Coordinator) CreateLoan(ctx context.Context, req *domain.CreateLoanRequest) (*domain.Loan, error) {
	const op = "create_loan"

	if err := c.validator.Struct(req); err != nil {
		return nil, customError.WrapInvalidRequest(err)
	}

	if c.online(ctx, op) {
		loan, err := c.remote.CreateLoan(ctx, req)
		if err == nil {
			if err := c.mirror.AppendLoan(ctx, loan); err != nil {
				c.mirrorFailed(op, err, zap.String("loan_id", loan.ID))
			}
			return loan, nil
		}
		c.remoteFailed(op, err)
	}

	loan := req.NewLoan(c.now())
	loan.ID = c.newID()
	if err := c.mirror.AppendLoan(ctx, loan); err != nil {
		return nil, err
	}
	c.logger.Info("loan recorded offline", zap.String("loan_id", loan.ID))
	return loan, nil
}

// DeleteLoan removes a loan and its payments. Deleting an id the mirror
// does not hold succeeds.
func (c *Coordinator) DeleteLoan(ctx context.Context, id string) error {
	const op = "delete_loan"

	if c.online(ctx, op) {
		err := c.remote.DeleteLoan(ctx, id)
		if err == nil {
			if _, err := c.mirror.RemoveLoan(ctx, id); err != nil {
				c.mirrorFailed(op, err, zap.String("loan_id", id))
			}
			return nil
		}
		c.remoteFailed(op, err, zap.String("loan_id", id))
	}

	_, err := c.mirror.RemoveLoan(ctx, id)
	return err
}

// AddPayment records a payment against loanID
func (c *Coordinator) AddPayment(ctx context.Context, loanID string, req *domain.AddPaymentRequest) (*domain.Payment, error) {
	const op = "add_payment"

	if err := c.validator.Struct(req); err != nil {
		return nil, customError.WrapInvalidRequest(err)
	}
	if err := req.CheckInstallment(); err != nil {
		return nil, customError.WrapInvalidRequest(err)
	}

	if c.online(ctx, op) {
		payment, err := c.remote.AddPayment(ctx, loanID, req)
		if err == nil {
			if payment.LoanID == "" {
				payment.LoanID = loanID
			}
			if payment.PaymentDate.IsZero() {
				payment.PaymentDate = c.now().UTC()
			}
			if err := c.mirror.AppendPayment(ctx, loanID, payment); err != nil {
				c.mirrorFailed(op, err, zap.String("loan_id", loanID))
			}
			return payment, nil
		}
		c.remoteFailed(op, err, zap.String("loan_id", loanID))
	}

	payment := req.NewPayment(loanID, c.now())
	payment.ID = c.newID()
	if err := c.mirror.AppendPayment(ctx, loanID, payment); err != nil {
		return nil, err
	}
	c.logger.Info("payment recorded offline",
		zap.String("loan_id", loanID),
		zap.String("payment_id", payment.ID),
	)
	return payment, nil
}

// DeletePayment removes one payment; unknown ids are a no-op locally
func (c *Coordinator) DeletePayment(ctx context.Context, loanID, paymentID string) error {
	const op = "delete_payment"

	if c.online(ctx, op) {
		err := c.remote.DeletePayment(ctx, loanID, paymentID)
		if err == nil {
			if _, err := c.mirror.RemovePayment(ctx, loanID, paymentID); err != nil {
				c.mirrorFailed(op, err, zap.String("loan_id", loanID), zap.String("payment_id", paymentID))
			}
			return nil
		}
		c.remoteFailed(op, err, zap.String("loan_id", loanID), zap.String("payment_id", paymentID))
	}

	_, err := c.mirror.RemovePayment(ctx, loanID, paymentID)
	return err
}

// UpdatePayment changes the amount of one payment
func (c *Coordinator) UpdatePayment(ctx context.Context, loanID, paymentID string, req *domain.UpdatePaymentRequest) (*domain.Payment, error) {
	const op = "update_payment"

	if err := c.validator.Struct(req); err != nil {
		return nil, customError.WrapInvalidRequest(err)
	}

	if c.online(ctx, op) {
		payment, err := c.remote.UpdatePayment(ctx, loanID, paymentID, req)
		if err == nil {
			if _, err := c.mirror.UpdatePayment(ctx, loanID, paymentID, payment.Amount); err != nil {
				c.mirrorFailed(op, err, zap.String("loan_id", loanID), zap.String("payment_id", paymentID))
			}
			return payment, nil
		}
		c.remoteFailed(op, err, zap.String("loan_id", loanID), zap.String("payment_id", paymentID))
	}

	return c.mirror.UpdatePayment(ctx, loanID, paymentID, domain.RoundAmount(req.Amount))
}

// PendingLoans lists mirror records holding data the server has not seen
func (c *Coordinator) PendingLoans(ctx context.Context) ([]*domain.Loan, error) {
	loans, err := c.mirror.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]*domain.Loan, 0)
	for _, loan := range loans {
		if loan.IsPending() {
			pending = append(pending, loan)
		}
	}
	return pending, nil
}

func (c *Coordinator) online(ctx context.Context, op string) bool {
	if c.remote == nil || c.prober == nil {
		return false
	}
	if c.prober.Reachable(ctx) {
		return true
	}
	c.logger.Info("server unreachable, using local mirror", zap.String("operation", op))
	return false
}

func (c *Coordinator) remoteFailed(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("operation", op), zap.Error(customError.WrapRemoteError(op, err)))
	c.logger.Warn("remote call failed, falling back to local mirror", fields...)
}

func (c *Coordinator) mirrorFailed(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("operation", op), zap.Error(err))
	c.logger.Error("server accepted the change but the local mirror could not be updated", fields...)
}
