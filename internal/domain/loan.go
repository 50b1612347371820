package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OfflineIDPrefix marks identifiers minted on the device while the server
// was unreachable. Server ids are plain integers, so the two never collide.
const OfflineIDPrefix = "offline_"

func init() {
	// Amounts travel as JSON numbers on the wire and in the local mirror.
	decimal.MarshalJSONWithoutQuotes = true
}

// Loan represents a tracked debt together with the payments applied to it
type Loan struct {
	ID              string          `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	DueDate         Date            `json:"dueDate" db:"due_date"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	Payments        []*Payment      `json:"payments" db:"-"`
	RemainingAmount decimal.Decimal `json:"remainingAmount" db:"-"`
}

// TotalPaid sums every payment recorded against the loan
func (l *Loan) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// Remaining is amount minus total paid. It goes negative when overpaid.
func (l *Loan) Remaining() decimal.Decimal {
	return l.Amount.Sub(l.TotalPaid())
}

// Recalculate refreshes the derived RemainingAmount field and makes sure
// Payments is never nil so it serializes as [].
func (l *Loan) Recalculate() {
	if l.Payments == nil {
		l.Payments = []*Payment{}
	}
	l.RemainingAmount = l.Remaining()
}

// IsOverdue reports whether the due date has passed with money still owed
func (l *Loan) IsOverdue(now time.Time) bool {
	today := NewDateFromTime(now)
	return l.DueDate.Before(today.Time) && l.Remaining().IsPositive()
}

// FindPayment returns the payment with the given id and its index, or -1
func (l *Loan) FindPayment(paymentID string) (*Payment, int) {
	for i, p := range l.Payments {
		if p.ID == paymentID {
			return p, i
		}
	}
	return nil, -1
}

// IsPending reports whether the loan, or any of its payments, exists only
// in the local mirror.
func (l *Loan) IsPending() bool {
	if IsOfflineID(l.ID) {
		return true
	}
	for _, p := range l.Payments {
		if IsOfflineID(p.ID) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without touching the mirror
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	c := *l
	c.Payments = make([]*Payment, 0, len(l.Payments))
	for _, p := range l.Payments {
		pc := *p
		c.Payments = append(c.Payments, &pc)
	}
	return &c
}

// IsOfflineID reports whether id was generated locally
func IsOfflineID(id string) bool {
	return strings.HasPrefix(id, OfflineIDPrefix)
}

// DTOs for requests

type CreateLoanRequest struct {
	Name    string          `json:"name" validate:"required,notblank,max=255"`
	Amount  decimal.Decimal `json:"amount" validate:"money"`
	DueDate Date            `json:"dueDate" validate:"required"`
}

// NewLoan builds the loan a create request describes, without an id
func (r *CreateLoanRequest) NewLoan(now time.Time) *Loan {
	loan := &Loan{
		Name:      strings.TrimSpace(r.Name),
		Amount:    RoundAmount(r.Amount),
		DueDate:   r.DueDate,
		CreatedAt: now.UTC(),
		Payments:  []*Payment{},
	}
	loan.Recalculate()
	return loan
}
