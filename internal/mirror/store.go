// Package mirror is the on-device copy of the loan collection.
//
// Every operation reads the whole collection, changes an in-memory copy and
// writes the whole collection back under a single key. That is plenty for a
// personal ledger of a few hundred records.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segyhp/loan-tracker/internal/domain"
	customError "github.com/segyhp/loan-tracker/pkg/errors"

	"github.com/shopspring/decimal"
)

// CurrentVersion tags the persisted layout. Version 0 is the bare JSON array
// written before the layout carried a version.
const CurrentVersion = 1

// DefaultKey is the storage key the loan collection lives under
const DefaultKey = "@LoanTracker:loans"

type snapshot struct {
	Version int            `json:"version"`
	Loans   []*domain.Loan `json:"loans"`
}

// Store is the local mirror of the server's loan collection
type Store struct {
	backend Backend
	key     string

	// mu serializes read-modify-write cycles
	mu sync.Mutex
}

func NewStore(backend Backend, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{backend: backend, key: key}
}

// LoadAll returns every loan in the mirror, or an empty slice
func (s *Store) LoadAll(ctx context.Context) ([]*domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx)
}

// SaveAll overwrites the mirror with loans
func (s *Store) SaveAll(ctx context.Context, loans []*domain.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(ctx, loans)
}

// Sync replaces the mirror with the server's view. There is no merge:
// records that only exist locally are dropped.
func (s *Store) Sync(ctx context.Context, serverLoans []*domain.Loan) error {
	return s.SaveAll(ctx, serverLoans)
}

// FindByID returns the loan with id or an error wrapping ErrLoanNotFound
func (s *Store) FindByID(ctx context.Context, id string) (*domain.Loan, error) {
	loans, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if _, loan := find(loans, id); loan != nil {
		return loan, nil
	}
	return nil, customError.WrapLoanNotFound(id)
}

// AppendLoan adds loan to the end of the collection. A record with the same
// id is replaced in place so ids stay unique.
func (s *Store) AppendLoan(ctx context.Context, loan *domain.Loan) error {
	return s.update(ctx, func(loans []*domain.Loan) ([]*domain.Loan, error) {
		stored := loan.Clone()
		stored.Recalculate()
		if i, _ := find(loans, loan.ID); i >= 0 {
			loans[i] = stored
			return loans, nil
		}
		return append(loans, stored), nil
	})
}

// RemoveLoan drops the loan and its embedded payments. Removing an unknown
// id is not an error; removed reports whether anything changed.
func (s *Store) RemoveLoan(ctx context.Context, id string) (removed bool, err error) {
	err = s.update(ctx, func(loans []*domain.Loan) ([]*domain.Loan, error) {
		i, _ := find(loans, id)
		if i < 0 {
			return nil, nil
		}
		removed = true
		return append(loans[:i], loans[i+1:]...), nil
	})
	return removed, err
}

// AppendPayment adds payment to the loan's payments, creating the slice if
// the loan has none yet.
func (s *Store) AppendPayment(ctx context.Context, loanID string, payment *domain.Payment) error {
	return s.update(ctx, func(loans []*domain.Loan) ([]*domain.Loan, error) {
		_, loan := find(loans, loanID)
		if loan == nil {
			return nil, customError.WrapLoanNotFound(loanID)
		}
		if loan.Payments == nil {
			loan.Payments = []*domain.Payment{}
		}
		stored := *payment
		if existing, i := loan.FindPayment(stored.ID); existing != nil {
			loan.Payments[i] = &stored
		} else {
			loan.Payments = append(loan.Payments, &stored)
		}
		loan.Recalculate()
		return loans, nil
	})
}

// UpdatePayment changes the amount of one payment and returns the result
func (s *Store) UpdatePayment(ctx context.Context, loanID, paymentID string, amount decimal.Decimal) (*domain.Payment, error) {
	var updated domain.Payment
	err := s.update(ctx, func(loans []*domain.Loan) ([]*domain.Loan, error) {
		_, loan := find(loans, loanID)
		if loan == nil {
			return nil, customError.WrapLoanNotFound(loanID)
		}
		payment, _ := loan.FindPayment(paymentID)
		if payment == nil {
			return nil, customError.WrapPaymentNotFound(loanID, paymentID)
		}
		payment.Amount = amount
		loan.Recalculate()
		updated = *payment
		return loans, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// RemovePayment drops one payment. Unknown loans or payments are a no-op.
func (s *Store) RemovePayment(ctx context.Context, loanID, paymentID string) (removed bool, err error) {
	err = s.update(ctx, func(loans []*domain.Loan) ([]*domain.Loan, error) {
		_, loan := find(loans, loanID)
		if loan == nil {
			return nil, nil
		}
		_, i := loan.FindPayment(paymentID)
		if i < 0 {
			return nil, nil
		}
		loan.Payments = append(loan.Payments[:i], loan.Payments[i+1:]...)
		loan.Recalculate()
		removed = true
		return loans, nil
	})
	return removed, err
}

// update runs one read-modify-write cycle. fn returning a nil slice and no
// error means "nothing changed" and skips the write.
func (s *Store) update(ctx context.Context, fn func([]*domain.Loan) ([]*domain.Loan, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loans, err := s.load(ctx)
	if err != nil {
		return err
	}

	next, err := fn(loans)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	return s.save(ctx, next)
}

func (s *Store) load(ctx context.Context) ([]*domain.Loan, error) {
	data, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, customError.WrapStorageError(err)
	}
	if !ok || len(bytes.TrimSpace(data)) == 0 {
		return []*domain.Loan{}, nil
	}

	loans, err := decode(data)
	if err != nil {
		return nil, customError.WrapStorageError(err)
	}
	for _, loan := range loans {
		loan.Recalculate()
	}
	return loans, nil
}

func (s *Store) save(ctx context.Context, loans []*domain.Loan) error {
	if loans == nil {
		loans = []*domain.Loan{}
	}
	for _, loan := range loans {
		loan.Recalculate()
	}

	data, err := json.Marshal(snapshot{Version: CurrentVersion, Loans: loans})
	if err != nil {
		return customError.WrapStorageError(fmt.Errorf("encode mirror: %w", err))
	}
	if err := s.backend.Set(ctx, s.key, data); err != nil {
		return customError.WrapStorageError(err)
	}
	return nil
}

func decode(data []byte) ([]*domain.Loan, error) {
	trimmed := bytes.TrimSpace(data)

	if trimmed[0] == '[' {
		var loans []*domain.Loan
		if err := json.Unmarshal(trimmed, &loans); err != nil {
			return nil, fmt.Errorf("decode unversioned mirror: %w", err)
		}
		return loans, nil
	}

	var snap snapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return nil, fmt.Errorf("decode mirror: %w", err)
	}
	if snap.Version > CurrentVersion {
		return nil, fmt.Errorf("mirror version %d is newer than supported version %d", snap.Version, CurrentVersion)
	}
	if snap.Loans == nil {
		snap.Loans = []*domain.Loan{}
	}
	return snap.Loans, nil
}

func find(loans []*domain.Loan, id string) (int, *domain.Loan) {
	for i, loan := range loans {
		if loan.ID == id {
			return i, loan
		}
	}
	return -1, nil
}
