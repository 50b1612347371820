package repository

import (
	"context"

	"github.com/segyhp/loan-tracker/internal/domain"

	"github.com/jmoiron/sqlx"
)

// Installment columns are nullable; one-off payments read back as zero values.
const paymentColumns = `
	id, loan_id, amount, payment_date, is_installment,
	COALESCE(installment_number, 0) AS installment_number,
	COALESCE(total_installments, 0) AS total_installments,
	COALESCE(frequency, '') AS frequency,
	COALESCE(plan_id, '') AS plan_id`

const insertPayment = `
	INSERT INTO payments (loan_id, amount, payment_date, is_installment, installment_number, total_installments, frequency, plan_id)
	VALUES ($1, $2, $3, $4, NULLIF($5, 0), NULLIF($6, 0), NULLIF($7, ''), NULLIF($8, ''))
	RETURNING id
`

type paymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	return insertPaymentWith(ctx, r.db, payment)
}

func insertPaymentWith(ctx context.Context, q sqlx.QueryerContext, payment *domain.Payment) error {
	return q.QueryRowxContext(ctx, insertPayment,
		payment.LoanID,
		payment.Amount,
		payment.PaymentDate,
		payment.IsInstallment,
		payment.InstallmentNumber,
		payment.TotalInstallments,
		string(payment.Frequency),
		payment.PlanID,
	).Scan(&payment.ID)
}

func (r *paymentRepository) GetByID(ctx context.Context, loanID, paymentID string) (*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE loan_id = $1 AND id = $2
	`

	var payment domain.Payment
	err := r.db.GetContext(ctx, &payment, query, loanID, paymentID)
	if err != nil {
		return nil, err
	}

	return &payment, nil
}

func (r *paymentRepository) GetByLoanID(ctx context.Context, loanID string) ([]*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE loan_id = $1
		ORDER BY payment_date, id
	`

	payments := []*domain.Payment{}
	err := r.db.SelectContext(ctx, &payments, query, loanID)
	if err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *paymentRepository) GetByLoanIDs(ctx context.Context, loanIDs []string) (map[string][]*domain.Payment, error) {
	byLoan := make(map[string][]*domain.Payment, len(loanIDs))
	if len(loanIDs) == 0 {
		return byLoan, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+paymentColumns+`
		FROM payments
		WHERE loan_id IN (?)
		ORDER BY payment_date, id
	`, loanIDs)
	if err != nil {
		return nil, err
	}

	var payments []*domain.Payment
	if err := r.db.SelectContext(ctx, &payments, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	for _, p := range payments {
		byLoan[p.LoanID] = append(byLoan[p.LoanID], p)
	}
	return byLoan, nil
}

func (r *paymentRepository) UpdateAmount(ctx context.Context, payment *domain.Payment) (bool, error) {
	query := `
		UPDATE payments
		SET amount = $3
		WHERE loan_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query, payment.LoanID, payment.ID, payment.Amount)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (r *paymentRepository) Delete(ctx context.Context, loanID, paymentID string) (bool, error) {
	query := `DELETE FROM payments WHERE loan_id = $1 AND id = $2`

	result, err := r.db.ExecContext(ctx, query, loanID, paymentID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (r *paymentRepository) ReplaceInstallments(ctx context.Context, loanID string, payments []*domain.Payment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM payments WHERE loan_id = $1 AND is_installment`, loanID)
	if err != nil {
		return err
	}

	for _, payment := range payments {
		payment.LoanID = loanID
		if err := insertPaymentWith(ctx, tx, payment); err != nil {
			return err
		}
	}

	return tx.Commit()
}
