package repository

import (
	"context"
	"time"

	"github.com/segyhp/loan-tracker/internal/domain"

	"github.com/jmoiron/sqlx"
)

const loanColumns = `id, name, amount, due_date, created_at`

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (name, amount, due_date)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	return r.db.QueryRowxContext(ctx, query,
		loan.Name,
		loan.Amount,
		loan.DueDate,
	).Scan(&loan.ID, &loan.CreatedAt)
}

func (r *loanRepository) GetByID(ctx context.Context, id string) (*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = $1
	`

	var loan domain.Loan
	err := r.db.GetContext(ctx, &loan, query, id)
	if err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) List(ctx context.Context) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		ORDER BY due_date, id
	`

	loans := []*domain.Loan{}
	err := r.db.SelectContext(ctx, &loans, query)
	if err != nil {
		return nil, err
	}

	return loans, nil
}

func (r *loanRepository) GetOverdue(ctx context.Context, asOf time.Time) ([]*domain.Loan, error) {
	query := `
		SELECT l.id, l.name, l.amount, l.due_date, l.created_at
		FROM loans l
		LEFT JOIN payments p ON p.loan_id = l.id
		WHERE l.due_date < $1
		GROUP BY l.id
		HAVING l.amount > COALESCE(SUM(p.amount), 0)
		ORDER BY l.due_date, l.id
	`

	loans := []*domain.Loan{}
	err := r.db.SelectContext(ctx, &loans, query, domain.NewDateFromTime(asOf))
	if err != nil {
		return nil, err
	}

	return loans, nil
}

func (r *loanRepository) Delete(ctx context.Context, id string) (bool, error) {
	query := `DELETE FROM loans WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}
