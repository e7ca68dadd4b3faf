package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
)

// loanRepository implements domain.LoanRepository
type loanRepository struct {
	db *DB
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *DB) domain.LoanRepository {
	return &loanRepository{db: db}
}

func scanLoanRows(rows *sql.Rows) (*domain.Loan, error) {
	var l domain.Loan
	var borrowerID sql.NullString
	var principalStr, rateStr, interestStr, feeStr, totalStr string
	var acceptedAt, dueAt, repaidAt sql.NullTime

	err := rows.Scan(
		&l.ID, &l.LenderID, &borrowerID,
		&principalStr, &rateStr, &interestStr, &feeStr, &totalStr,
		&l.TermDays, &l.Status, &l.CreatedAt, &acceptedAt, &dueAt, &repaidAt,
	)
	if err != nil {
		return nil, err
	}

	if borrowerID.Valid {
		parsed, err := uuid.Parse(borrowerID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse borrower_id: %w", err)
		}
		l.BorrowerID = &parsed
	}

	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&l.Principal, principalStr},
		{&l.InterestRate, rateStr},
		{&l.InterestAmount, interestStr},
		{&l.ProcessingFee, feeStr},
		{&l.TotalRepayment, totalStr},
	} {
		d, err := decimal.NewFromString(field.src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse loan amount: %w", err)
		}
		*field.dst = d
	}

	if acceptedAt.Valid {
		l.AcceptedAt = &acceptedAt.Time
	}
	if dueAt.Valid {
		l.DueAt = &dueAt.Time
	}
	if repaidAt.Valid {
		l.RepaidAt = &repaidAt.Time
	}
	return &l, nil
}

// GetByID retrieves a loan by its ID
func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	l, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return l, nil
}

// ListOpenOffers retrieves pending offers open for acceptance, oldest first
func (r *loanRepository) ListOpenOffers(ctx context.Context, limit int) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE status = $1 AND borrower_id IS NULL
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, string(domain.LoanStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open offers: %w", err)
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		l, err := scanLoanRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loans: %w", err)
	}
	return loans, nil
}

// ListOverdueIDs retrieves the IDs of active loans past their due date,
// most overdue first. IDs only: the settlement job re-reads and locks each
// loan inside its own transaction.
func (r *loanRepository) ListOverdueIDs(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM loans
		WHERE status = $1 AND due_at < $2
		ORDER BY due_at
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, string(domain.LoanStatusActive), asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue loans: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan loan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loan ids: %w", err)
	}
	return ids, nil
}
