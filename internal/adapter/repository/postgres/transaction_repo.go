package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
)

// transactionRepository implements domain.TransactionRepository
type transactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

// ListByOwner retrieves the user's most recent ledger entries, newest first
func (r *transactionRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT id, wallet_id, owner_id, amount, type, description, reference_id, created_at
		FROM transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var entries []*domain.Transaction
	for rows.Next() {
		var entry domain.Transaction
		var amountStr string
		var referenceID sql.NullString

		if err := rows.Scan(&entry.ID, &entry.WalletID, &entry.OwnerID, &amountStr,
			&entry.Type, &entry.Description, &referenceID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		if entry.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		if referenceID.Valid {
			parsed, err := uuid.Parse(referenceID.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse reference_id: %w", err)
			}
			entry.ReferenceID = &parsed
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return entries, nil
}

// CountByOwnerAndTypes counts the user's entries of the given types created
// at or after the cutoff. Used by the rate limiter's sliding window.
func (r *transactionRepository) CountByOwnerAndTypes(ctx context.Context, ownerID uuid.UUID, types []domain.TransactionType, since time.Time) (int, error) {
	typeStrs := make([]string, len(types))
	for i, tt := range types {
		typeStrs[i] = string(tt)
	}

	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE owner_id = $1 AND type = ANY($2) AND created_at >= $3
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, ownerID, pq.Array(typeStrs), since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
