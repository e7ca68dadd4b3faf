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

// walletRepository implements domain.WalletRepository
type walletRepository struct {
	db *DB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *DB) domain.WalletRepository {
	return &walletRepository{db: db}
}

// ListByOwner retrieves all wallets owned by a user
func (r *walletRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Wallet, error) {
	query := `
		SELECT id, owner_id, kind, balance, frozen, last_yield_on, updated_at
		FROM wallets
		WHERE owner_id = $1
		ORDER BY kind
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		var balanceStr, frozenStr string
		var lastYieldOn sql.NullTime

		if err := rows.Scan(&w.ID, &w.OwnerID, &w.Kind, &balanceStr, &frozenStr, &lastYieldOn, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}

		if w.Balance, err = decimal.NewFromString(balanceStr); err != nil {
			return nil, fmt.Errorf("failed to parse balance: %w", err)
		}
		if w.Frozen, err = decimal.NewFromString(frozenStr); err != nil {
			return nil, fmt.Errorf("failed to parse frozen: %w", err)
		}
		if lastYieldOn.Valid {
			w.LastYieldOn = &lastYieldOn.Time
		}
		wallets = append(wallets, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallets: %w", err)
	}
	return wallets, nil
}

// VaultIDsDueForYield returns vault wallets that have not yet accrued yield
// for the given day and whose owner holds at least the given tier.
func (r *walletRepository) VaultIDsDueForYield(ctx context.Context, day time.Time, minTier domain.MembershipTier, limit int) ([]uuid.UUID, error) {
	var qualifying []string
	for _, tier := range domain.MembershipTiers {
		if tier.AtLeast(minTier) {
			qualifying = append(qualifying, string(tier))
		}
	}

	query := `
		SELECT w.id
		FROM wallets w
		JOIN users u ON u.id = w.owner_id
		WHERE w.kind = $1
		  AND (w.last_yield_on IS NULL OR w.last_yield_on < $2)
		  AND u.tier = ANY($3)
		ORDER BY w.id
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query, string(domain.WalletKindVault), day, pq.Array(qualifying), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list vaults due for yield: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vault id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vault ids: %w", err)
	}
	return ids, nil
}
