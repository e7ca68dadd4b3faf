package dashboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// DashboardService handles the read paths consumed by dashboards
type DashboardService struct {
	WalletRepo      domain.WalletRepository
	TransactionRepo domain.TransactionRepository
}

// NewDashboardService creates a new DashboardService instance
func NewDashboardService(walletRepo domain.WalletRepository, transactionRepo domain.TransactionRepository) *DashboardService {
	return &DashboardService{
		WalletRepo:      walletRepo,
		TransactionRepo: transactionRepo,
	}
}

// GetWalletBalances returns one entry per wallet kind for the user. Wallets
// are created lazily, so kinds the user never touched are reported with a
// zero balance rather than omitted.
func (s *DashboardService) GetWalletBalances(ctx context.Context, userID uuid.UUID) ([]*domain.Wallet, error) {
	wallets, err := s.WalletRepo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	byKind := make(map[domain.WalletKind]*domain.Wallet, len(wallets))
	for _, w := range wallets {
		byKind[w.Kind] = w
	}

	out := make([]*domain.Wallet, 0, len(domain.WalletKinds))
	for _, kind := range domain.WalletKinds {
		if w, ok := byKind[kind]; ok {
			out = append(out, w)
			continue
		}
		out = append(out, &domain.Wallet{
			OwnerID: userID,
			Kind:    kind,
			Balance: decimal.Zero,
			Frozen:  decimal.Zero,
		})
	}

	return out, nil
}

// GetTransactionHistory returns the user's most recent ledger entries,
// newest first. The limit is clamped to a sane range.
func (s *DashboardService) GetTransactionHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	txs, err := s.TransactionRepo.ListByOwner(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}
