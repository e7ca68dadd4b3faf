package yield

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
	"github.com/simaogato/lendflow-backend/internal/usecase/transfer"
)

const defaultBatchSize = 1000

// Config holds the yield accrual policy
type Config struct {
	DailyRate decimal.Decimal       // percentage of the vault balance, e.g. 1
	MinTier   domain.MembershipTier // lowest tier whose vaults accrue yield
}

// DefaultConfig returns the standard accrual policy: 1% daily for PRO and
// above.
func DefaultConfig() Config {
	return Config{
		DailyRate: decimal.NewFromInt(1),
		MinTier:   domain.TierPro,
	}
}

// Report aggregates the outcome of one accrual run
type Report struct {
	WalletsProcessed int
	FailedCount      int
	TotalCredited    decimal.Decimal
	Skipped          bool
}

// Service credits daily yield to qualifying vault wallets as system
// issuance: there is no debited counterparty, the credit is new-value
// creation. Yield accrues on the total vault balance including frozen
// collateral.
type Service struct {
	Store     domain.Store
	Wallets   domain.WalletRepository
	Cfg       Config
	Log       zerolog.Logger
	BatchSize int

	mu sync.Mutex // named job lock, non-blocking acquisition
}

// NewService creates a new yield Service instance
func NewService(store domain.Store, wallets domain.WalletRepository, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		Store:     store,
		Wallets:   wallets,
		Cfg:       cfg,
		Log:       log,
		BatchSize: defaultBatchSize,
	}
}

// Run credits yield for the current calendar day. Idempotent per day: each
// wallet's last-yield date is re-checked under its row lock, so re-running
// the job cannot double-credit.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	if !s.mu.TryLock() {
		s.Log.Info().Msg("yield accrual already in progress, skipping")
		return &Report{Skipped: true, TotalCredited: decimal.Zero}, nil
	}
	defer s.mu.Unlock()

	report := &Report{TotalCredited: decimal.Zero}
	day := time.Now().Truncate(24 * time.Hour)

	ids, err := s.Wallets.VaultIDsDueForYield(ctx, day, s.Cfg.MinTier, s.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list vaults due for yield: %w", err)
	}

	for _, id := range ids {
		if err := s.accrueOne(ctx, id, day, report); err != nil {
			report.FailedCount++
			s.Log.Error().Err(err).Str("wallet_id", id.String()).Msg("failed to accrue yield")
		}
	}

	s.Log.Info().
		Int("wallets", report.WalletsProcessed).
		Int("failed", report.FailedCount).
		Str("total_credited", report.TotalCredited.String()).
		Msg("yield accrual run complete")

	return report, nil
}

// accrueOne credits a single vault in its own transaction.
func (s *Service) accrueOne(ctx context.Context, id uuid.UUID, day time.Time, report *Report) error {
	return s.Store.WithinTx(ctx, func(tx domain.Tx) error {
		w, err := tx.ClaimVaultWallet(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrWalletNotFound) {
				// Locked elsewhere or gone; skip
				return nil
			}
			return err
		}

		// Re-check under the lock so a racing run cannot double-credit
		if w.LastYieldOn != nil && !w.LastYieldOn.Truncate(24*time.Hour).Before(day) {
			return nil
		}

		amount := domain.RoundMoney(w.Balance.Mul(s.Cfg.DailyRate).Div(decimal.NewFromInt(100)))
		if amount.IsPositive() {
			if _, err := transfer.Issue(ctx, tx, w.OwnerID, domain.WalletKindVault, amount,
				domain.TxTypeYield, "daily vault yield", nil); err != nil {
				return err
			}
		}

		if err := tx.SetWalletYieldDate(ctx, w.ID, day); err != nil {
			return err
		}

		report.WalletsProcessed++
		report.TotalCredited = report.TotalCredited.Add(amount)
		return nil
	})
}
