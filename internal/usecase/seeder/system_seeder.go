package seeder

import (
	"context"

	"github.com/google/uuid"

	"github.com/simaogato/lendflow-backend/internal/domain"
)

// SystemUserID is the fixed identity owning the platform's system wallets:
// the treasury that collects fees, membership purchases, and withdrawals.
// System-issuance credits (yield, rewards, commissions) are created against
// it rather than debited from it.
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// SystemSeeder ensures the system user and its wallets exist
type SystemSeeder struct {
	store domain.Store
}

// NewSystemSeeder creates a new SystemSeeder instance
func NewSystemSeeder(store domain.Store) *SystemSeeder {
	return &SystemSeeder{store: store}
}

// Seed ensures the system user and treasury wallet exist in the database.
// Safe to run on every startup.
func (s *SystemSeeder) Seed(ctx context.Context) error {
	return s.store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := tx.EnsureUser(ctx, &domain.User{
			ID:       SystemUserID,
			Username: "system",
			Tier:     domain.TierBasic,
		}); err != nil {
			return err
		}

		// Treasury is the system user's main wallet, created lazily like
		// every other wallet
		if _, err := tx.WalletForUpdate(ctx, SystemUserID, domain.WalletKindMain); err != nil {
			return err
		}

		return nil
	})
}
