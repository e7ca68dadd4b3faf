package yield

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/lendflow-backend/internal/adapter/repository/memory"
	"github.com/simaogato/lendflow-backend/internal/domain"
)

func addVaultUser(store *memory.Store, tier domain.MembershipTier, balance int64) uuid.UUID {
	id := uuid.New()
	store.AddUser(&domain.User{ID: id, Username: id.String()[:8], Tier: tier, CreatedAt: time.Now()})
	store.AddWallet(id, domain.WalletKindVault, decimal.NewFromInt(balance))
	return id
}

func TestRun_CreditsDailyYield(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, store, DefaultConfig(), zerolog.Nop())

	// 5,000 at 1% daily accrues 50
	owner := addVaultUser(store, domain.TierPro, 5000)

	report, err := service.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.WalletsProcessed)
	assert.True(t, report.TotalCredited.Equal(decimal.NewFromInt(50)))
	assert.True(t, store.Balance(owner, domain.WalletKindVault).Equal(decimal.NewFromInt(5050)))

	txs := store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxTypeYield, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(50)))
}

// Re-running on the same day is a no-op: the last-yield date stamped in the
// first run excludes the wallet from the second.
func TestRun_SameDayRerunDoesNotDoubleCredit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, store, DefaultConfig(), zerolog.Nop())

	owner := addVaultUser(store, domain.TierPro, 5000)

	first, err := service.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.WalletsProcessed)

	second, err := service.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.WalletsProcessed)
	assert.True(t, second.TotalCredited.IsZero())

	assert.True(t, store.Balance(owner, domain.WalletKindVault).Equal(decimal.NewFromInt(5050)))
}

func TestRun_AccruesAgainOnNextDay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, store, DefaultConfig(), zerolog.Nop())

	owner := addVaultUser(store, domain.TierPro, 1000)

	// Last accrual was yesterday
	w := store.Wallet(owner, domain.WalletKindVault)
	yesterday := time.Now().Add(-24 * time.Hour)
	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		return tx.SetWalletYieldDate(ctx, w.ID, yesterday)
	})
	require.NoError(t, err)

	report, err := service.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.WalletsProcessed)
	assert.True(t, store.Balance(owner, domain.WalletKindVault).Equal(decimal.NewFromInt(1010)))
}

func TestRun_SkipsBasicTierVaults(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, store, DefaultConfig(), zerolog.Nop())

	basic := addVaultUser(store, domain.TierBasic, 5000)
	pro := addVaultUser(store, domain.TierPro, 5000)
	elite := addVaultUser(store, domain.TierElite, 5000)

	report, err := service.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.WalletsProcessed)
	assert.True(t, store.Balance(basic, domain.WalletKindVault).Equal(decimal.NewFromInt(5000)))
	assert.True(t, store.Balance(pro, domain.WalletKindVault).Equal(decimal.NewFromInt(5050)))
	assert.True(t, store.Balance(elite, domain.WalletKindVault).Equal(decimal.NewFromInt(5050)))
}

// Frozen collateral still earns: yield accrues on the full vault balance.
func TestRun_AccruesOnFrozenBalance(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, store, DefaultConfig(), zerolog.Nop())

	owner := addVaultUser(store, domain.TierElite, 2000)
	w := store.Wallet(owner, domain.WalletKindVault)
	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		locked, err := tx.ClaimVaultWallet(ctx, w.ID)
		if err != nil {
			return err
		}
		locked.Frozen = decimal.NewFromInt(1500)
		return tx.UpdateWallet(ctx, locked)
	})
	require.NoError(t, err)

	report, err := service.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.TotalCredited.Equal(decimal.NewFromInt(20)))
	assert.True(t, store.Balance(owner, domain.WalletKindVault).Equal(decimal.NewFromInt(2020)))
}

func TestRun_EmptyVaultStampedButNotCredited(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, store, DefaultConfig(), zerolog.Nop())

	owner := addVaultUser(store, domain.TierPro, 0)

	report, err := service.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.WalletsProcessed)
	assert.True(t, report.TotalCredited.IsZero())
	assert.Empty(t, store.Transactions())

	// Stamped anyway, so the next same-day run skips it
	w := store.Wallet(owner, domain.WalletKindVault)
	require.NotNil(t, w.LastYieldOn)
}

func TestRun_SkipsWhenAlreadyRunning(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, store, DefaultConfig(), zerolog.Nop())

	require.True(t, service.mu.TryLock())
	defer service.mu.Unlock()

	report, err := service.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
}
