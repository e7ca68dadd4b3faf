package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/lendflow-backend/internal/adapter/repository/memory"
	"github.com/simaogato/lendflow-backend/internal/domain"
)

func TestTransfer_Conservation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store)

	alice := uuid.New()
	bob := uuid.New()
	store.AddWallet(alice, domain.WalletKindMain, decimal.NewFromInt(500))
	store.AddWallet(bob, domain.WalletKindMain, decimal.NewFromInt(100))

	result, err := service.Transfer(ctx, TransferInput{
		FromUserID:  alice,
		ToUserID:    bob,
		Amount:      decimal.NewFromInt(120),
		Description: "rent split",
	})
	require.NoError(t, err)

	// Balance deltas across the wallets touched must sum to zero
	assert.True(t, store.Balance(alice, domain.WalletKindMain).Equal(decimal.NewFromInt(380)))
	assert.True(t, store.Balance(bob, domain.WalletKindMain).Equal(decimal.NewFromInt(220)))

	// Paired log entries, equal and opposite
	require.NoError(t, result.Validate())
	assert.True(t, result.Debit.Amount.Equal(decimal.NewFromInt(-120)))
	assert.True(t, result.Credit.Amount.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, domain.TxTypeTransfer, result.Debit.Type)
	assert.Len(t, store.Transactions(), 2)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store)

	alice := uuid.New()
	bob := uuid.New()
	store.AddWallet(alice, domain.WalletKindMain, decimal.NewFromInt(50))

	_, err := service.Transfer(ctx, TransferInput{
		FromUserID: alice,
		ToUserID:   bob,
		Amount:     decimal.NewFromInt(120),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Nothing moved, nothing logged
	assert.True(t, store.Balance(alice, domain.WalletKindMain).Equal(decimal.NewFromInt(50)))
	assert.Empty(t, store.Transactions())
}

func TestTransfer_LazyDestinationCreation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store)

	alice := uuid.New()
	bob := uuid.New()
	store.AddWallet(alice, domain.WalletKindMain, decimal.NewFromInt(200))

	// Bob has no wallets at all yet
	_, err := service.Transfer(ctx, TransferInput{
		FromUserID: alice,
		ToUserID:   bob,
		Amount:     decimal.NewFromInt(75),
	})
	require.NoError(t, err)

	assert.True(t, store.Balance(bob, domain.WalletKindMain).Equal(decimal.NewFromInt(75)))
}

func TestTransfer_InvalidAmounts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store)

	alice := uuid.New()
	bob := uuid.New()
	store.AddWallet(alice, domain.WalletKindMain, decimal.NewFromInt(200))

	_, err := service.Transfer(ctx, TransferInput{FromUserID: alice, ToUserID: bob, Amount: decimal.Zero})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = service.Transfer(ctx, TransferInput{FromUserID: alice, ToUserID: bob, Amount: decimal.NewFromInt(-5)})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// Same wallet on both sides is rejected
	_, err = service.Transfer(ctx, TransferInput{FromUserID: alice, ToUserID: alice, Amount: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

// A failure after the debit has applied must roll the whole unit of work
// back: the ledger never holds a debit without its credit.
func TestTransfer_RollbackOnMidTransferFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store)

	alice := uuid.New()
	bob := uuid.New()
	store.AddWallet(alice, domain.WalletKindMain, decimal.NewFromInt(500))
	store.AddWallet(bob, domain.WalletKindMain, decimal.NewFromInt(0))

	boom := errors.New("connection reset")
	store.FailOn["AppendTransaction"] = boom

	_, err := service.Transfer(ctx, TransferInput{
		FromUserID: alice,
		ToUserID:   bob,
		Amount:     decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, boom)

	// Both balances reverted; no partial log entries
	assert.True(t, store.Balance(alice, domain.WalletKindMain).Equal(decimal.NewFromInt(500)))
	assert.True(t, store.Balance(bob, domain.WalletKindMain).Equal(decimal.Zero))
	assert.Empty(t, store.Transactions())
}

func TestTransfer_VaultFrozenFundsNotSpendable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	alice := uuid.New()
	bob := uuid.New()
	vault := store.AddWallet(alice, domain.WalletKindVault, decimal.NewFromInt(1000))

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		w, err := tx.WalletForUpdate(ctx, alice, domain.WalletKindVault)
		if err != nil {
			return err
		}
		w.Frozen = decimal.NewFromInt(800)
		return tx.UpdateWallet(ctx, w)
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := Apply(ctx, tx, Params{
			FromOwner: alice,
			FromKind:  domain.WalletKindVault,
			ToOwner:   bob,
			ToKind:    domain.WalletKindMain,
			Amount:    decimal.NewFromInt(300),
			Type:      domain.TxTypeTransfer,
		})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, store.Balance(alice, domain.WalletKindVault).Equal(vault.Balance))
}

func TestIssue_CreditsWithoutCounterparty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	alice := uuid.New()
	store.AddWallet(alice, domain.WalletKindRoyalty, decimal.NewFromInt(10))

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := Issue(ctx, tx, alice, domain.WalletKindRoyalty, decimal.NewFromInt(40),
			domain.TxTypeCommission, "override", nil)
		return err
	})
	require.NoError(t, err)

	assert.True(t, store.Balance(alice, domain.WalletKindRoyalty).Equal(decimal.NewFromInt(50)))

	txs := store.Transactions()
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, domain.TxTypeCommission, txs[0].Type)
}

func TestHold_DebitsWithoutCounterparty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	alice := uuid.New()
	store.AddWallet(alice, domain.WalletKindMain, decimal.NewFromInt(1000))
	loanID := uuid.New()

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := Hold(ctx, tx, alice, domain.WalletKindMain, decimal.NewFromInt(1000),
			domain.TxTypeLoanEscrow, "escrow", &loanID)
		return err
	})
	require.NoError(t, err)

	assert.True(t, store.Balance(alice, domain.WalletKindMain).Equal(decimal.Zero))

	txs := store.Transactions()
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(-1000)))
	require.NotNil(t, txs[0].ReferenceID)
	assert.Equal(t, loanID, *txs[0].ReferenceID)
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store)

	alice := uuid.New()
	store.AddWallet(alice, domain.WalletKindMain, decimal.NewFromInt(300))

	result, err := service.Withdraw(ctx, alice, decimal.NewFromInt(200))
	require.NoError(t, err)

	assert.True(t, store.Balance(alice, domain.WalletKindMain).Equal(decimal.NewFromInt(100)))
	assert.Equal(t, domain.TxTypeWithdrawal, result.Debit.Type)
}
