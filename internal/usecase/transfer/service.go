package transfer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
	"github.com/simaogato/lendflow-backend/internal/usecase/seeder"
)

// Params represents one wallet-to-wallet move
type Params struct {
	FromOwner   uuid.UUID
	FromKind    domain.WalletKind
	ToOwner     uuid.UUID
	ToKind      domain.WalletKind
	Amount      decimal.Decimal
	Type        domain.TransactionType
	Description string
	ReferenceID *uuid.UUID
}

// walletRef orders wallet identities so that two transfers touching the same
// pair of wallets always lock them in the same order, whichever direction
// the money moves.
type walletRef struct {
	owner uuid.UUID
	kind  domain.WalletKind
}

func (a walletRef) less(b walletRef) bool {
	if c := bytes.Compare(a.owner[:], b.owner[:]); c != 0 {
		return c < 0
	}
	return a.kind < b.kind
}

// Apply executes the atomic transfer primitive inside the caller's unit of
// work: debit the source wallet, credit the destination wallet, and append
// both log entries. Wallet rows are locked in deterministic order for the
// duration of the transaction.
//
// Every higher-level money-moving operation is built on Apply (or on Hold /
// Release / Issue below) — nothing else mutates wallet balances.
func Apply(ctx context.Context, tx domain.Tx, p Params) (*domain.TransferResult, error) {
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("transfer amount must be positive: %w", domain.ErrInvalidAmount)
	}

	from := walletRef{owner: p.FromOwner, kind: p.FromKind}
	to := walletRef{owner: p.ToOwner, kind: p.ToKind}
	if from == to {
		return nil, fmt.Errorf("source and destination wallet must differ: %w", domain.ErrInvalidAmount)
	}

	// Lock both rows, lower identity first, to prevent deadlock when two
	// transfers touch the same pair in opposite order
	first, second := from, to
	if second.less(first) {
		first, second = second, first
	}

	firstWallet, err := tx.WalletForUpdate(ctx, first.owner, first.kind)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	secondWallet, err := tx.WalletForUpdate(ctx, second.owner, second.kind)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	fromWallet, toWallet := firstWallet, secondWallet
	if first != from {
		fromWallet, toWallet = secondWallet, firstWallet
	}

	// Balance check happens here, after lock acquisition, so a concurrent
	// debit cannot slip between check and mutation
	if fromWallet.Spendable().LessThan(p.Amount) {
		return nil, fmt.Errorf("wallet %s/%s holds %s, need %s: %w",
			fromWallet.OwnerID, fromWallet.Kind, fromWallet.Spendable(), p.Amount, domain.ErrInsufficientFunds)
	}

	fromWallet.Balance = fromWallet.Balance.Sub(p.Amount)
	if err := tx.UpdateWallet(ctx, fromWallet); err != nil {
		return nil, fmt.Errorf("failed to debit wallet: %w", err)
	}

	toWallet.Balance = toWallet.Balance.Add(p.Amount)
	if err := tx.UpdateWallet(ctx, toWallet); err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}

	now := time.Now()
	debit := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    fromWallet.ID,
		OwnerID:     fromWallet.OwnerID,
		Amount:      p.Amount.Neg(),
		Type:        p.Type,
		Description: p.Description,
		ReferenceID: p.ReferenceID,
		CreatedAt:   now,
	}
	credit := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    toWallet.ID,
		OwnerID:     toWallet.OwnerID,
		Amount:      p.Amount,
		Type:        p.Type,
		Description: p.Description,
		ReferenceID: p.ReferenceID,
		CreatedAt:   now,
	}

	result := &domain.TransferResult{Debit: debit, Credit: credit}
	if err := result.Validate(); err != nil {
		return nil, err
	}

	if err := tx.AppendTransaction(ctx, debit); err != nil {
		return nil, fmt.Errorf("failed to log debit: %w", err)
	}
	if err := tx.AppendTransaction(ctx, credit); err != nil {
		return nil, fmt.Errorf("failed to log credit: %w", err)
	}

	return result, nil
}

// Hold debits a wallet without a crediting counterparty: the referenced
// entity (a pending loan) becomes the holder of record for the escrowed
// amount.
func Hold(ctx context.Context, tx domain.Tx, owner uuid.UUID, kind domain.WalletKind, amount decimal.Decimal, txType domain.TransactionType, description string, referenceID *uuid.UUID) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("hold amount must be positive: %w", domain.ErrInvalidAmount)
	}

	w, err := tx.WalletForUpdate(ctx, owner, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	if w.Spendable().LessThan(amount) {
		return nil, fmt.Errorf("wallet %s/%s holds %s, need %s: %w",
			w.OwnerID, w.Kind, w.Spendable(), amount, domain.ErrInsufficientFunds)
	}

	w.Balance = w.Balance.Sub(amount)
	if err := tx.UpdateWallet(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to debit wallet: %w", err)
	}

	entry := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    w.ID,
		OwnerID:     w.OwnerID,
		Amount:      amount.Neg(),
		Type:        txType,
		Description: description,
		ReferenceID: referenceID,
		CreatedAt:   time.Now(),
	}
	if err := tx.AppendTransaction(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to log hold: %w", err)
	}

	return entry, nil
}

// Release credits a wallet from a previously held escrow amount: loan
// disbursement to the borrower, or refund to the lender on cancellation.
func Release(ctx context.Context, tx domain.Tx, owner uuid.UUID, kind domain.WalletKind, amount decimal.Decimal, txType domain.TransactionType, description string, referenceID *uuid.UUID) (*domain.Transaction, error) {
	return credit(ctx, tx, owner, kind, amount, txType, description, referenceID)
}

// Issue credits a wallet as system issuance — yield, task rewards,
// commissions. There is no debited counterparty; the entry's type marks it
// as new-value creation.
func Issue(ctx context.Context, tx domain.Tx, owner uuid.UUID, kind domain.WalletKind, amount decimal.Decimal, txType domain.TransactionType, description string, referenceID *uuid.UUID) (*domain.Transaction, error) {
	return credit(ctx, tx, owner, kind, amount, txType, description, referenceID)
}

func credit(ctx context.Context, tx domain.Tx, owner uuid.UUID, kind domain.WalletKind, amount decimal.Decimal, txType domain.TransactionType, description string, referenceID *uuid.UUID) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive: %w", domain.ErrInvalidAmount)
	}

	w, err := tx.WalletForUpdate(ctx, owner, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	w.Balance = w.Balance.Add(amount)
	if err := tx.UpdateWallet(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}

	entry := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    w.ID,
		OwnerID:     w.OwnerID,
		Amount:      amount,
		Type:        txType,
		Description: description,
		ReferenceID: referenceID,
		CreatedAt:   time.Now(),
	}
	if err := tx.AppendTransaction(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to log credit: %w", err)
	}

	return entry, nil
}

// TransferInput represents the input for a user-initiated transfer
type TransferInput struct {
	FromUserID  uuid.UUID
	ToUserID    uuid.UUID
	Amount      decimal.Decimal
	Description string
}

// Service exposes the transfer primitive as a standalone operation
type Service struct {
	Store domain.Store
}

// NewService creates a new transfer Service instance
func NewService(store domain.Store) *Service {
	return &Service{Store: store}
}

// Transfer moves funds between the main wallets of two users.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (*domain.TransferResult, error) {
	var result *domain.TransferResult
	err := s.Store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		result, err = Apply(ctx, tx, Params{
			FromOwner:   input.FromUserID,
			FromKind:    domain.WalletKindMain,
			ToOwner:     input.ToUserID,
			ToKind:      domain.WalletKindMain,
			Amount:      input.Amount,
			Type:        domain.TxTypeTransfer,
			Description: input.Description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Withdraw moves funds from a user's main wallet to the system treasury,
// recording the payout leaving the platform.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.TransferResult, error) {
	var result *domain.TransferResult
	err := s.Store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		result, err = Apply(ctx, tx, Params{
			FromOwner:   userID,
			FromKind:    domain.WalletKindMain,
			ToOwner:     seeder.SystemUserID,
			ToKind:      domain.WalletKindMain,
			Amount:      amount,
			Type:        domain.TxTypeWithdrawal,
			Description: "withdrawal",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
