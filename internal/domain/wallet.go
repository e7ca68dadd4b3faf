package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletKind represents the kind of wallet in the system
type WalletKind string

const (
	WalletKindMain    WalletKind = "MAIN"
	WalletKindTask    WalletKind = "TASK"
	WalletKindRoyalty WalletKind = "ROYALTY"
	WalletKindVault   WalletKind = "VAULT"
)

// WalletKinds lists every valid wallet kind, in display order.
var WalletKinds = []WalletKind{WalletKindMain, WalletKindTask, WalletKindRoyalty, WalletKindVault}

// Valid reports whether the kind is one of the known wallet kinds.
func (k WalletKind) Valid() bool {
	switch k {
	case WalletKindMain, WalletKindTask, WalletKindRoyalty, WalletKindVault:
		return true
	}
	return false
}

// Wallet represents a balance bucket owned by a user, identified by
// (owner, kind). Wallets are created lazily on first use and never deleted.
type Wallet struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Kind        WalletKind
	Balance     decimal.Decimal
	Frozen      decimal.Decimal // collateralized sub-amount, vault wallets only
	LastYieldOn *time.Time      // calendar day of the last yield credit, vault wallets only
	UpdatedAt   time.Time
}

// Spendable returns the portion of the balance not committed as collateral.
func (w *Wallet) Spendable() decimal.Decimal {
	return w.Balance.Sub(w.Frozen)
}

// Validate ensures the wallet adheres to domain rules
// Returns an error if validation fails
func (w *Wallet) Validate() error {
	if !w.Kind.Valid() {
		return errors.New("wallet kind must be MAIN, TASK, ROYALTY, or VAULT")
	}

	if w.Balance.IsNegative() {
		return errors.New("wallet balance cannot be negative")
	}

	if w.Frozen.IsNegative() {
		return errors.New("wallet frozen amount cannot be negative")
	}

	// Frozen funds never exceed the balance they are carved out of
	if w.Frozen.GreaterThan(w.Balance) {
		return errors.New("wallet frozen amount cannot exceed balance")
	}

	// Only vault wallets carry collateral
	if w.Kind != WalletKindVault && !w.Frozen.IsZero() {
		return errors.New("only vault wallets can have frozen funds")
	}

	return nil
}
