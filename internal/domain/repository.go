package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the unit-of-work boundary for all ledger mutations. Every
// money-moving operation runs inside exactly one WithinTx call: either all
// of its wallet updates, loan transitions, and log entries apply, or none do.
type Store interface {
	// WithinTx runs fn inside a single database transaction. If fn returns
	// an error the transaction is rolled back and the error is returned.
	// Lock acquisition that exceeds the configured timeout surfaces as
	// ErrBusy.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the row-locked mutation operations available inside a unit of
// work. Only the transfer primitive and loan-state transition functions may
// mutate wallet balances through it.
type Tx interface {
	// WalletForUpdate locks the (owner, kind) wallet row for the duration of
	// the transaction, creating the wallet with a zero balance if it does
	// not exist yet.
	WalletForUpdate(ctx context.Context, ownerID uuid.UUID, kind WalletKind) (*Wallet, error)

	// UpdateWallet persists the wallet's balance and frozen amount. The row
	// must already be locked via WalletForUpdate or ClaimVaultWallet.
	UpdateWallet(ctx context.Context, w *Wallet) error

	// SetWalletYieldDate stamps the calendar day of the last yield credit.
	SetWalletYieldDate(ctx context.Context, walletID uuid.UUID, day time.Time) error

	// AppendTransaction adds an immutable entry to the transaction log.
	AppendTransaction(ctx context.Context, t *Transaction) error

	// CreateLoan inserts a new loan record.
	CreateLoan(ctx context.Context, l *Loan) error

	// LoanForUpdate locks the loan row, blocking until the lock is acquired
	// or the lock timeout elapses (ErrBusy). Returns ErrLoanNotFound if no
	// such loan exists.
	LoanForUpdate(ctx context.Context, id uuid.UUID) (*Loan, error)

	// ClaimLoan locks the loan row with skip-locked semantics: if another
	// operation already holds the row, it returns ErrLoanNotFound instead
	// of blocking. Used by the settlement batch.
	ClaimLoan(ctx context.Context, id uuid.UUID) (*Loan, error)

	// UpdateLoan persists loan mutations. The row must already be locked.
	UpdateLoan(ctx context.Context, l *Loan) error

	// ClaimVaultWallet locks a vault wallet row with skip-locked semantics.
	// Returns ErrWalletNotFound if the row is missing or already locked.
	ClaimVaultWallet(ctx context.Context, id uuid.UUID) (*Wallet, error)

	// GetUser retrieves a user by ID. Returns ErrUserNotFound if missing.
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)

	// EnsureUser inserts the user if it does not already exist.
	EnsureUser(ctx context.Context, u *User) error

	// UpdateUserTier changes a user's membership tier.
	UpdateUserTier(ctx context.Context, id uuid.UUID, tier MembershipTier) error

	// CreateCommissionEvent records an upline payout.
	CreateCommissionEvent(ctx context.Context, ev *CommissionEvent) error

	// TaskForUpdate locks an earning task row. Returns ErrTaskNotFound if
	// no such task exists.
	TaskForUpdate(ctx context.Context, id uuid.UUID) (*EarnTask, error)

	// UpdateTask persists task mutations. The row must already be locked.
	UpdateTask(ctx context.Context, t *EarnTask) error
}

// WalletRepository defines the read-only interface for wallet queries
type WalletRepository interface {
	// ListByOwner retrieves all wallets belonging to a user.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Wallet, error)

	// VaultIDsDueForYield lists vault wallets that have not yet been
	// credited for the given calendar day and whose owner holds at least
	// minTier membership.
	VaultIDsDueForYield(ctx context.Context, day time.Time, minTier MembershipTier, limit int) ([]uuid.UUID, error)
}

// TransactionRepository defines the read-only interface for the transaction log
type TransactionRepository interface {
	// ListByOwner retrieves the most recent transactions for a user,
	// newest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*Transaction, error)

	// CountByOwnerAndTypes counts log entries of the given types created by
	// the user since the given instant. Used by the rate limiter's
	// sliding-window check.
	CountByOwnerAndTypes(ctx context.Context, ownerID uuid.UUID, types []TransactionType, since time.Time) (int, error)
}

// LoanRepository defines the read-only interface for loan queries
type LoanRepository interface {
	// GetByID retrieves a loan by ID. Returns ErrLoanNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*Loan, error)

	// ListOpenOffers retrieves pending loans with no borrower, oldest first.
	ListOpenOffers(ctx context.Context, limit int) ([]*Loan, error)

	// ListOverdueIDs retrieves the IDs of active loans whose due date has
	// passed as of the given instant.
	ListOverdueIDs(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error)
}
