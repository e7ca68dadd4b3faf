package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
)

// Postgres error codes surfaced as ErrBusy: the caller should retry rather
// than treat the failure as permanent.
const (
	pqLockNotAvailable = "55P03"
	pqDeadlockDetected = "40P01"
)

// Store implements domain.Store over a Postgres connection. Every unit of
// work runs in one database transaction with a bounded lock_timeout, so a
// request that blocks on a contended row fails fast instead of queueing.
type Store struct {
	db          *DB
	lockTimeout time.Duration
}

// NewStore creates a new Store instance
func NewStore(db *DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

// WithinTx implements domain.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if s.lockTimeout > 0 {
		timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := dbTx.ExecContext(ctx, timeout); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	if err := fn(&storeTx{tx: dbTx}); err != nil {
		return mapLockError(err)
	}

	if err := dbTx.Commit(); err != nil {
		return mapLockError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// mapLockError translates lock timeouts and deadlocks into ErrBusy.
func mapLockError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqLockNotAvailable, pqDeadlockDetected:
			return fmt.Errorf("%v: %w", err, domain.ErrBusy)
		}
	}
	return err
}

// storeTx implements domain.Tx against one open database transaction.
type storeTx struct {
	tx *sql.Tx
}

const walletColumns = "id, owner_id, kind, balance, frozen, last_yield_on, updated_at"

func scanWallet(row *sql.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	var balanceStr, frozenStr string
	var lastYieldOn sql.NullTime

	err := row.Scan(&w.ID, &w.OwnerID, &w.Kind, &balanceStr, &frozenStr, &lastYieldOn, &w.UpdatedAt)
	if err != nil {
		return nil, err
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
	return &w, nil
}

// WalletForUpdate locks the (owner, kind) wallet for the rest of the
// transaction, creating it with a zero balance if it does not exist yet.
// The insert races are absorbed by ON CONFLICT DO NOTHING, so exactly one
// row ever exists per (owner, kind).
func (t *storeTx) WalletForUpdate(ctx context.Context, ownerID uuid.UUID, kind domain.WalletKind) (*domain.Wallet, error) {
	insertQuery := `
		INSERT INTO wallets (id, owner_id, kind, balance, frozen)
		VALUES ($1, $2, $3, 0, 0)
		ON CONFLICT (owner_id, kind) DO NOTHING
	`
	if _, err := t.tx.ExecContext(ctx, insertQuery, uuid.New(), ownerID, string(kind)); err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	selectQuery := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE owner_id = $1 AND kind = $2
		FOR UPDATE
	`
	w, err := scanWallet(t.tx.QueryRowContext(ctx, selectQuery, ownerID, string(kind)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return w, nil
}

// UpdateWallet persists the wallet's balance and frozen amount
func (t *storeTx) UpdateWallet(ctx context.Context, w *domain.Wallet) error {
	query := `
		UPDATE wallets
		SET balance = $1, frozen = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := t.tx.ExecContext(ctx, query, w.Balance.String(), w.Frozen.String(), w.ID)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check wallet update: %w", err)
	}
	if rows == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// SetWalletYieldDate stamps the wallet's last yield accrual day
func (t *storeTx) SetWalletYieldDate(ctx context.Context, walletID uuid.UUID, day time.Time) error {
	query := `UPDATE wallets SET last_yield_on = $1 WHERE id = $2`
	result, err := t.tx.ExecContext(ctx, query, day, walletID)
	if err != nil {
		return fmt.Errorf("failed to set wallet yield date: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check wallet yield date update: %w", err)
	}
	if rows == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// AppendTransaction inserts one immutable ledger entry
func (t *storeTx) AppendTransaction(ctx context.Context, entry *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, wallet_id, owner_id, amount, type, description, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var referenceID interface{}
	if entry.ReferenceID != nil {
		referenceID = *entry.ReferenceID
	}

	_, err := t.tx.ExecContext(ctx, query,
		entry.ID,
		entry.WalletID,
		entry.OwnerID,
		entry.Amount.String(),
		string(entry.Type),
		entry.Description,
		referenceID,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

const loanColumns = `id, lender_id, borrower_id, principal, interest_rate, interest_amount,
	processing_fee, total_repayment, term_days, status, created_at, accepted_at, due_at, repaid_at`

func scanLoan(row *sql.Row) (*domain.Loan, error) {
	var l domain.Loan
	var borrowerID sql.NullString
	var principalStr, rateStr, interestStr, feeStr, totalStr string
	var acceptedAt, dueAt, repaidAt sql.NullTime

	err := row.Scan(
		&l.ID, &l.LenderID, &borrowerID,
		&principalStr, &rateStr, &interestStr, &feeStr, &totalStr,
		&l.TermDays, &l.Status, &l.CreatedAt, &acceptedAt, &dueAt, &repaidAt,
	)
	if err != nil {
		return nil, err
	}

	if borrowerID.Valid {
		parsed, err := uuid.Parse(borrowerID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse borrower_id: %w", err)
		}
		l.BorrowerID = &parsed
	}

	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&l.Principal, principalStr},
		{&l.InterestRate, rateStr},
		{&l.InterestAmount, interestStr},
		{&l.ProcessingFee, feeStr},
		{&l.TotalRepayment, totalStr},
	} {
		d, err := decimal.NewFromString(field.src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse loan amount: %w", err)
		}
		*field.dst = d
	}

	if acceptedAt.Valid {
		l.AcceptedAt = &acceptedAt.Time
	}
	if dueAt.Valid {
		l.DueAt = &dueAt.Time
	}
	if repaidAt.Valid {
		l.RepaidAt = &repaidAt.Time
	}
	return &l, nil
}

// CreateLoan inserts a new loan
func (t *storeTx) CreateLoan(ctx context.Context, l *domain.Loan) error {
	query := `
		INSERT INTO loans (id, lender_id, borrower_id, principal, interest_rate, interest_amount,
			processing_fee, total_repayment, term_days, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	var borrowerID interface{}
	if l.BorrowerID != nil {
		borrowerID = *l.BorrowerID
	}

	_, err := t.tx.ExecContext(ctx, query,
		l.ID, l.LenderID, borrowerID,
		l.Principal.String(), l.InterestRate.String(), l.InterestAmount.String(),
		l.ProcessingFee.String(), l.TotalRepayment.String(),
		l.TermDays, string(l.Status), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// LoanForUpdate locks the loan row for the rest of the transaction. Blocks
// (up to the lock timeout) if another transaction holds the row.
func (t *storeTx) LoanForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`
	l, err := scanLoan(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to lock loan: %w", err)
	}
	return l, nil
}

// ClaimLoan locks the loan row without waiting. A row held by another
// transaction is reported as ErrLoanNotFound: batch jobs treat that as
// "skip, someone else is handling it".
func (t *storeTx) ClaimLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE SKIP LOCKED`
	l, err := scanLoan(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to claim loan: %w", err)
	}
	return l, nil
}

// UpdateLoan persists the loan's mutable fields
func (t *storeTx) UpdateLoan(ctx context.Context, l *domain.Loan) error {
	query := `
		UPDATE loans
		SET borrower_id = $1, status = $2, accepted_at = $3, due_at = $4, repaid_at = $5
		WHERE id = $6
	`
	var borrowerID interface{}
	if l.BorrowerID != nil {
		borrowerID = *l.BorrowerID
	}

	result, err := t.tx.ExecContext(ctx, query,
		borrowerID, string(l.Status), l.AcceptedAt, l.DueAt, l.RepaidAt, l.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check loan update: %w", err)
	}
	if rows == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

// ClaimVaultWallet locks a vault wallet by id without waiting, with the same
// skip-locked semantics as ClaimLoan.
func (t *storeTx) ClaimVaultWallet(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE id = $1 AND kind = $2
		FOR UPDATE SKIP LOCKED
	`
	w, err := scanWallet(t.tx.QueryRowContext(ctx, query, id, string(domain.WalletKindVault)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to claim vault wallet: %w", err)
	}
	return w, nil
}

// GetUser retrieves a user by ID
func (t *storeTx) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT id, username, tier, referrer_id, created_at FROM users WHERE id = $1`

	var u domain.User
	var referrerID sql.NullString

	err := t.tx.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.Tier, &referrerID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if referrerID.Valid {
		parsed, err := uuid.Parse(referrerID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse referrer_id: %w", err)
		}
		u.ReferrerID = &parsed
	}
	return &u, nil
}

// EnsureUser inserts the user if they do not exist yet
func (t *storeTx) EnsureUser(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, username, tier, referrer_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	var referrerID interface{}
	if u.ReferrerID != nil {
		referrerID = *u.ReferrerID
	}

	if _, err := t.tx.ExecContext(ctx, query, u.ID, u.Username, string(u.Tier), referrerID); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// UpdateUserTier sets the user's membership tier
func (t *storeTx) UpdateUserTier(ctx context.Context, id uuid.UUID, tier domain.MembershipTier) error {
	query := `UPDATE users SET tier = $1 WHERE id = $2`
	result, err := t.tx.ExecContext(ctx, query, string(tier), id)
	if err != nil {
		return fmt.Errorf("failed to update user tier: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check user tier update: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// CreateCommissionEvent inserts a commission payout record
func (t *storeTx) CreateCommissionEvent(ctx context.Context, ev *domain.CommissionEvent) error {
	query := `
		INSERT INTO commission_events (id, referrer_id, referred_id, level, event_type,
			base_amount, rate, amount, paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := t.tx.ExecContext(ctx, query,
		ev.ID, ev.ReferrerID, ev.ReferredID, ev.Level, string(ev.EventType),
		ev.BaseAmount.String(), ev.Rate.String(), ev.Amount.String(), ev.Paid, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create commission event: %w", err)
	}
	return nil
}

// TaskForUpdate locks the task row for the rest of the transaction
func (t *storeTx) TaskForUpdate(ctx context.Context, id uuid.UUID) (*domain.EarnTask, error) {
	query := `
		SELECT id, owner_id, title, reward, status, created_at, approved_at
		FROM tasks
		WHERE id = $1
		FOR UPDATE
	`

	var task domain.EarnTask
	var rewardStr string
	var approvedAt sql.NullTime

	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&task.ID, &task.OwnerID, &task.Title, &rewardStr, &task.Status, &task.CreatedAt, &approvedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to lock task: %w", err)
	}

	if task.Reward, err = decimal.NewFromString(rewardStr); err != nil {
		return nil, fmt.Errorf("failed to parse task reward: %w", err)
	}
	if approvedAt.Valid {
		task.ApprovedAt = &approvedAt.Time
	}
	return &task, nil
}

// UpdateTask persists the task's status and approval timestamp
func (t *storeTx) UpdateTask(ctx context.Context, task *domain.EarnTask) error {
	query := `UPDATE tasks SET status = $1, approved_at = $2 WHERE id = $3`
	result, err := t.tx.ExecContext(ctx, query, string(task.Status), task.ApprovedAt, task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check task update: %w", err)
	}
	if rows == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}
