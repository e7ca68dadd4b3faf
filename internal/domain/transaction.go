package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType tags a ledger entry with the operation that produced it
type TransactionType string

const (
	TxTypeTransfer         TransactionType = "TRANSFER"
	TxTypeWithdrawal       TransactionType = "WITHDRAWAL"
	TxTypeLoanEscrow       TransactionType = "LOAN_ESCROW"
	TxTypeLoanFee          TransactionType = "LOAN_FEE"
	TxTypeLoanDisbursement TransactionType = "LOAN_DISBURSEMENT"
	TxTypeLoanRepayment    TransactionType = "LOAN_REPAYMENT"
	TxTypeLoanRefund       TransactionType = "LOAN_REFUND"
	TxTypeYield            TransactionType = "YIELD"
	TxTypeCommission       TransactionType = "COMMISSION"
	TxTypeTaskReward       TransactionType = "TASK_REWARD"
	TxTypeMembership       TransactionType = "MEMBERSHIP"
)

// LoanMutatingTypes are the transaction types counted by the rate limiter
// when guarding loan operations.
var LoanMutatingTypes = []TransactionType{
	TxTypeLoanEscrow,
	TxTypeLoanDisbursement,
	TxTypeLoanRepayment,
	TxTypeLoanRefund,
}

// Transaction represents a single immutable ledger entry. Amount is signed:
// negative for debits, positive for credits. The transaction log is the
// source of truth for reconciliation — a wallet's balance must equal the sum
// of its entries at all times.
type Transaction struct {
	ID          uuid.UUID
	WalletID    uuid.UUID
	OwnerID     uuid.UUID
	Amount      decimal.Decimal
	Type        TransactionType
	Description string
	ReferenceID *uuid.UUID // causing entity: loan id, task id, commission event id
	CreatedAt   time.Time
}

// Validate ensures the transaction adheres to domain rules
func (t *Transaction) Validate() error {
	if t.Amount.IsZero() {
		return errors.New("transaction amount cannot be zero")
	}

	if t.Type == "" {
		return errors.New("transaction type cannot be empty")
	}

	return nil
}

// TransferResult holds the paired ledger entries produced by one transfer.
type TransferResult struct {
	Debit  *Transaction
	Credit *Transaction
}

// Validate ensures the pair conserves value.
// CRITICAL: the debit and credit must be equal and opposite, so the sum of
// balance deltas across the wallets touched is exactly zero.
func (r *TransferResult) Validate() error {
	if r.Debit == nil || r.Credit == nil {
		return errors.New("transfer result must have both a debit and a credit entry")
	}

	if !r.Debit.Amount.IsNegative() {
		return errors.New("debit entry amount must be negative")
	}

	if !r.Credit.Amount.IsPositive() {
		return errors.New("credit entry amount must be positive")
	}

	if !r.Debit.Amount.Neg().Equal(r.Credit.Amount) {
		return errors.New("debit and credit amounts must be equal and opposite")
	}

	return nil
}
